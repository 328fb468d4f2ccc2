package app

import (
	"accredo/internal/config"
)

// ResolveConfig loads the workspace config, falling back to the built-in
// default when accredo.yml is absent. A present but invalid file is an error.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}
