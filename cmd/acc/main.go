package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accredo/internal/app"
	"accredo/internal/config"
	"accredo/internal/db"
	"accredo/internal/domain"
	"accredo/internal/engine"
	"accredo/internal/migrate"
	"accredo/internal/repo"
	"accredo/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "acc",
	Short: "Accredo CLI",
	Long: `Accredo tracks worker accreditations and project onboarding completion.
Core concepts:
- Workspace: the .accredo directory holding the database; accredo.yml beside it
  declares the requirement catalog, provisioning plans and classification window.
- Requirement records: a worker's dated instance of a requirement (medical
  checkup, insurance, signed contract). Their status (current, expiring,
  expired) is computed from the expiry date at read time; in_renewal is a
  manual override set while paperwork is in flight.
- Projects: provisioned from a plan, which bulk-creates the onboarding tasks.
  Checking the last open task off finalizes the project; unchecking one
  reopens it.
- Roles: every task belongs to a responsible role (safety, hr, admin,
  operations); 'acc progress' shows completion per role.
- Event log: diary of changes, view with 'acc log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ACCREDO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(reqtypeCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default accredo.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func workerCmd() *cobra.Command {
	w := &cobra.Command{Use: "worker", Short: "Manage workers"}
	w.AddCommand(workerAddCmd())
	w.AddCommand(workerListCmd())
	return w
}

func workerAddCmd() *cobra.Command {
	var opts engine.WorkerCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.AddWorker(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "worker id (optional)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "full name")
	cmd.Flags().StringVar(&opts.Company, "company", "", "employer")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func workerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Company"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Name, w.Company})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func reqtypeCmd() *cobra.Command {
	rt := &cobra.Command{Use: "reqtype", Short: "Manage requirement types"}
	rt.AddCommand(reqtypeAddCmd())
	rt.AddCommand(reqtypeListCmd())
	return rt
}

func reqtypeAddCmd() *cobra.Command {
	var opts engine.TypeCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a requirement type",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddRequirementType(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "type id (optional)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category (medical, training, insurance, ...)")
	cmd.Flags().IntVar(&opts.ValidityDays, "validity-days", 0, "default validity in days (0 = no expiry hint)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func reqtypeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requirement types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRequirementTypes(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func recordCmd() *cobra.Command {
	rec := &cobra.Command{
		Use:   "record",
		Short: "Manage requirement records",
		Long:  "Requirement records carry the dates; their status is recomputed against today on every read, so an expired certificate shows as expired without anyone touching it.",
	}
	rec.AddCommand(recordAddCmd())
	rec.AddCommand(recordListCmd())
	rec.AddCommand(recordGetCmd())
	rec.AddCommand(recordUpdateCmd())
	rec.AddCommand(recordRmCmd())
	return rec
}

func recordAddCmd() *cobra.Command {
	var opts engine.RecordCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a requirement record",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.CreateRecord(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&opts.WorkerID, "worker", "", "worker id")
	cmd.Flags().StringVar(&opts.TypeID, "type", "", "requirement type id")
	cmd.Flags().StringVar(&opts.ValidFrom, "valid-from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ValidTo, "valid-to", "", "expiry date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("worker")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("valid-from")
	_ = cmd.MarkFlagRequired("valid-to")
	return cmd
}

func recordListCmd() *cobra.Command {
	var f repo.RecordFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requirement records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, err := e.ListRecords(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Worker", "Category", "Valid to", "Status", "Lead days"})
				for _, rec := range records {
					tw.AppendRow(table.Row{rec.ID, rec.WorkerID, rec.Category, rec.ValidTo, rec.Status, rec.LeadDays})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.WorkerID, "worker", "", "worker filter")
	cmd.Flags().StringVar(&f.TypeID, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	return cmd
}

func recordGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a requirement record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.GetRecord(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	return cmd
}

func recordUpdateCmd() *cobra.Command {
	var opts engine.RecordUpdateOptions
	var manualStatus string
	var clearManual bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a requirement record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			if clearManual {
				empty := ""
				opts.ManualStatus = &empty
			} else if cmd.Flags().Changed("manual-status") {
				opts.ManualStatus = &manualStatus
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.UpdateRecord(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ValidFrom, "valid-from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ValidTo, "valid-to", "", "expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&manualStatus, "manual-status", "", "manual status override (in_renewal, ...)")
	cmd.Flags().BoolVar(&clearManual, "clear-manual-status", false, "clear the manual override")
	_ = cmd.MarkFlagRequired("valid-from")
	_ = cmd.MarkFlagRequired("valid-to")
	return cmd
}

func recordRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a requirement record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRecord(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectProvisionCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCancelCmd())
	prj.AddCommand(projectAssignCmd())
	prj.AddCommand(projectUnassignCmd())
	return prj
}

func projectProvisionCmd() *cobra.Command {
	var opts engine.ProvisionOptions
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a project from a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, tasks, err := e.ProvisionProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"project": p, "tasks": tasks})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (optional)")
	cmd.Flags().StringVar(&opts.Code, "code", "", "project code")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Client, "client", "", "client name")
	cmd.Flags().StringVar(&opts.Plan, "plan", "", "plan name from accredo.yml (default: standard)")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Name", "Client", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Code, p.Name, p.Client, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	var byCode bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var p domain.Project
				var err error
				if byCode {
					p, err = r.GetProjectByCode(ctx, target)
				} else {
					p, err = r.GetProject(ctx, target)
				}
				if err != nil {
					return err
				}
				assignments, err := r.ListAssignments(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"project": p, "assignments": assignments})
			})
		},
	}
	cmd.Flags().BoolVar(&byCode, "by-code", false, "look up by project code instead of id")
	return cmd
}

func projectCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CancelProject(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectAssignCmd() *cobra.Command {
	var role, person string
	cmd := &cobra.Command{
		Use:   "assign <project-id>",
		Short: "Assign a responsible person to a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetAssignment(ctx, projectID, domain.Role(role), person, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role (safety, hr, admin, operations)")
	cmd.Flags().StringVar(&person, "person", "", "person id")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("person")
	return cmd
}

func projectUnassignCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "unassign <project-id>",
		Short: "Clear a role assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ClearAssignment(ctx, projectID, domain.Role(role), viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role (safety, hr, admin, operations)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage onboarding tasks",
		Long:  "Tasks come from the provisioning plan; there is no ad-hoc task creation. Checking the last open one off finalizes the project, unchecking one reopens it.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskUndoCmd())
	task.AddCommand(taskAssignCmd())
	return task
}

func taskAssignCmd() *cobra.Command {
	var assignee string
	var clear bool
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Set or clear a task's delegate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			var assigneeID *string
			if !clear {
				if assignee == "" {
					return fmt.Errorf("either --assignee or --clear is required")
				}
				assigneeID = &assignee
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, taskID)
				if err != nil {
					return err
				}
				t, err = e.AssignTask(ctx, t.ProjectID, taskID, assigneeID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "person id")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the delegate")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var done, open bool
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ProjectID = args[0]
			if done {
				v := true
				f.Done = &v
			} else if open {
				v := false
				f.Done = &v
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Requirement", "Role", "Done", "Completed on"})
				for _, t := range tasks {
					completedOn := ""
					if t.CompletedOn != nil {
						completedOn = *t.CompletedOn
					}
					tw.AppendRow(table.Row{t.ID, t.Requirement, t.Role, t.Done, completedOn})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Role, "role", "", "role filter")
	cmd.Flags().BoolVar(&done, "done", false, "only completed tasks")
	cmd.Flags().BoolVar(&open, "open", false, "only open tasks")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	return taskToggleCmd("done", "Mark task completed", true)
}

func taskUndoCmd() *cobra.Command {
	return taskToggleCmd("undo", "Mark task not completed", false)
}

func taskToggleCmd(use, short string, done bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, taskID)
				if err != nil {
					return err
				}
				res, err := e.SetTaskDone(ctx, t.ProjectID, taskID, done, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%d/%d tasks done\n", res.Completed, res.Total)
				if res.NewProjectStatus != nil {
					fmt.Printf("Project is now %s\n", *res.NewProjectStatus)
				}
				return nil
			})
		},
	}
	return cmd
}

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <project-id>",
		Short: "Show completion per responsible role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ProgressByRole(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Role", "Completed", "Total", "Percent"})
				for _, rp := range items {
					tw.AppendRow(table.Row{rp.Role, rp.Completed, rp.Total, fmt.Sprintf("%.0f%%", rp.Percent)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&projectID, "project", "", "project filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRmCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				// the raw key is shown once and never stored
				fmt.Printf("API key (save it now, it will not be shown again):\n%s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ACCREDO_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ACCREDO_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Accredo API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
