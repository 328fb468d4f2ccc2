package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsDuplicatePlanTask(t *testing.T) {
	cfg := Default()
	plan := cfg.Plans["minimal"]
	plan.Tasks = append(plan.Tasks, plan.Tasks[0])
	cfg.Plans["minimal"] = plan

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected duplicate plan task to be rejected")
	}
	if !strings.Contains(err.Error(), "twice") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownPlanRole(t *testing.T) {
	cfg := Default()
	plan := cfg.Plans["minimal"]
	plan.Tasks = append(plan.Tasks, PlanTask{Requirement: "contract.signed", Role: "janitor"})
	cfg.Plans["minimal"] = plan

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}
