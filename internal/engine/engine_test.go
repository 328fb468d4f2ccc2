package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"accredo/internal/config"
	"accredo/internal/db"
	"accredo/internal/domain"
	"accredo/internal/engine"
	"accredo/internal/migrate"
	"accredo/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedWorkerAndType(t *testing.T, env testEnv) (domain.Worker, domain.RequirementType) {
	t.Helper()
	w, err := env.Engine.AddWorker(env.Ctx, engine.WorkerCreateOptions{Name: "Dana Reyes", Company: "Starling Ltd", ActorID: "tester"})
	if err != nil {
		t.Fatalf("add worker: %v", err)
	}
	rt, err := env.Engine.AddRequirementType(env.Ctx, engine.TypeCreateOptions{Name: "Medical checkup", Category: "medical", ValidityDays: 365, ActorID: "tester"})
	if err != nil {
		t.Fatalf("add type: %v", err)
	}
	return w, rt
}

func TestCreateRecordClassifiesOnWrite(t *testing.T) {
	env := newTestEnv(t)
	w, rt := seedWorkerAndType(t, env)
	cases := []struct {
		validTo string
		want    domain.RecordStatus
	}{
		{"2024-06-10", domain.RecordExpired},
		{"2024-07-01", domain.RecordExpiring},
		{"2025-06-15", domain.RecordCurrent},
	}
	for _, tc := range cases {
		rec, err := env.Engine.CreateRecord(env.Ctx, engine.RecordCreateOptions{
			WorkerID: w.ID, TypeID: rt.ID, ValidFrom: "2024-01-01", ValidTo: tc.validTo, ActorID: "tester",
		})
		if err != nil {
			t.Fatalf("create record valid_to=%s: %v", tc.validTo, err)
		}
		if rec.Status != tc.want {
			t.Fatalf("valid_to=%s: got %s, want %s", tc.validTo, rec.Status, tc.want)
		}
		if rec.Category != "medical" {
			t.Fatalf("category not taken from type: %s", rec.Category)
		}
	}
}

func TestCreateRecordValidation(t *testing.T) {
	env := newTestEnv(t)
	w, rt := seedWorkerAndType(t, env)
	// missing dates
	if _, err := env.Engine.CreateRecord(env.Ctx, engine.RecordCreateOptions{WorkerID: w.ID, TypeID: rt.ID, ActorID: "tester"}); err == nil {
		t.Fatalf("expected error on missing dates")
	}
	// inverted range
	if _, err := env.Engine.CreateRecord(env.Ctx, engine.RecordCreateOptions{
		WorkerID: w.ID, TypeID: rt.ID, ValidFrom: "2024-06-01", ValidTo: "2024-05-01", ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected error on inverted range")
	}
	// unknown worker
	_, err := env.Engine.CreateRecord(env.Ctx, engine.RecordCreateOptions{
		WorkerID: "missing", TypeID: rt.ID, ValidFrom: "2024-01-01", ValidTo: "2025-01-01", ActorID: "tester",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for worker, got %v", err)
	}
}

func TestListRecordsRefreshesStatus(t *testing.T) {
	env := newTestEnv(t)
	w, rt := seedWorkerAndType(t, env)
	rec, err := env.Engine.CreateRecord(env.Ctx, engine.RecordCreateOptions{
		WorkerID: w.ID, TypeID: rt.ID, ValidFrom: "2024-01-01", ValidTo: "2024-08-01", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.RecordCurrent {
		t.Fatalf("expected current at write, got %s", rec.Status)
	}
	// six months later the same row reads as expired without any write
	env.Engine.Now = func() time.Time { return time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC) }
	records, err := env.Engine.ListRecords(env.Ctx, repo.RecordFilters{WorkerID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != domain.RecordExpired {
		t.Fatalf("expected expired on read, got %+v", records)
	}
}

func TestManualStatusOverrideAndClear(t *testing.T) {
	env := newTestEnv(t)
	w, rt := seedWorkerAndType(t, env)
	rec, err := env.Engine.CreateRecord(env.Ctx, engine.RecordCreateOptions{
		WorkerID: w.ID, TypeID: rt.ID, ValidFrom: "2023-01-01", ValidTo: "2024-01-01", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.RecordExpired {
		t.Fatalf("expected expired, got %s", rec.Status)
	}
	renewal := "in_renewal"
	rec, err = env.Engine.UpdateRecord(env.Ctx, engine.RecordUpdateOptions{
		ID: rec.ID, ValidFrom: rec.ValidFrom, ValidTo: rec.ValidTo, ManualStatus: &renewal, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("set manual: %v", err)
	}
	if rec.Status != domain.RecordInRenewal {
		t.Fatalf("expected in_renewal, got %s", rec.Status)
	}
	// nil pointer leaves the override in place
	rec, err = env.Engine.UpdateRecord(env.Ctx, engine.RecordUpdateOptions{
		ID: rec.ID, ValidFrom: rec.ValidFrom, ValidTo: rec.ValidTo, ActorID: "tester",
	})
	if err != nil || rec.Status != domain.RecordInRenewal {
		t.Fatalf("override dropped on unrelated update: %s %v", rec.Status, err)
	}
	// empty string clears it, classifier resumes
	clear := ""
	rec, err = env.Engine.UpdateRecord(env.Ctx, engine.RecordUpdateOptions{
		ID: rec.ID, ValidFrom: rec.ValidFrom, ValidTo: rec.ValidTo, ManualStatus: &clear, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.RecordExpired {
		t.Fatalf("expected expired after clear, got %s", rec.Status)
	}
	// nonsense value rejected
	bogus := "frobnicated"
	if _, err := env.Engine.UpdateRecord(env.Ctx, engine.RecordUpdateOptions{
		ID: rec.ID, ValidFrom: rec.ValidFrom, ValidTo: rec.ValidTo, ManualStatus: &bogus, ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected invalid manual status error")
	}
}

func TestProvisionProject(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{
		Code: "SITE-001", Name: "North warehouse", Client: "Acme", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if p.Status != domain.ProjectPending {
		t.Fatalf("expected pending, got %s", p.Status)
	}
	if len(tasks) != 6 {
		t.Fatalf("expected 6 tasks from standard plan, got %d", len(tasks))
	}
	if _, _, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{
		Code: "SITE-002", Name: "x", Plan: "nonexistent", ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected invalid plan error")
	}
}

func TestCompletionCascade(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{
		Code: "SITE-010", Name: "Cascade", Plan: "minimal", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	res, err := env.Engine.SetTaskDone(env.Ctx, p.ID, tasks[0].ID, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.AllCompleted || res.NewProjectStatus != nil {
		t.Fatalf("premature finalization: %+v", res)
	}
	if res.Task.CompletedOn == nil || *res.Task.CompletedOn != "2024-06-15" {
		t.Fatalf("completed_on not stamped: %+v", res.Task)
	}

	res, err = env.Engine.SetTaskDone(env.Ctx, p.ID, tasks[1].ID, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !res.AllCompleted || res.NewProjectStatus == nil || *res.NewProjectStatus != domain.ProjectFinalized {
		t.Fatalf("expected finalization on last task: %+v", res)
	}
	got, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if err != nil || got.Status != domain.ProjectFinalized {
		t.Fatalf("persisted status: %s %v", got.Status, err)
	}

	// re-marking an already done task must not report completion again
	res, err = env.Engine.SetTaskDone(env.Ctx, p.ID, tasks[1].ID, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.AllCompleted || res.NewProjectStatus != nil {
		t.Fatalf("idempotence violated: %+v", res)
	}

	// undoing a task regresses a finalized project
	res, err = env.Engine.SetTaskDone(env.Ctx, p.ID, tasks[0].ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewProjectStatus == nil || *res.NewProjectStatus != domain.ProjectInProgress {
		t.Fatalf("expected regression to in_progress: %+v", res)
	}
	if res.Task.CompletedOn != nil {
		t.Fatalf("completed_on not cleared on undo")
	}

	// redo finalizes again
	res, err = env.Engine.SetTaskDone(env.Ctx, p.ID, tasks[0].ID, true, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !res.AllCompleted {
		t.Fatalf("expected second finalization: %+v", res)
	}
}

func TestSetTaskDoneRejectsCrossProject(t *testing.T) {
	env := newTestEnv(t)
	p1, tasks1, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "A", Name: "a", Plan: "minimal", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	p2, _, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "B", Name: "b", Plan: "minimal", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.SetTaskDone(env.Ctx, p2.ID, tasks1[0].ID, true, "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on cross-project toggle, got %v", err)
	}
	// no mutation happened
	tk, err := env.Engine.Repo.GetTask(env.Ctx, tasks1[0].ID)
	if err != nil || tk.Done {
		t.Fatalf("task mutated by rejected toggle: %+v %v", tk, err)
	}
	if got, _ := env.Engine.Repo.GetProject(env.Ctx, p1.ID); got.Status != domain.ProjectPending {
		t.Fatalf("project mutated by rejected toggle: %s", got.Status)
	}
}

func TestZeroTaskProjectNeverFinalizes(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default()
	cfg.Plans["empty"] = config.Plan{}
	env.Engine.Config = cfg
	p, tasks, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "E", Name: "empty", Plan: "empty", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
	got, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if err != nil || got.Status != domain.ProjectPending {
		t.Fatalf("empty project should stay pending: %s %v", got.Status, err)
	}
}

func TestCancelProject(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "C", Name: "cancel", Plan: "minimal", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	p, err = env.Engine.CancelProject(env.Ctx, p.ID, "tester")
	if err != nil || p.Status != domain.ProjectCancelled {
		t.Fatalf("cancel: %s %v", p.Status, err)
	}
	// completing every task afterwards does not resurrect it
	for _, tk := range tasks {
		if _, err := env.Engine.SetTaskDone(env.Ctx, p.ID, tk.ID, true, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if got.Status == domain.ProjectFinalized {
		t.Fatalf("cascade overwrote cancelled status")
	}
}

func TestProgressByRole(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "P", Name: "progress", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// complete one hr task
	for _, tk := range tasks {
		if tk.Role == domain.RoleHR {
			if _, err := env.Engine.SetTaskDone(env.Ctx, p.ID, tk.ID, true, "tester"); err != nil {
				t.Fatal(err)
			}
			break
		}
	}
	progress, err := env.Engine.ProgressByRole(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	byRole := map[domain.Role]domain.RoleProgress{}
	for _, rp := range progress {
		byRole[rp.Role] = rp
	}
	hr, ok := byRole[domain.RoleHR]
	if !ok || hr.Total != 2 || hr.Completed != 1 || hr.Percent != 50 {
		t.Fatalf("hr bucket wrong: %+v", hr)
	}
	safety, ok := byRole[domain.RoleSafety]
	if !ok || safety.Total != 1 || safety.Completed != 0 {
		t.Fatalf("safety bucket wrong: %+v", safety)
	}
	// roles with zero tasks are omitted entirely
	for _, rp := range progress {
		if rp.Total == 0 {
			t.Fatalf("zero-total bucket leaked: %+v", rp)
		}
	}
	if _, err := env.Engine.ProgressByRole(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssignments(t *testing.T) {
	env := newTestEnv(t)
	p, _, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "AS", Name: "assign", Plan: "minimal", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.SetAssignment(env.Ctx, p.ID, domain.RoleSafety, "user-1", "tester")
	if err != nil || a.PersonID != "user-1" {
		t.Fatalf("set assignment: %+v %v", a, err)
	}
	// reassign the same role
	a, err = env.Engine.SetAssignment(env.Ctx, p.ID, domain.RoleSafety, "user-2", "tester")
	if err != nil || a.PersonID != "user-2" {
		t.Fatalf("reassign: %+v %v", a, err)
	}
	list, err := env.Engine.Repo.ListAssignments(env.Ctx, p.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected single assignment row, got %d (%v)", len(list), err)
	}
	if _, err := env.Engine.SetAssignment(env.Ctx, p.ID, "janitor", "user-3", "tester"); err == nil {
		t.Fatalf("expected invalid role error")
	}
	if err := env.Engine.ClearAssignment(env.Ctx, p.ID, domain.RoleSafety, "tester"); err != nil {
		t.Fatal(err)
	}
	list, _ = env.Engine.Repo.ListAssignments(env.Ctx, p.ID)
	if len(list) != 0 {
		t.Fatalf("assignment not cleared")
	}
}

func TestAssignTask(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "TA", Name: "delegate", Plan: "minimal", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	delegate := "user-7"
	tk, err := env.Engine.AssignTask(env.Ctx, p.ID, tasks[0].ID, &delegate, "tester")
	if err != nil || tk.AssigneeID == nil || *tk.AssigneeID != "user-7" {
		t.Fatalf("assign task: %+v %v", tk, err)
	}
	tk, err = env.Engine.AssignTask(env.Ctx, p.ID, tasks[0].ID, nil, "tester")
	if err != nil || tk.AssigneeID != nil {
		t.Fatalf("clear delegate: %+v %v", tk, err)
	}
	if _, err := env.Engine.AssignTask(env.Ctx, "other", tasks[0].ID, &delegate, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on cross-project assign, got %v", err)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, err := env.Engine.ProvisionProject(env.Ctx, engine.ProvisionOptions{Code: "EV", Name: "events", Plan: "minimal", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	for _, tk := range tasks {
		if _, err := env.Engine.SetTaskDone(env.Ctx, p.ID, tk.ID, true, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE project_id=?`, p.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	types := map[string]int{}
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatal(err)
		}
		types[typ]++
	}
	if types["task.completed"] != 2 {
		t.Fatalf("expected 2 task.completed events, got %d", types["task.completed"])
	}
	if types["project.finalized"] != 1 {
		t.Fatalf("expected 1 project.finalized event, got %d", types["project.finalized"])
	}
}
