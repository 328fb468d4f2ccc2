package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"accredo/internal/config"
	"accredo/internal/domain"
	"accredo/internal/events"
	"accredo/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) windowDays() int {
	return e.Config.ExpiringWindowDays()
}

// WorkerCreateOptions are parameters for registering a worker.
type WorkerCreateOptions struct {
	ID      string
	Name    string
	Company string
	ActorID string
}

func (e Engine) AddWorker(ctx context.Context, opts WorkerCreateOptions) (domain.Worker, error) {
	if opts.Name == "" {
		return domain.Worker{}, errors.New("name is required")
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	w := domain.Worker{
		ID:        opts.ID,
		Name:      opts.Name,
		Company:   opts.Company,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkerTx(ctx, tx, w); err != nil {
		return domain.Worker{}, fmt.Errorf("insert worker: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "worker.created", "", "worker", w.ID, opts.ActorID, events.EventPayload{"name": w.Name}); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	return w, nil
}

// TypeCreateOptions are parameters for registering a requirement type.
type TypeCreateOptions struct {
	ID           string
	Name         string
	Category     string
	ValidityDays int
	ActorID      string
}

func (e Engine) AddRequirementType(ctx context.Context, opts TypeCreateOptions) (domain.RequirementType, error) {
	if opts.Name == "" {
		return domain.RequirementType{}, errors.New("name is required")
	}
	if opts.Category == "" {
		return domain.RequirementType{}, errors.New("category is required")
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	t := domain.RequirementType{
		ID:           opts.ID,
		Name:         opts.Name,
		Category:     opts.Category,
		ValidityDays: opts.ValidityDays,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RequirementType{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRequirementTypeTx(ctx, tx, t); err != nil {
		return domain.RequirementType{}, fmt.Errorf("insert requirement type: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "requirement_type.created", "", "requirement_type", t.ID, opts.ActorID, events.EventPayload{"name": t.Name, "category": t.Category}); err != nil {
		return domain.RequirementType{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RequirementType{}, err
	}
	return t, nil
}

// ListRecords returns records newest first. The stored status is refreshed
// against today for every record without a manual override, so a row that
// expired since its last write reads as expired without a write path.
func (e Engine) ListRecords(ctx context.Context, f repo.RecordFilters) ([]domain.RequirementRecord, error) {
	records, err := e.Repo.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	today := e.now()
	window := e.windowDays()
	for i := range records {
		records[i].Status = EffectiveStatus(records[i], today, window)
		records[i].LeadDays = leadDays(records[i].ValidTo, today)
	}
	return records, nil
}

// GetRecord loads one record with the same classify-on-read refresh as ListRecords.
func (e Engine) GetRecord(ctx context.Context, id string) (domain.RequirementRecord, error) {
	rec, err := e.Repo.GetRecord(ctx, id)
	if err != nil {
		return rec, err
	}
	rec.Status = EffectiveStatus(rec, e.now(), e.windowDays())
	rec.LeadDays = leadDays(rec.ValidTo, e.now())
	return rec, nil
}

// RecordCreateOptions are parameters for granting a requirement instance.
type RecordCreateOptions struct {
	WorkerID  string
	TypeID    string
	ValidFrom string
	ValidTo   string
	ActorID   string
}

func (e Engine) CreateRecord(ctx context.Context, opts RecordCreateOptions) (domain.RequirementRecord, error) {
	if err := validateDates(opts.ValidFrom, opts.ValidTo); err != nil {
		return domain.RequirementRecord{}, err
	}
	worker, err := e.Repo.GetWorker(ctx, opts.WorkerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.RequirementRecord{}, fmt.Errorf("worker %s: %w", opts.WorkerID, repo.ErrNotFound)
		}
		return domain.RequirementRecord{}, err
	}
	reqType, err := e.Repo.GetRequirementType(ctx, opts.TypeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.RequirementRecord{}, fmt.Errorf("requirement type %s: %w", opts.TypeID, repo.ErrNotFound)
		}
		return domain.RequirementRecord{}, err
	}
	today := e.now()
	now := today.UTC().Format(time.RFC3339)
	rec := domain.RequirementRecord{
		ID:        uuid.New().String(),
		WorkerID:  worker.ID,
		TypeID:    reqType.ID,
		Category:  reqType.Category,
		ValidFrom: opts.ValidFrom,
		ValidTo:   opts.ValidTo,
		Status:    Classify(opts.ValidTo, today, e.windowDays()),
		LeadDays:  leadDays(opts.ValidTo, today),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RequirementRecord{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRecordTx(ctx, tx, rec); err != nil {
		return domain.RequirementRecord{}, fmt.Errorf("insert record: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "record.created", "", "record", rec.ID, opts.ActorID, events.EventPayload{
		"worker_id": rec.WorkerID,
		"type_id":   rec.TypeID,
		"status":    rec.Status,
	}); err != nil {
		return domain.RequirementRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RequirementRecord{}, err
	}
	return rec, nil
}

// RecordUpdateOptions encapsulates allowed updates. ManualStatus pointer
// semantics: nil leaves the override untouched, empty string clears it so
// the classifier resumes control, any other value is stored verbatim.
type RecordUpdateOptions struct {
	ID           string
	ValidFrom    string
	ValidTo      string
	ManualStatus *string
	ActorID      string
}

func (e Engine) UpdateRecord(ctx context.Context, opts RecordUpdateOptions) (domain.RequirementRecord, error) {
	rec, err := e.Repo.GetRecord(ctx, opts.ID)
	if err != nil {
		return rec, err
	}
	if err := validateDates(opts.ValidFrom, opts.ValidTo); err != nil {
		return rec, err
	}
	rec.ValidFrom = opts.ValidFrom
	rec.ValidTo = opts.ValidTo
	if opts.ManualStatus != nil {
		if *opts.ManualStatus == "" {
			rec.ManualStatus = nil
		} else {
			ms := domain.RecordStatus(*opts.ManualStatus)
			if !ms.Valid() {
				return rec, fmt.Errorf("invalid manual status %s", *opts.ManualStatus)
			}
			rec.ManualStatus = &ms
		}
	}
	today := e.now()
	rec.Status = EffectiveStatus(rec, today, e.windowDays())
	rec.LeadDays = leadDays(rec.ValidTo, today)
	rec.UpdatedAt = today.UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rec, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRecordTx(ctx, tx, rec); err != nil {
		return rec, err
	}
	if err := e.Events.Append(ctx, tx, "record.updated", "", "record", rec.ID, opts.ActorID, events.EventPayload{
		"status":        rec.Status,
		"manual_status": rec.ManualStatus,
	}); err != nil {
		return rec, err
	}
	if err := tx.Commit(); err != nil {
		return rec, err
	}
	return rec, nil
}

// DeleteRecord hard-deletes a record. Administrative path only.
func (e Engine) DeleteRecord(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	rec, err := e.Repo.GetRecordTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteRecordTx(ctx, tx, rec.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "record.deleted", "", "record", rec.ID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// ProvisionOptions are parameters for creating a project with its task set.
type ProvisionOptions struct {
	ID      string
	Code    string
	Name    string
	Client  string
	Plan    string
	ActorID string
}

// ProvisionProject creates the project and bulk-creates its tasks from the
// named plan in one transaction. Tasks are never created outside this path.
func (e Engine) ProvisionProject(ctx context.Context, opts ProvisionOptions) (domain.Project, []domain.Task, error) {
	if e.Config == nil {
		return domain.Project{}, nil, errors.New("config not loaded")
	}
	if opts.Code == "" {
		return domain.Project{}, nil, errors.New("code is required")
	}
	if opts.Name == "" {
		return domain.Project{}, nil, errors.New("name is required")
	}
	if opts.Plan == "" {
		opts.Plan = "standard"
	}
	plan, ok := e.Config.Plans[opts.Plan]
	if !ok {
		return domain.Project{}, nil, fmt.Errorf("invalid plan %s", opts.Plan)
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:        id,
		Code:      opts.Code,
		Name:      opts.Name,
		Client:    opts.Client,
		Status:    domain.ProjectPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var tasks []domain.Task
	for _, pt := range plan.Tasks {
		spec := e.Config.Requirements.Catalog[pt.Requirement]
		t := domain.Task{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.ID+"|"+pt.Requirement+"|"+pt.Role)).String(),
			ProjectID:   p.ID,
			Role:        domain.Role(pt.Role),
			Requirement: pt.Requirement,
			Category:    spec.Category,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		tasks = append(tasks, t)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, nil, fmt.Errorf("insert project: %w", err)
	}
	for _, t := range tasks {
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return domain.Project{}, nil, fmt.Errorf("insert task %s: %w", t.Requirement, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "project.provisioned", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"plan":  opts.Plan,
		"tasks": len(tasks),
	}); err != nil {
		return domain.Project{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, nil, err
	}
	return p, tasks, nil
}

// SetTaskDone applies a completion toggle and runs the project cascade in a
// single transaction. The completed count is recomputed from the task set
// after the write, inside the same transaction, so "this was the last one"
// cannot be decided against a stale snapshot. The project write happens
// only when a boundary is crossed; a toggle that changes nothing commits
// nothing.
func (e Engine) SetTaskDone(ctx context.Context, projectID, taskID string, done bool, actorID string) (domain.CompletionResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	if t.ProjectID != p.ID {
		return domain.CompletionResult{}, fmt.Errorf("task %s in project %s: %w", taskID, projectID, repo.ErrNotFound)
	}

	changed := t.Done != done
	if changed {
		t.Done = done
		if done {
			completedOn := dateOnly(e.now()).Format(DateLayout)
			t.CompletedOn = &completedOn
		} else {
			t.CompletedOn = nil
		}
		t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateTaskDoneTx(ctx, tx, t); err != nil {
			return domain.CompletionResult{}, err
		}
		evtType := "task.completed"
		if !done {
			evtType = "task.reopened"
		}
		if err := e.Events.Append(ctx, tx, evtType, p.ID, "task", t.ID, actorID, events.EventPayload{"requirement": t.Requirement, "role": t.Role}); err != nil {
			return domain.CompletionResult{}, err
		}
	}

	completed, total, err := e.Repo.CountTaskCompletionTx(ctx, tx, p.ID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	res := domain.CompletionResult{Task: t, Total: total, Completed: completed}

	// A project with zero tasks is never auto-finalized, and a cancelled
	// project is terminal for the cascade. Regression compares against the
	// persisted status so out-of-engine finalizations survive toggles that
	// leave the count at total.
	var next domain.ProjectStatus
	switch {
	case p.Status == domain.ProjectCancelled:
	case done && total > 0 && completed == total && p.Status != domain.ProjectFinalized:
		next = domain.ProjectFinalized
		res.AllCompleted = true
	case completed < total && p.Status == domain.ProjectFinalized:
		next = domain.ProjectInProgress
	}
	if next != "" {
		if err := e.Repo.UpdateProjectStatusTx(ctx, tx, p.ID, next, e.now().UTC().Format(time.RFC3339)); err != nil {
			return domain.CompletionResult{}, err
		}
		evtType := "project.finalized"
		if next == domain.ProjectInProgress {
			evtType = "project.reopened"
		}
		if err := e.Events.Append(ctx, tx, evtType, p.ID, "project", p.ID, actorID, events.EventPayload{
			"from":      p.Status,
			"to":        next,
			"completed": completed,
			"total":     total,
		}); err != nil {
			return domain.CompletionResult{}, err
		}
		res.NewProjectStatus = &next
	}
	if err := tx.Commit(); err != nil {
		return domain.CompletionResult{}, err
	}
	return res, nil
}

// CancelProject sets the administrative terminal status. The completion
// cascade never produces this transition.
func (e Engine) CancelProject(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return p, err
	}
	if p.Status == domain.ProjectCancelled {
		return p, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProjectStatusTx(ctx, tx, p.ID, domain.ProjectCancelled, now); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "project.cancelled", p.ID, "project", p.ID, actorID, events.EventPayload{"from": p.Status}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = domain.ProjectCancelled
	p.UpdatedAt = now
	return p, nil
}

// SetAssignment names the person answering for one role on a project.
func (e Engine) SetAssignment(ctx context.Context, projectID string, role domain.Role, personID, actorID string) (domain.Assignment, error) {
	if !role.Valid() {
		return domain.Assignment{}, fmt.Errorf("invalid role %s", role)
	}
	if personID == "" {
		return domain.Assignment{}, errors.New("person is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Assignment{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Assignment{
		ProjectID: projectID,
		Role:      role,
		PersonID:  personID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAssignmentTx(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "assignment.set", projectID, "assignment", string(role), actorID, events.EventPayload{"person_id": personID}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// AssignTask sets or clears (nil) the per-task delegate. Distinct from the
// role-level assignment; the cascade never reads it.
func (e Engine) AssignTask(ctx context.Context, projectID, taskID string, assigneeID *string, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.ProjectID != projectID {
		return domain.Task{}, fmt.Errorf("task %s in project %s: %w", taskID, projectID, repo.ErrNotFound)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTaskAssigneeTx(ctx, tx, t.ID, assigneeID, now); err != nil {
		return domain.Task{}, err
	}
	evtType := "task.assigned"
	payload := events.EventPayload{"requirement": t.Requirement}
	if assigneeID == nil || *assigneeID == "" {
		evtType = "task.unassigned"
		t.AssigneeID = nil
	} else {
		payload["assignee_id"] = *assigneeID
		t.AssigneeID = assigneeID
	}
	if err := e.Events.Append(ctx, tx, evtType, t.ProjectID, "task", t.ID, actorID, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.UpdatedAt = now
	return t, nil
}

// ClearAssignment removes a role's responsible person.
func (e Engine) ClearAssignment(ctx context.Context, projectID string, role domain.Role, actorID string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %s", role)
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAssignmentTx(ctx, tx, projectID, role); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "assignment.cleared", projectID, "assignment", string(role), actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// ProgressByRole aggregates task completion per responsible role, one
// bucket per role owning at least one task, in stable role order.
func (e Engine) ProgressByRole(ctx context.Context, projectID string) ([]domain.RoleProgress, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	counts, err := e.Repo.CountTasksByRole(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var res []domain.RoleProgress
	for _, role := range domain.Roles {
		c, ok := counts[role]
		if !ok || c[1] == 0 {
			continue
		}
		res = append(res, domain.RoleProgress{
			Role:      role,
			Completed: c[0],
			Total:     c[1],
			Percent:   100 * float64(c[0]) / float64(c[1]),
		})
	}
	return res, nil
}

func validateDates(validFrom, validTo string) error {
	if validFrom == "" || validTo == "" {
		return errors.New("valid_from and valid_to are required")
	}
	from, err := time.Parse(DateLayout, validFrom)
	if err != nil {
		return fmt.Errorf("invalid valid_from %s", validFrom)
	}
	to, err := time.Parse(DateLayout, validTo)
	if err != nil {
		return fmt.Errorf("invalid valid_to %s", validTo)
	}
	if to.Before(from) {
		return errors.New("valid_to is required to be on or after valid_from")
	}
	return nil
}
