package server

import (
	"encoding/json"

	"accredo/internal/config"
	"accredo/internal/domain"
)

// Requests

type CreateWorkerRequest struct {
	ID      *string `json:"id,omitempty"`
	Name    string  `json:"name"`
	Company *string `json:"company,omitempty"`
}

type CreateRequirementTypeRequest struct {
	ID           *string `json:"id,omitempty"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	ValidityDays *int    `json:"validity_days,omitempty"`
}

type CreateRecordRequest struct {
	WorkerID  string `json:"worker_id"`
	TypeID    string `json:"type_id"`
	ValidFrom string `json:"valid_from" format:"date"`
	ValidTo   string `json:"valid_to" format:"date"`
}

type UpdateRecordRequest struct {
	ValidFrom    string  `json:"valid_from" format:"date"`
	ValidTo      string  `json:"valid_to" format:"date"`
	ManualStatus *string `json:"manual_status,omitempty" enum:"current,expiring,expired,in_renewal,"`
}

type ProvisionProjectRequest struct {
	ID     *string `json:"id,omitempty"`
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Client *string `json:"client,omitempty"`
	Plan   *string `json:"plan,omitempty"`
}

type SetCompletionRequest struct {
	Done bool `json:"done"`
}

type SetAssignmentRequest struct {
	PersonID string `json:"person_id"`
}

type SetTaskAssigneeRequest struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
}

// Responses

type WorkerResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Company   string `json:"company,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type RequirementTypeResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	ValidityDays int    `json:"validity_days"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type RecordResponse struct {
	ID           string  `json:"id"`
	WorkerID     string  `json:"worker_id"`
	TypeID       string  `json:"type_id"`
	Category     string  `json:"category"`
	ValidFrom    string  `json:"valid_from,omitempty" format:"date"`
	ValidTo      string  `json:"valid_to,omitempty" format:"date"`
	ManualStatus *string `json:"manual_status,omitempty"`
	Status       string  `json:"status" enum:"current,expiring,expired,in_renewal"`
	LeadDays     int     `json:"lead_days"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type ProjectResponse struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Client    string `json:"client,omitempty"`
	Status    string `json:"status" enum:"pending,in_progress,finalized,cancelled"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Role        string  `json:"role" enum:"safety,hr,admin,operations"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	WorkerID    *string `json:"worker_id,omitempty"`
	Requirement string  `json:"requirement"`
	Category    string  `json:"category"`
	Done        bool    `json:"done"`
	CompletedOn *string `json:"completed_on,omitempty" format:"date"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type CompletionResponse struct {
	Task             TaskResponse `json:"task"`
	Total            int          `json:"total"`
	Completed        int          `json:"completed"`
	AllCompleted     bool         `json:"all_completed"`
	NewProjectStatus *string      `json:"new_project_status,omitempty" enum:"pending,in_progress,finalized,cancelled"`
}

type AssignmentResponse struct {
	ProjectID string `json:"project_id"`
	Role      string `json:"role" enum:"safety,hr,admin,operations"`
	PersonID  string `json:"person_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type RoleProgressResponse struct {
	Role      string  `json:"role" enum:"safety,hr,admin,operations"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type ConfigResponse struct {
	ExpiringWindowDays int                       `json:"expiring_window_days"`
	Roles              map[string]string         `json:"roles"`
	Requirements       map[string]requirementRef `json:"requirements"`
	Plans              map[string][]planTaskRef  `json:"plans"`
}

type requirementRef struct {
	Category     string `json:"category"`
	ValidityDays int    `json:"validity_days,omitempty"`
}

type planTaskRef struct {
	Requirement string `json:"requirement"`
	Role        string `json:"role" enum:"safety,hr,admin,operations"`
}

type paginatedRecords struct {
	Items      []RecordResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func workerResponse(w domain.Worker) WorkerResponse {
	return WorkerResponse(w)
}

func typeResponse(t domain.RequirementType) RequirementTypeResponse {
	return RequirementTypeResponse(t)
}

func recordResponse(rec domain.RequirementRecord) RecordResponse {
	var manual *string
	if rec.ManualStatus != nil {
		s := string(*rec.ManualStatus)
		manual = &s
	}
	return RecordResponse{
		ID:           rec.ID,
		WorkerID:     rec.WorkerID,
		TypeID:       rec.TypeID,
		Category:     rec.Category,
		ValidFrom:    rec.ValidFrom,
		ValidTo:      rec.ValidTo,
		ManualStatus: manual,
		Status:       string(rec.Status),
		LeadDays:     rec.LeadDays,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Code:      p.Code,
		Name:      p.Name,
		Client:    p.Client,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Role:        string(t.Role),
		AssigneeID:  t.AssigneeID,
		WorkerID:    t.WorkerID,
		Requirement: t.Requirement,
		Category:    t.Category,
		Done:        t.Done,
		CompletedOn: t.CompletedOn,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func completionResponse(res domain.CompletionResult) CompletionResponse {
	var next *string
	if res.NewProjectStatus != nil {
		s := string(*res.NewProjectStatus)
		next = &s
	}
	return CompletionResponse{
		Task:             taskResponse(res.Task),
		Total:            res.Total,
		Completed:        res.Completed,
		AllCompleted:     res.AllCompleted,
		NewProjectStatus: next,
	}
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ProjectID: a.ProjectID,
		Role:      string(a.Role),
		PersonID:  a.PersonID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func progressResponse(items []domain.RoleProgress) []RoleProgressResponse {
	res := make([]RoleProgressResponse, 0, len(items))
	for _, rp := range items {
		res = append(res, RoleProgressResponse{
			Role:      string(rp.Role),
			Completed: rp.Completed,
			Total:     rp.Total,
			Percent:   rp.Percent,
		})
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) ConfigResponse {
	res := ConfigResponse{
		ExpiringWindowDays: cfg.ExpiringWindowDays(),
		Roles:              map[string]string{},
		Requirements:       map[string]requirementRef{},
		Plans:              map[string][]planTaskRef{},
	}
	for name, spec := range cfg.Roles.Catalog {
		res.Roles[name] = spec.Description
	}
	for key, spec := range cfg.Requirements.Catalog {
		res.Requirements[key] = requirementRef{
			Category:     spec.Category,
			ValidityDays: spec.ValidityDays,
		}
	}
	for name, plan := range cfg.Plans {
		tasks := make([]planTaskRef, 0, len(plan.Tasks))
		for _, pt := range plan.Tasks {
			tasks = append(tasks, planTaskRef{Requirement: pt.Requirement, Role: pt.Role})
		}
		res.Plans[name] = tasks
	}
	return res
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapRecords(items []domain.RequirementRecord) []RecordResponse {
	res := make([]RecordResponse, 0, len(items))
	for _, rec := range items {
		res = append(res, recordResponse(rec))
	}
	return res
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
