package domain

// RecordStatus is the lifecycle status of a requirement record.
type RecordStatus string

const (
	RecordCurrent  RecordStatus = "current"
	RecordExpiring RecordStatus = "expiring"
	RecordExpired  RecordStatus = "expired"
	// RecordInRenewal is never computed from dates; it only exists as a
	// manual override while a replacement document is being processed.
	RecordInRenewal RecordStatus = "in_renewal"
)

func (s RecordStatus) Valid() bool {
	switch s {
	case RecordCurrent, RecordExpiring, RecordExpired, RecordInRenewal:
		return true
	}
	return false
}

// ProjectStatus is the aggregate status of a project.
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectFinalized  ProjectStatus = "finalized"
	// ProjectCancelled is terminal and only reachable through the
	// administrative cancel path, never through the completion cascade.
	ProjectCancelled ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPending, ProjectInProgress, ProjectFinalized, ProjectCancelled:
		return true
	}
	return false
}

// Role is a responsible role inside a project. The set is closed.
type Role string

const (
	RoleSafety     Role = "safety"
	RoleHR         Role = "hr"
	RoleAdmin      Role = "admin"
	RoleOperations Role = "operations"
)

// Roles lists all roles in stable display order.
var Roles = []Role{RoleSafety, RoleHR, RoleAdmin, RoleOperations}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

type Worker struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Company   string `json:"company,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type RequirementType struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	ValidityDays int    `json:"validity_days"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// RequirementRecord is one worker's dated instance of a requirement type.
// Dates are date-only strings (2006-01-02). Status holds the value
// materialized on the last write; readers without a manual override must
// reclassify against the current date instead of trusting it.
type RequirementRecord struct {
	ID           string        `json:"id"`
	WorkerID     string        `json:"worker_id"`
	TypeID       string        `json:"type_id"`
	Category     string        `json:"category"`
	ValidFrom    string        `json:"valid_from,omitempty" format:"date"`
	ValidTo      string        `json:"valid_to,omitempty" format:"date"`
	ManualStatus *RecordStatus `json:"manual_status,omitempty"`
	Status       RecordStatus  `json:"status" enum:"current,expiring,expired,in_renewal"`
	LeadDays     int           `json:"lead_days"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
	UpdatedAt    string        `json:"updated_at" format:"date-time"`
}

// Task binds a requirement to a responsible role inside a project.
// Requirement and Category reference the catalog by value, not by key;
// the record and task lifecycles are decoupled on purpose.
type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Role        Role    `json:"role" enum:"safety,hr,admin,operations"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	WorkerID    *string `json:"worker_id,omitempty"`
	Requirement string  `json:"requirement"`
	Category    string  `json:"category"`
	Done        bool    `json:"done"`
	CompletedOn *string `json:"completed_on,omitempty" format:"date"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID        string        `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Client    string        `json:"client,omitempty"`
	Status    ProjectStatus `json:"status" enum:"pending,in_progress,finalized,cancelled"`
	CreatedAt string        `json:"created_at" format:"date-time"`
	UpdatedAt string        `json:"updated_at" format:"date-time"`
}

// Assignment names the person answering for one role on one project.
type Assignment struct {
	ProjectID string `json:"project_id"`
	Role      Role   `json:"role" enum:"safety,hr,admin,operations"`
	PersonID  string `json:"person_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// CompletionResult reports what a single task toggle did to its project.
// NewProjectStatus is nil when the toggle did not cross a project boundary;
// callers use AllCompleted to decide whether to raise the one-shot
// "project completed" notification.
type CompletionResult struct {
	Task             Task           `json:"task"`
	Total            int            `json:"total"`
	Completed        int            `json:"completed"`
	AllCompleted     bool           `json:"all_completed"`
	NewProjectStatus *ProjectStatus `json:"new_project_status,omitempty" enum:"pending,in_progress,finalized,cancelled"`
}

// RoleProgress is one dashboard bucket: task counts for a role that owns at
// least one task in the project. Percent is only meaningful when Total > 0,
// which holds by construction since buckets exist only for assigned roles.
type RoleProgress struct {
	Role      Role    `json:"role" enum:"safety,hr,admin,operations"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
