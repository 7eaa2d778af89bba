// Package books runs the multi-stage book creation pipeline: each stage
// resolves a prompt through a group, calls the generation provider, and
// persists per-unit results that feed later stages.
package books

import "time"

// Book statuses.
const (
	BookDraft      = "draft"
	BookInProgress = "in-progress"
	BookCompleted  = "completed"
)

// Stage result statuses.
const (
	ResultPending   = "pending"
	ResultRunning   = "running"
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

// Book is one creation task bound to a prompt group.
type Book struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	GroupID   string    `json:"group_id"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageResult is the outcome of one generation unit within a stage. Stages
// that run once have an empty UnitKey; looped stages get one row per unit.
type StageResult struct {
	ID           string            `json:"id"`
	BookID       string            `json:"book_id"`
	StageType    string            `json:"stage_type"`
	UnitKey      string            `json:"unit_key,omitempty"`
	Status       string            `json:"status"`
	InputParams  map[string]string `json:"input_params,omitempty"`
	RawOutput    string            `json:"raw_output,omitempty"`
	ParsedOutput string            `json:"parsed_output,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StageRun summarizes one execution of a stage across its units.
type StageRun struct {
	BookID    string         `json:"book_id"`
	StageType string         `json:"stage_type"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []*StageResult `json:"results"`
}
