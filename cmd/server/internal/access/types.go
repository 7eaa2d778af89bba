// Package access manages who may use gated prompts: explicit permission
// grants and the application/review workflow.
package access

import "time"

// Application states. Approved and rejected are terminal.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// Permission grants one user one action on one prompt.
type Permission struct {
	ID        string    `json:"id"`
	PromptID  string    `json:"prompt_id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Application is a user's request to use a gated prompt.
type Application struct {
	ID         string     `json:"id"`
	PromptID   string     `json:"prompt_id"`
	UserID     string     `json:"user_id"`
	Reason     string     `json:"reason,omitempty"`
	Status     string     `json:"status"`
	ReviewerID string     `json:"reviewer_id,omitempty"`
	ReviewNote string     `json:"review_note,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
