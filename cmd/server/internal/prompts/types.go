package prompts

import "time"

// Status values for a prompt's lifecycle.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Content roles, matching the chat-message roles of the generation provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content kinds. Character and worldview blocks are slots the book pipeline
// fills with project-level material.
const (
	KindText      = "text"
	KindCharacter = "character"
	KindWorldview = "worldview"
)

// Actions grantable on a prompt.
const (
	ActionView = "view"
	ActionUse  = "use"
	ActionEdit = "edit"
)

// Prompt is a reusable, parameterized template sent to the generation provider.
type Prompt struct {
	ID                 string    `json:"id"`
	AuthorID           string    `json:"author_id"`
	CategoryID         string    `json:"category_id,omitempty"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	Status             string    `json:"status"`
	IsPublic           bool      `json:"is_public"`
	IsContentPublic    bool      `json:"is_content_public"`
	RequireApplication bool      `json:"require_application"`
	IsBanned           bool      `json:"is_banned"`
	BanReason          string    `json:"ban_reason,omitempty"`
	ViewCount          int       `json:"view_count"`
	UseCount           int       `json:"use_count"`
	LikeCount          int       `json:"like_count"`
	Contents           []Content `json:"contents,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HotValue is the derived popularity score used for ranking.
func (p *Prompt) HotValue() int {
	return p.ViewCount + p.UseCount*5 + p.LikeCount*10
}

// Content is one role-tagged block of a prompt's template text.
type Content struct {
	ID         string      `json:"id"`
	PromptID   string      `json:"prompt_id"`
	Role       string      `json:"role"`
	Kind       string      `json:"kind"`
	SortOrder  int         `json:"sort_order"`
	Enabled    bool        `json:"enabled"`
	Text       string      `json:"text"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter describes one named placeholder in a content block. The list is
// derived by scanning the block's text; only Description and Required carry
// author overrides.
type Parameter struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Category groups prompts for browsing.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidRole reports whether role is one of the chat-message roles.
func ValidRole(role string) bool {
	return role == RoleSystem || role == RoleUser || role == RoleAssistant
}

// ValidStatus reports whether status is a known lifecycle state.
func ValidStatus(status string) bool {
	return status == StatusDraft || status == StatusPublished || status == StatusArchived
}
