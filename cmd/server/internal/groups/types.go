// Package groups holds ordered stage-to-prompt bindings for the book
// creation pipeline and resolves a stage into ready-to-send messages.
package groups

import "time"

// Stage types, in pipeline order.
const (
	StageIdea            = "idea"
	StageTitle           = "title"
	StageOutlineMain     = "outline-main"
	StageOutlineVolume   = "outline-volume"
	StageOutlineChapter  = "outline-chapter"
	StageContent         = "content"
	StageReview          = "review"
	StageOptimizeContent = "optimize-content"
)

// Expected output shapes a stage may declare.
const (
	ShapeText       = "text"
	ShapeJSONArray  = "json-array"
	ShapeJSONObject = "json-object"
)

var stageShapes = map[string]string{
	StageIdea:            ShapeText,
	StageTitle:           ShapeJSONArray,
	StageOutlineMain:     ShapeJSONArray,
	StageOutlineVolume:   ShapeJSONArray,
	StageOutlineChapter:  ShapeJSONArray,
	StageContent:         ShapeText,
	StageReview:          ShapeText,
	StageOptimizeContent: ShapeText,
}

// ValidStage reports whether stageType is one of the fixed stage types.
func ValidStage(stageType string) bool {
	_, ok := stageShapes[stageType]
	return ok
}

// StageShape returns the declared output shape for a stage type.
func StageShape(stageType string) string {
	if shape, ok := stageShapes[stageType]; ok {
		return shape
	}
	return ShapeText
}

// PromptGroup is an ordered, validated set of stage bindings.
type PromptGroup struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item binds one stage type to one prompt.
type Item struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	PromptID   string `json:"prompt_id"`
	StageType  string `json:"stage_type"`
	IsRequired bool   `json:"is_required"`
	SortOrder  int    `json:"sort_order"`
}

// ItemForStage returns the binding for stageType, if present.
func (g *PromptGroup) ItemForStage(stageType string) (Item, bool) {
	for _, it := range g.Items {
		if it.StageType == stageType {
			return it, true
		}
	}
	return Item{}, false
}
