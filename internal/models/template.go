package models

// Template represents reusable phishing email content
type Template struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Subject       string `json:"subject"`
	BodyContent   string `json:"body_content"` // HTML
	IsAIGenerated bool   `json:"is_ai_generated"`
	CreatedBy     *int64 `json:"created_by"`
}

// TemplateUpdate holds the fields a partial update may change.
// Nil fields are left untouched.
type TemplateUpdate struct {
	Name        *string
	Subject     *string
	BodyContent *string
}

// DefaultTemplateName is used when a template is saved without a name
const DefaultTemplateName = "Untitled"
