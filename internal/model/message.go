// internal/model/message.go
package model

// Template body formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// MessageTemplate is the subject/body pair supplied once per campaign run.
type MessageTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Format  string `json:"format,omitempty"` // text, markdown
}

// RenderedMessage is a template resolved for a single recipient.
type RenderedMessage struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body,omitempty"`
}
