// internal/service/template_service.go
package service

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

// Placeholders resolved before recipient fields.
const (
	PlaceholderUnsubscribe = "unsubscribe_link"
	PlaceholderEmail       = "email"
)

// {{ and }} are escaped braces; {name} is a placeholder.
var placeholderRe = regexp.MustCompile(`\{\{|\}\}|\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Renderer fills message templates with recipient data.
// It holds no mutable state and is safe for concurrent use.
type Renderer struct {
	// Globals are shared values such as company_name.
	Globals         map[string]string
	UnsubscribeLink string

	markdown goldmark.Markdown
}

func NewRenderer(globals map[string]string, unsubscribeLink string) *Renderer {
	g := make(map[string]string, len(globals))
	for k, v := range globals {
		g[strings.ToLower(k)] = v
	}
	return &Renderer{
		Globals:         g,
		UnsubscribeLink: unsubscribeLink,
		markdown:        goldmark.New(),
	}
}

// Render resolves every placeholder in tmpl for r. The first placeholder that
// cannot be resolved, subject before body, is returned as a RenderError.
func (rd *Renderer) Render(tmpl model.MessageTemplate, r model.Recipient) (model.RenderedMessage, error) {
	subject, err := rd.fill(tmpl.Subject, r)
	if err != nil {
		return model.RenderedMessage{}, err
	}
	body, err := rd.fill(tmpl.Body, r)
	if err != nil {
		return model.RenderedMessage{}, err
	}

	msg := model.RenderedMessage{
		To:       strings.TrimSpace(r.Address),
		Subject:  subject,
		TextBody: body,
	}

	if strings.EqualFold(tmpl.Format, model.FormatMarkdown) {
		var buf bytes.Buffer
		md := rd.markdown
		if md == nil {
			md = goldmark.New()
		}
		if err := md.Convert([]byte(body), &buf); err != nil {
			return model.RenderedMessage{}, fmt.Errorf("render markdown: %w", err)
		}
		msg.HTMLBody = buf.String()
	}

	return msg, nil
}

func (rd *Renderer) fill(text string, r model.Recipient) (string, error) {
	var (
		sb   strings.Builder
		last int
	)
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		sb.WriteString(text[last:m[0]])
		last = m[1]

		switch token := text[m[0]:m[1]]; token {
		case "{{":
			sb.WriteByte('{')
		case "}}":
			sb.WriteByte('}')
		default:
			name := text[m[2]:m[3]]
			value, ok := rd.lookup(name, r)
			if !ok {
				return "", &appErrors.RenderError{Token: name}
			}
			sb.WriteString(value)
		}
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}

func (rd *Renderer) lookup(name string, r model.Recipient) (string, bool) {
	key := strings.ToLower(name)
	switch key {
	case PlaceholderUnsubscribe:
		return rd.UnsubscribeLink, true
	case PlaceholderEmail:
		return strings.TrimSpace(r.Address), true
	}
	if v, ok := r.Fields[key]; ok {
		return v, true
	}
	for k, v := range r.Fields {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	if v, ok := rd.Globals[key]; ok {
		return v, true
	}
	return "", false
}

// Placeholders lists the distinct placeholder names in text in order of appearance.
func Placeholders(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if m[1] == "" || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}
