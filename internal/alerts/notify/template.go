package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Plant Condition {{.DirectionLabel}}]
Site: {{.Site}} ({{.SiteNum}})
Plant: {{.Plant}}
{{ if .Region }}Region: {{.Region}}
{{ end }}Condition: {{.PreviousLabel}} -> {{.CurrentLabel}}
Submitted By: {{.Submitter}}
Time: {{.Time}}
Suggestion: {{.Suggestion}}
{{ if .LogItemID }}
Log Item: {{.LogItemID}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Site           string
	SiteID         string
	SiteNum        string
	Plant          string
	PlantID        string
	Region         string
	Previous       int
	Current        int
	PreviousLabel  string
	CurrentLabel   string
	Direction      string
	DirectionLabel string
	Submitter      string
	Time           string
	Suggestion     string
	LogItemID      string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("condition-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("condition template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
