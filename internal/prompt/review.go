// Package prompt composes the messages sent to the completion API for an
// editorial review.
package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Instruction is the fixed system instruction.
const Instruction = "Você é a Risa, assistente de revisão da Goya Conteúdo."

// TemplateDir holds optional overrides (system.tmpl, user.tmpl) that replace
// the built-in templates when present.
var TemplateDir = "templates/prompt"

// Review is the data embedded in the user message.
type Review struct {
	Title   string
	Client  string
	JobType string
	Brief   string
	Author  string
	Text    string
}

// System returns the system instruction, with the client's style guide
// appended when one exists.
func System(styleGuide string) string {
	data := map[string]any{
		"Instruction": Instruction,
		"StyleGuide":  strings.TrimSpace(styleGuide),
	}
	if out, ok := renderTemplateFile(filepath.Join(TemplateDir, "system.tmpl"), data); ok {
		return out
	}
	return renderTemplateString(defaultSystemTemplate, data)
}

// User returns the user message for a review.
func User(r Review) string {
	if out, ok := renderTemplateFile(filepath.Join(TemplateDir, "user.tmpl"), r); ok {
		return out
	}
	return renderTemplateString(defaultUserTemplate, r)
}

func renderTemplateFile(path string, data any) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	t, err := template.New(filepath.Base(path)).Parse(string(b))
	if err != nil {
		return "", false
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", false
	}
	return sb.String(), true
}

func renderTemplateString(tmpl string, data any) string {
	t := template.Must(template.New("prompt").Parse(tmpl))
	var sb strings.Builder
	_ = t.Execute(&sb, data)
	return sb.String()
}

const defaultSystemTemplate = `{{.Instruction}}
{{- if .StyleGuide}}

Diretrizes editoriais do cliente:
{{.StyleGuide}}
{{- end}}`

const defaultUserTemplate = `Título: {{.Title}}
Cliente: {{.Client}}
Tipo de Job: {{.JobType}}
Briefing: {{.Brief}}
Redator: {{.Author}}

Texto:
{{.Text}}

Revise o conteúdo acima conforme as diretrizes editoriais da Goya Conteúdo.`
