// Package artifact persists a run's files under the stable layout
// spec.md §3 defines (plan, per-task prompt docs, per-task results and
// logs, dependency-merge and integration-merge records, the run summary)
// and maintains the supplemental SQLite run ledger.
//
// Grounded on internal/logger/file.go's append-only file logging style for
// the write-then-fsync discipline, internal/filelock.AtomicWrite for the
// temp-file-plus-rename primitive every JSON/Markdown write uses, and
// internal/parser/markdown.go's use of goldmark as a well-formedness check
// on generated Markdown: a document that fails to parse as CommonMark is a
// writer bug, not something worth persisting anyway.
package artifact

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"text/template"

	"github.com/yuin/goldmark"

	"github.com/harrison/auto-codex/internal/filelock"
	"github.com/harrison/auto-codex/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed schemas/*.json
var schemaFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Writer persists artifacts for a single run under Paths.
type Writer struct {
	Paths models.RunPaths
}

// NewWriter returns a Writer rooted at paths.
func NewWriter(paths models.RunPaths) *Writer {
	return &Writer{Paths: paths}
}

// WritePlan persists the validated plan as plan.json.
func (w *Writer) WritePlan(plan *models.Plan) error {
	return writeJSON(w.Paths.PlanJSON(), plan)
}

// WriteGoalDoc renders GOAL.md from the plan.
func (w *Writer) WriteGoalDoc(plan *models.Plan) error {
	return renderMarkdown(w.Paths.GoalDoc(), "goal.md.tmpl", plan)
}

// WriteTaskDoc renders a per-task prompt document.
func (w *Writer) WriteTaskDoc(task models.Task) error {
	data := struct{ Task models.Task }{Task: task}
	return renderMarkdown(w.Paths.TaskDoc(task.ID), "task.md.tmpl", data)
}

// WriteSummary renders SUMMARY.md for a finished run.
func (w *Writer) WriteSummary(summary *models.RunSummary) error {
	return renderMarkdown(w.Paths.SummaryDoc(), "summary.md.tmpl", summary)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := filelock.LockAndWrite(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func renderMarkdown(path, templateName string, data interface{}) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}

	var discard bytes.Buffer
	if err := goldmark.Convert(buf.Bytes(), io.Writer(&discard)); err != nil {
		return fmt.Errorf("generated document %s is not well-formed CommonMark: %w", path, err)
	}

	if err := filelock.LockAndWrite(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// DefaultSchema returns the embedded default content for one of the three
// output-schema documents `init` scaffolds: "plan", "task", or "merge".
func DefaultSchema(name string) ([]byte, error) {
	return schemaFS.ReadFile("schemas/" + name + ".schema.json")
}
