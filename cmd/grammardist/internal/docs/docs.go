// Package docs renders the grammar table into the README template.
package docs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/detect"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/manifest"
	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/pkg/config"
)

// Check is the table mark for a present component.
const Check = "✓"

// ErrNoPlaceholder is returned when a template lacks the placeholder token.
var ErrNoPlaceholder = errors.New("template does not contain the placeholder")

// Row is one grammar line of the table.
type Row struct {
	Name       string
	Path       string
	Components detect.Presence
}

// Rows builds one row per grammar in manifest order. With
// config.PresenceDeclared the marks come from the grammar sources; otherwise
// they reflect artifacts found under distRoot.
func Rows(grammars []manifest.Grammar, presence, distRoot, ext string) ([]Row, error) {
	rows := make([]Row, 0, len(grammars))
	for _, g := range grammars {
		var (
			found detect.Presence
			err   error
		)
		if presence == config.PresenceDeclared {
			found = declared(g)
		} else {
			found, err = detect.Components(distRoot, g.BaseDir, ext)
			if err != nil {
				return nil, err
			}
		}
		rows = append(rows, Row{Name: g.Name, Path: g.BaseDir, Components: found})
	}
	return rows, nil
}

func declared(g manifest.Grammar) detect.Presence {
	p := make(detect.Presence)
	for _, c := range g.Components() {
		p[c] = true
	}
	return p
}

// RenderTable renders rows as a Markdown table. The output depends only on
// rows.
func RenderTable(rows []Row) string {
	var sb strings.Builder

	sb.WriteString("| Grammar | Path |")
	for _, c := range langs.Components {
		sb.WriteString(" " + string(c) + " |")
	}
	sb.WriteString("\n|---|---|")
	for range langs.Components {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")

	for _, r := range rows {
		fmt.Fprintf(&sb, "| %s | %s |", escapeCell(r.Name), escapeCell(r.Path))
		for _, c := range langs.Components {
			if r.Components.Has(c) {
				sb.WriteString(" " + Check + " |")
			} else {
				sb.WriteString("  |")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Substitute replaces every occurrence of token in template with table and
// leaves all other text unchanged.
func Substitute(template, token, table string) (string, error) {
	if token == "" || !strings.Contains(template, token) {
		return "", fmt.Errorf("%w %q", ErrNoPlaceholder, token)
	}
	return strings.ReplaceAll(template, token, table), nil
}

// Render reads the template, substitutes the table and overwrites out.
func Render(templatePath, out, token string, rows []Row) error {
	tmpl, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	content, err := Substitute(string(tmpl), token, RenderTable(rows))
	if err != nil {
		return fmt.Errorf("%s: %w", templatePath, err)
	}

	if err := fsutil.WriteFileAtomic(out, []byte(content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}
