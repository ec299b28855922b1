package rules

import (
	"bytes"
	"fmt"
	"html/template"
)

// RenderForm executes a variant's form template against the populated form
// context. Templates are parsed once by the variant.
func RenderForm(tmpl *template.Template, formCtx map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, formCtx); err != nil {
		return "", fmt.Errorf("render form %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
