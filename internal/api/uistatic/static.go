package uistatic

import (
	"embed"
	"html/template"

	"github.com/askql/askql/internal/present"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template parses the question form page.
func Template() (*template.Template, error) {
	return template.New("index.html").Funcs(template.FuncMap{
		"cell": present.Cell,
	}).ParseFS(templateFS, "templates/index.html")
}
