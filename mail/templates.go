package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/MrEthical07/carebook"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[string]string{
	carebook.TemplateOTP:       "Your Carebook sign-in code",
	carebook.TemplateMagicLink: "Your Carebook sign-in link",
	carebook.TemplateWelcome:   "Welcome to Carebook",
}

// Renderer turns a template name and its data into a Message.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates. Each page is the shared layout
// with its own body block.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(subjects))}
	for name := range subjects {
		t, err := template.New(name).Option("missingkey=error").ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes the named template. Unknown names and missing data keys
// are errors.
func (r *Renderer) Render(to, name string, data map[string]string) (Message, error) {
	page, ok := r.pages[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}

	return Message{
		To:       to,
		Subject:  subjects[name],
		HTML:     buf.String(),
		Template: name,
	}, nil
}
