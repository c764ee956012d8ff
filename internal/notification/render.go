package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/k3a/html2text"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Data is the view model shared by every template.
type Data struct {
	LibraryName   string
	RecipientName string
	BookTitle     string
	DueDate       time.Time
	ReturnedAt    time.Time
	DaysOverdue   int
	Penalty       string
	InactiveDays  int
}

// Content is a rendered subject and HTML body.
type Content struct {
	Subject string
	HTML    string
}

var subjects = map[Kind]string{
	KindBorrowConfirmation: `Borrowed: {{.BookTitle}}`,
	KindReturnConfirmation: `Returned: {{.BookTitle}}`,
	KindDueToday:           `"{{.BookTitle}}" is due today`,
	KindDueTomorrow:        `Reminder: "{{.BookTitle}}" is due tomorrow`,
	KindOverduePenalty:     `Overdue: "{{.BookTitle}}" ({{.DaysOverdue}} days, {{.Penalty}})`,
	KindAccountApproval:    `Your {{.LibraryName}} account is approved`,
	KindAccountRejection:   `Your {{.LibraryName}} account request`,
	KindWelcome:            `Welcome to {{.LibraryName}}`,
	KindInactivity:         `We have not seen you at {{.LibraryName}} for a while`,
}

// Renderer renders subjects with text/template and bodies with html/template.
type Renderer struct {
	libraryName string
	subjects    map[Kind]*texttemplate.Template
	bodies      map[Kind]*template.Template
}

// NewRenderer parses the embedded templates for every kind.
func NewRenderer(libraryName string) (*Renderer, error) {
	if libraryName == "" {
		libraryName = "the school library"
	}
	funcs := template.FuncMap{
		"date": func(t time.Time) string { return t.Format("Monday, January 2, 2006") },
	}
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFiles, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	r := &Renderer{
		libraryName: libraryName,
		subjects:    make(map[Kind]*texttemplate.Template, len(allKinds)),
		bodies:      make(map[Kind]*template.Template, len(allKinds)),
	}
	for _, kind := range allKinds {
		subject, ok := subjects[kind]
		if !ok {
			return nil, fmt.Errorf("no subject for kind %s", kind)
		}
		st, err := texttemplate.New(string(kind)).Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject for %s: %w", kind, err)
		}
		r.subjects[kind] = st

		base, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		body, err := base.ParseFS(templateFiles, "templates/"+string(kind)+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse body for %s: %w", kind, err)
		}
		r.bodies[kind] = body
	}
	return r, nil
}

// Render produces the subject and HTML body for kind.
func (r *Renderer) Render(kind Kind, data Data) (Content, error) {
	st, ok := r.subjects[kind]
	if !ok {
		return Content{}, fmt.Errorf("unknown notification kind %q", kind)
	}
	if data.LibraryName == "" {
		data.LibraryName = r.libraryName
	}

	var subject bytes.Buffer
	if err := st.Execute(&subject, data); err != nil {
		return Content{}, fmt.Errorf("failed to render subject: %w", err)
	}
	var body bytes.Buffer
	if err := r.bodies[kind].ExecuteTemplate(&body, "layout.html", data); err != nil {
		return Content{}, fmt.Errorf("failed to render body: %w", err)
	}
	return Content{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    body.String(),
	}, nil
}

// PlainText converts a rendered HTML body to readable text.
func PlainText(html string) string {
	return strings.TrimSpace(html2text.HTML2Text(html))
}
