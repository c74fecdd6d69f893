package intent

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

const priceTemplate = `{{.Intro}}
{{range .Items}}
• {{.Name}}: {{.Price}}{{if .Note}} ({{.Note}}){{end}}{{end}}
{{if .Footer}}
{{.Footer}}{{end}}`

// Matcher answers price questions from the catalog without calling the
// completion API.
//
// Matching is a case-insensitive substring test, so a keyword embedded in an
// unrelated word also triggers the shortcut.
type Matcher struct {
	keywords []string
	reply    string
}

func NewMatcher(c Catalog) (*Matcher, error) {
	if len(c.Items) == 0 {
		return nil, errors.New("intent: catalog has no items")
	}
	tmpl, err := template.New("price").Option("missingkey=error").Parse(priceTemplate)
	if err != nil {
		return nil, fmt.Errorf("intent: parse template: %w", err)
	}
	var b bytes.Buffer
	if err := tmpl.Execute(&b, c); err != nil {
		return nil, fmt.Errorf("intent: render reply: %w", err)
	}

	m := &Matcher{reply: strings.TrimSpace(b.String())}
	for _, k := range c.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m.keywords = append(m.keywords, k)
		}
	}
	return m, nil
}

// Match returns the canned price reply when text contains any keyword.
func (m *Matcher) Match(text string) (string, bool) {
	if m == nil || text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, k := range m.keywords {
		if strings.Contains(lower, k) {
			return m.reply, true
		}
	}
	return "", false
}
