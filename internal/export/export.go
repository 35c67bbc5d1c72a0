// ABOUTME: HTML transcript export of stored exchanges.
// ABOUTME: Answers and reasoning are markdown, rendered with goldmark.

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"github.com/christopher-kapic/kinetic-context/internal/store"
)

// Transcript is the data rendered into one HTML document.
type Transcript struct {
	RepoKey     string
	GeneratedAt time.Time
	Entries     []Entry
}

// Entry is one exchange prepared for rendering.
type Entry struct {
	Question  string
	Answer    template.HTML
	Reasoning template.HTML
	SessionID string
	AskedAt   time.Time
}

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>kctx transcript: {{.RepoKey}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; }
.exchange { border-top: 1px solid #ddd; padding: 1rem 0; }
.question { font-weight: 600; }
.meta { color: #777; font-size: 0.8rem; margin: 0.25rem 0 0.75rem; }
details { margin-top: 0.75rem; }
summary { cursor: pointer; color: #555; }
.reasoning { color: #555; font-size: 0.9rem; border-left: 3px solid #ddd; padding-left: 0.75rem; }
pre { background: #f6f6f6; padding: 0.75rem; overflow-x: auto; border-radius: 4px; }
code { background: #f6f6f6; padding: 0 0.2rem; border-radius: 3px; }
</style>
</head>
<body>
<h1>kctx transcript: {{.RepoKey}}</h1>
<p class="meta">generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}} &middot; {{len .Entries}} exchanges</p>
{{range .Entries}}
<div class="exchange">
<div class="question">{{.Question}}</div>
<div class="meta">{{.AskedAt.Format "2006-01-02 15:04"}} &middot; session {{.SessionID}}</div>
<div class="answer">{{.Answer}}</div>
{{if .Reasoning}}<details><summary>reasoning trace</summary><div class="reasoning">{{.Reasoning}}</div></details>{{end}}
</div>
{{end}}
</body>
</html>
`))

// WriteTranscript renders the exchanges for one repository as a
// self-contained HTML document.
func WriteTranscript(w io.Writer, repoKey string, exchanges []*store.Exchange) error {
	transcript := Transcript{
		RepoKey:     repoKey,
		GeneratedAt: time.Now(),
		Entries:     make([]Entry, 0, len(exchanges)),
	}

	for _, ex := range exchanges {
		answer, err := renderMarkdown(ex.Answer)
		if err != nil {
			return fmt.Errorf("rendering answer for exchange %s: %w", ex.ID, err)
		}
		var reasoning template.HTML
		if ex.Reasoning != "" {
			reasoning, err = renderMarkdown(ex.Reasoning)
			if err != nil {
				return fmt.Errorf("rendering reasoning for exchange %s: %w", ex.ID, err)
			}
		}
		transcript.Entries = append(transcript.Entries, Entry{
			Question:  ex.Question,
			Answer:    answer,
			Reasoning: reasoning,
			SessionID: ex.SessionID,
			AskedAt:   ex.CreatedAt,
		})
	}

	if err := transcriptTemplate.Execute(w, transcript); err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}
	return nil
}

func renderMarkdown(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
