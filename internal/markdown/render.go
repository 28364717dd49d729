// Package markdown converts Markdown bodies into HTML fragments.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/verkaro/editml-go"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownConverter = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			// Docs may embed raw HTML; sanitizing is opt-in.
			html.WithUnsafe(),
		),
	)
	htmlSanitizer = bluemonday.UGCPolicy()
)

// Renderer turns Markdown into an HTML fragment. A Renderer is safe for
// concurrent use.
type Renderer struct {
	postProcess func(string) string
	sanitize    bool
	editML      bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithPostProcess attaches a hook that receives the full rendered HTML and
// returns the string that replaces it.
func WithPostProcess(fn func(string) string) Option {
	return func(r *Renderer) { r.postProcess = fn }
}

// WithSanitize runs the output through bluemonday's UGC policy before the
// post-process hook.
func WithSanitize(on bool) Option {
	return func(r *Renderer) { r.sanitize = on }
}

// WithEditML resolves EditML edit markup to its clean view before conversion.
func WithEditML(on bool) Option {
	return func(r *Renderer) { r.editML = on }
}

// New builds a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render converts body to HTML.
func (r *Renderer) Render(body string) (string, error) {
	if r.editML {
		clean, err := cleanEditML(body)
		if err != nil {
			return "", err
		}
		body = clean
	}

	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown with goldmark: %w", err)
	}

	out := buf.String()
	if r.sanitize {
		out = htmlSanitizer.Sanitize(out)
	}
	if r.postProcess != nil {
		out = r.postProcess(out)
	}
	return out, nil
}

// cleanEditML accepts all proposed edits and drops comments and highlights.
func cleanEditML(raw string) (string, error) {
	nodes, parseIssues := editml.Parse(raw)
	if len(parseIssues) > 0 && parseIssues[0].Severity == editml.SeverityError {
		return "", fmt.Errorf("editml parsing error: %s", parseIssues[0].Message)
	}
	clean, transformIssues := editml.TransformCleanView(nodes)
	if len(transformIssues) > 0 && transformIssues[0].Severity == editml.SeverityError {
		return "", fmt.Errorf("editml transformation error: %s", transformIssues[0].Message)
	}
	return clean, nil
}
