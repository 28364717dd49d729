// Package frontmatter separates a YAML front-matter block from a Markdown body.
package frontmatter

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	delimiter   = "---"
	documentEnd = "..."
	bom         = "\ufeff"
)

// ErrMissingClosingDelimiter indicates the document opened a front-matter
// block but never closed it.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

// ParseError reports a malformed front-matter block.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "invalid front matter: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Result is a document split into its attributes and remaining body.
type Result struct {
	Attributes map[string]any
	Body       string
}

// Parse splits raw into front-matter attributes and body.
//
// A block opens with a first line of exactly "---" and closes at the next
// line reading "---" or "...". Without an opening line the attributes are
// empty and the body is raw, unchanged.
func Parse(raw string) (Result, error) {
	s := strings.TrimPrefix(raw, bom)

	first, rest, hasNewline := strings.Cut(s, "\n")
	if strings.TrimSuffix(first, "\r") != delimiter {
		return Result{Attributes: map[string]any{}, Body: raw}, nil
	}
	if !hasNewline {
		return Result{}, &ParseError{Err: ErrMissingClosingDelimiter}
	}

	block, body, ok := splitAtClose(rest)
	if !ok {
		return Result{}, &ParseError{Err: ErrMissingClosingDelimiter}
	}

	attrs, err := ParseYAML(block)
	if err != nil {
		return Result{}, &ParseError{Err: err}
	}
	return Result{Attributes: attrs, Body: body}, nil
}

// splitAtClose finds the closing delimiter line in s and returns the YAML
// before it and the body after it.
func splitAtClose(s string) (block, body string, ok bool) {
	pos := 0
	for pos <= len(s) {
		line := s[pos:]
		next := len(s)
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
			next = pos + i + 1
		}
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == delimiter || trimmed == documentEnd {
			return s[:pos], s[next:], true
		}
		if next == len(s) {
			break
		}
		pos = next
	}
	return "", "", false
}

// ParseYAML decodes a front-matter block (without delimiters) into a map.
// The block must be empty or a YAML mapping.
func ParseYAML(block string) (map[string]any, error) {
	if strings.TrimSpace(block) == "" {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}
