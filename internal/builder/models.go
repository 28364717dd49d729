// internal/builder/models.go
package builder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Keys the builder adds to every page's metadata sidecar.
const (
	MetaTitle      = "title"
	MetaSourceFile = "sourceFile"
)

// PageMetadata is the JSON object written next to each rendered page: every
// front-matter attribute plus the computed title and sourceFile.
type PageMetadata map[string]any

// pageMetadata merges attrs with the computed title and source link. An
// explicit, non-null title wins; otherwise the base name is used, except for
// index pages which get no title at all.
func (b *Builder) pageMetadata(attrs map[string]any, baseName, srcPath string) PageMetadata {
	meta := make(PageMetadata, len(attrs)+2)
	for k, v := range attrs {
		meta[k] = jsonSafe(v)
	}

	if title, ok := attrs[MetaTitle]; !ok || title == nil {
		if baseName != b.cfg.IndexName {
			meta[MetaTitle] = baseName
		} else {
			delete(meta, MetaTitle)
		}
	}
	meta[MetaSourceFile] = b.sourceFile(srcPath)
	return meta
}

// sourceFile links a page back to its Markdown source in the repository.
func (b *Builder) sourceFile(srcPath string) string {
	if b.repoRoot != "" {
		if abs, err := filepath.Abs(srcPath); err == nil {
			if rel, err := filepath.Rel(b.repoRoot, abs); err == nil && !escapesRoot(rel) {
				return b.cfg.SourceBaseURL + filepath.ToSlash(rel)
			}
		}
	}
	return b.cfg.SourceBaseURL + stripParentPrefix(filepath.ToSlash(srcPath))
}

func escapesRoot(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// stripParentPrefix drops leading "./" and "../" segments.
func stripParentPrefix(p string) string {
	for {
		switch {
		case strings.HasPrefix(p, "../"):
			p = p[len("../"):]
		case strings.HasPrefix(p, "./"):
			p = p[len("./"):]
		default:
			return p
		}
	}
}

// encodeMetadata produces compact JSON without HTML escaping.
func encodeMetadata(meta PageMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// jsonSafe converts YAML values encoding/json rejects: mappings with
// non-string keys become string-keyed maps, and .inf, -.inf and .nan become null.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return nil
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonSafe(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonSafe(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonSafe(val)
		}
		return out
	default:
		return v
	}
}
