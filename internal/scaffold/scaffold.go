// internal/scaffold/scaffold.go
package scaffold

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"docpages/internal/config"
)

// ArchetypePath is the project-local page template used by CreatePage when
// present.
const ArchetypePath = "archetypes/default.md"

// CreateProject writes a config file and a starter docs tree under dir.
// Existing files are never overwritten.
func CreateProject(dir, configName string) ([]string, error) {
	cfg := config.Default()
	cfg.SourceDir = "docs"
	cfgBytes, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}

	files := []struct {
		path    string
		content []byte
	}{
		{configName, cfgBytes},
		{filepath.Join("docs", cfg.IndexName+".md"), []byte(indexContent)},
		{filepath.Join("docs", "getting-started.md"), []byte(gettingStartedContent)},
		{ArchetypePath, []byte(archetypeDefaultMdContent)},
	}
	var created []string
	for _, f := range files {
		path := filepath.Join(dir, f.path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return created, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := writeNew(path, f.content); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return created, fmt.Errorf("failed to write file %s: %w", path, err)
		}
		created = append(created, path)
	}
	return created, nil
}

// CreatePage creates a new Markdown page at relPath inside sourceDir from the
// archetype. An empty title leaves the title out of the front matter, so the
// builder falls back to the file name.
func CreatePage(sourceDir, relPath, title string) (string, error) {
	if !strings.HasSuffix(relPath, ".md") {
		relPath += ".md"
	}
	clean := filepath.Clean(relPath)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("page path %s must stay inside %s", relPath, sourceDir)
	}
	path := filepath.Join(sourceDir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	archetype := archetypeDefaultMdContent
	if data, err := os.ReadFile(ArchetypePath); err == nil {
		archetype = string(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("could not read archetype file %s: %w", ArchetypePath, err)
	}

	tmpl, err := template.New("archetype").Parse(archetype)
	if err != nil {
		return "", fmt.Errorf("failed to parse archetype: %w", err)
	}
	data := struct{ Title string }{Title: title}
	var output bytes.Buffer
	if err := tmpl.Execute(&output, data); err != nil {
		return "", fmt.Errorf("failed to execute archetype template: %w", err)
	}

	if err := writeNew(path, output.Bytes()); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	return path, nil
}

func writeNew(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const archetypeDefaultMdContent = `---
{{- if .Title }}
title: {{ printf "%q" .Title }}
{{- end }}
---

Write something meaningful here.
`

const indexContent = `# Documentation

Start with [Getting started](getting-started.md).
`

const gettingStartedContent = `---
title: Getting started
---

# Getting started

| Command | Description |
|---------|-------------|
| ` + "`docpages build`" + ` | Build the docs into the output directory |
| ` + "`docpages serve`" + ` | Preview with live reload |
`
