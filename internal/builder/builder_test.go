package builder

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"docpages/internal/config"
	"docpages/internal/frontmatter"
	"docpages/internal/metrics"

	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://github.com/example/project/blob/main/"

// setupSite lays out <tmp>/docs with files and chdirs into <tmp>/site, so the
// default "../docs" source root resolves like it does in a real checkout.
func setupSite(t *testing.T, files map[string]string) (root string, cfg config.Config) {
	t.Helper()
	root = t.TempDir()
	writeTree(t, filepath.Join(root, "docs"), files)
	site := filepath.Join(root, "site")
	require.NoError(t, os.MkdirAll(site, 0o755))
	chdir(t, site)

	cfg = config.Default()
	cfg.SourceDir = "../docs"
	cfg.OutputDir = "build"
	cfg.SourceBaseURL = testBaseURL
	return root, cfg
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func build(t *testing.T, cfg config.Config, opts ...Option) (Stats, error) {
	t.Helper()
	b, err := New(cfg, opts...)
	require.NoError(t, err)
	return b.Build(context.Background())
}

func readMeta(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(data, &meta))
	return meta
}

func TestBuild_MirrorsSourceTree(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n\x00binary"
	_, cfg := setupSite(t, map[string]string{
		"a/1.md":   "# One\n",
		"a/b/2.md": "# Two\n",
		"a/c.png":  png,
	})

	stats, err := build(t, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Pages)
	require.Equal(t, 1, stats.Copied)
	require.Equal(t, 3, stats.Directories)
	require.NotEmpty(t, stats.BuildID)

	for _, rel := range []string{"a/1.html", "a/1.html.json", "a/b/2.html", "a/b/2.html.json", "a/c.png"} {
		require.FileExists(t, filepath.Join("build", filepath.FromSlash(rel)))
	}
	require.NoFileExists(t, filepath.Join("build", "a", "1.md"))

	copied, err := os.ReadFile(filepath.Join("build", "a", "c.png"))
	require.NoError(t, err)
	require.Equal(t, png, string(copied))
}

func TestBuild_WritesHTMLFragmentWithRewrittenLinks(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"guide.md": "---\ntitle: Guide\n---\n# Install\n\nSee [setup](setup.md#linux), [home](index.md) and [ext](https://example.com/x).\n\n| a | b |\n|---|---|\n| 1 | 2 |\n",
	})

	_, err := build(t, cfg)
	require.NoError(t, err)

	html, err := os.ReadFile(filepath.Join("build", "guide.html"))
	require.NoError(t, err)
	out := string(html)
	require.Contains(t, out, `<h1 id="install">Install</h1>`)
	require.Contains(t, out, `href="setup.html#linux"`)
	require.Contains(t, out, `href="index.html"`)
	require.Contains(t, out, `href="https://example.com/x"`)
	require.Contains(t, out, "<table>")
	require.NotContains(t, out, "title: Guide")
	require.NotContains(t, out, "<html")
}

func TestBuild_MetadataSidecar(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"guide.md":        "---\ntags:\n  - setup\norder: 2\n---\nbody\n",
		"index.md":        "# Home\n",
		"nested/index.md": "---\ndescription: nested landing\n---\n",
		"explicit.md":     "---\ntitle: Explicit Title\n---\n",
		"named-index.md":  "---\ntitle: Overview\n---\n",
		"null-title.md":   "---\ntitle: ~\n---\n",
		"html.md":         "---\ntitle: \"<b>bold</b> & more\"\n---\n",
	})

	_, err := build(t, cfg)
	require.NoError(t, err)

	require.Equal(t, map[string]any{
		"tags":       []any{"setup"},
		"order":      2.0,
		"title":      "guide",
		"sourceFile": testBaseURL + "docs/guide.md",
	}, readMeta(t, filepath.Join("build", "guide.html.json")))

	index := readMeta(t, filepath.Join("build", "index.html.json"))
	require.NotContains(t, index, "title")
	require.Equal(t, testBaseURL+"docs/index.md", index["sourceFile"])

	nested := readMeta(t, filepath.Join("build", "nested", "index.html.json"))
	require.NotContains(t, nested, "title")
	require.Equal(t, "nested landing", nested["description"])
	require.Equal(t, testBaseURL+"docs/nested/index.md", nested["sourceFile"])

	require.Equal(t, "Explicit Title", readMeta(t, filepath.Join("build", "explicit.html.json"))["title"])
	require.Equal(t, "Overview", readMeta(t, filepath.Join("build", "named-index.html.json"))["title"])
	require.Equal(t, "null-title", readMeta(t, filepath.Join("build", "null-title.html.json"))["title"])

	raw, err := os.ReadFile(filepath.Join("build", "html.html.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"title":"<b>bold</b> & more"`)
	require.NotContains(t, string(raw), "\n")
}

func TestBuild_NonFiniteNumbersBecomeNull(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"weights.md": "---\nweight: .inf\nfloor: -.inf\nratio: .nan\nnested:\n  - .inf\n  - 1.5\n---\nx\n",
	})

	_, err := build(t, cfg)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join("build", "weights.html.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"weight":null`)
	require.Contains(t, string(raw), `"floor":null`)
	require.Contains(t, string(raw), `"ratio":null`)
	require.Contains(t, string(raw), `"nested":[null,1.5]`)
}

func TestBuild_InvalidUTF8IsReplaced(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"latin1.md": "---\ntitle: caf\xe9\n---\ncaf\xe9 text\n",
	})

	_, err := build(t, cfg)
	require.NoError(t, err)

	html, err := os.ReadFile(filepath.Join("build", "latin1.html"))
	require.NoError(t, err)
	require.True(t, utf8.Valid(html))
	require.Equal(t, "<p>caf\uFFFD text</p>\n", string(html))

	raw, err := os.ReadFile(filepath.Join("build", "latin1.html.json"))
	require.NoError(t, err)
	require.True(t, utf8.Valid(raw))
	require.Equal(t, "caf\uFFFD", readMeta(t, filepath.Join("build", "latin1.html.json"))["title"])
}

func TestBuild_EditMLCleanView(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"draft.md": "Hello {+World+}! This is {-not seen-}.\n",
	})

	_, err := build(t, cfg)
	require.NoError(t, err)
	html, err := os.ReadFile(filepath.Join("build", "draft.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>Hello {+World+}! This is {-not seen-}.</p>\n", string(html))

	cfg.EditML = true
	_, err = build(t, cfg)
	require.NoError(t, err)
	html, err = os.ReadFile(filepath.Join("build", "draft.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>Hello World! This is .</p>\n", string(html))
}

func TestBuild_ExplicitTitleOnIndexPage(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"index.md": "---\ntitle: Welcome\n---\n",
	})

	_, err := build(t, cfg)
	require.NoError(t, err)
	require.Equal(t, "Welcome", readMeta(t, filepath.Join("build", "index.html.json"))["title"])
}

func TestBuild_CustomIndexName(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"README.md": "# Readme\n",
		"index.md":  "# Index\n",
	})
	cfg.IndexName = "README"

	_, err := build(t, cfg)
	require.NoError(t, err)
	require.NotContains(t, readMeta(t, filepath.Join("build", "README.html.json")), "title")
	require.Equal(t, "index", readMeta(t, filepath.Join("build", "index.html.json"))["title"])
}

func TestBuild_RepoRootMakesSourceFileRelative(t *testing.T) {
	root, cfg := setupSite(t, map[string]string{
		"deep/page.md": "text\n",
	})
	cfg.SourceDir = filepath.Join(root, "docs")
	cfg.RepoRoot = root

	_, err := build(t, cfg)
	require.NoError(t, err)
	meta := readMeta(t, filepath.Join("build", "deep", "page.html.json"))
	require.Equal(t, testBaseURL+"docs/deep/page.md", meta["sourceFile"])
}

func TestBuild_MalformedFrontMatterFailsBuild(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"ok.md":     "# Fine\n",
		"broken.md": "---\ntitle: never closed\n# Body\n",
	})

	_, err := build(t, cfg)
	require.Error(t, err)
	require.True(t, errors.Is(err, frontmatter.ErrMissingClosingDelimiter))
	require.Contains(t, err.Error(), "broken.md")
	require.NoFileExists(t, filepath.Join("build", "broken.html.json"))
}

func TestBuild_InvalidYAMLFailsBuild(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"bad.md": "---\ntitle: [oops\n---\nbody\n",
	})

	_, err := build(t, cfg)
	var perr *frontmatter.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestBuild_SymlinkFailsBuild(t *testing.T) {
	root, cfg := setupSite(t, map[string]string{
		"real.md": "# Real\n",
	})
	link := filepath.Join(root, "docs", "sub", "link.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	if err := os.Symlink(filepath.Join(root, "docs", "real.md"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	stats, err := build(t, cfg)
	require.Error(t, err)
	var entryErr *EntryTypeError
	require.ErrorAs(t, err, &entryErr)
	require.Equal(t, filepath.Join("..", "docs", "sub", "link.md"), entryErr.Path)
	require.Contains(t, err.Error(), "symbolic link")
	require.Less(t, stats.Pages, 2)
}

func TestBuild_MissingSourceFails(t *testing.T) {
	_, cfg := setupSite(t, nil)
	cfg.SourceDir = "../nowhere"

	_, err := build(t, cfg)
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuild_SourceIsFileFails(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{"single.md": "x"})
	cfg.SourceDir = "../docs/single.md"

	_, err := build(t, cfg)
	require.Error(t, err)
}

func TestBuild_LeavesStaleOutputsInPlace(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{"page.md": "new\n"})
	writeTree(t, "build", map[string]string{"removed.html": "old", "page.html": "old"})

	_, err := build(t, cfg)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join("build", "removed.html"))

	page, err := os.ReadFile(filepath.Join("build", "page.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>new</p>\n", string(page))
}

func TestBuild_IsRepeatable(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"a.md":     "---\nk: v\n---\n# A\n\n[b](sub/b.md)\n",
		"sub/b.md": "# B\n",
	})

	_, err := build(t, cfg)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join("build", "a.html"))
	require.NoError(t, err)
	firstMeta, err := os.ReadFile(filepath.Join("build", "a.html.json"))
	require.NoError(t, err)

	_, err = build(t, cfg)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join("build", "a.html"))
	require.NoError(t, err)
	secondMeta, err := os.ReadFile(filepath.Join("build", "a.html.json"))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, firstMeta, secondMeta)
}

func TestBuild_SingleSlotConcurrencyCompletesDeepTree(t *testing.T) {
	files := map[string]string{}
	dir := ""
	for i := 0; i < 6; i++ {
		dir += "level/"
		files[dir+"page.md"] = "# Page\n"
		files[dir+"asset.txt"] = "asset"
	}
	_, cfg := setupSite(t, files)
	cfg.Concurrency = 1

	b, err := New(cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	var stats Stats
	go func() {
		defer close(done)
		stats, err = b.Build(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("build did not finish")
	}
	require.NoError(t, err)
	require.Equal(t, 6, stats.Pages)
	require.Equal(t, 6, stats.Copied)
}

type countingRecorder struct {
	mu       sync.Mutex
	files    map[metrics.FileKind]int
	outcomes map[metrics.Outcome]int
}

func (c *countingRecorder) ObserveBuildDuration(time.Duration) {}

func (c *countingRecorder) IncBuildOutcome(o metrics.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[o]++
}

func (c *countingRecorder) IncFile(k metrics.FileKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[k]++
}

func TestBuild_ReportsToRecorder(t *testing.T) {
	_, cfg := setupSite(t, map[string]string{
		"a.md":    "a",
		"b.md":    "b",
		"img.svg": "<svg/>",
	})
	rec := &countingRecorder{files: map[metrics.FileKind]int{}, outcomes: map[metrics.Outcome]int{}}

	_, err := build(t, cfg, WithRecorder(rec))
	require.NoError(t, err)
	require.Equal(t, 2, rec.files[metrics.FilePage])
	require.Equal(t, 1, rec.files[metrics.FileCopied])
	require.Equal(t, 1, rec.outcomes[metrics.OutcomeSuccess])

	writeTree(t, filepath.Join("..", "docs"), map[string]string{"c.md": "---\n"})
	_, err = build(t, cfg, WithRecorder(rec))
	require.Error(t, err)
	require.Equal(t, 1, rec.outcomes[metrics.OutcomeFailed])
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency = 0
	_, err := New(cfg)
	require.Error(t, err)
}

func TestStripParentPrefix(t *testing.T) {
	cases := map[string]string{
		"../docs/a.md":    "docs/a.md",
		"../../docs/a.md": "docs/a.md",
		"./docs/a.md":     "docs/a.md",
		"docs/a.md":       "docs/a.md",
		"docs/../a.md":    "docs/../a.md",
	}
	for in, want := range cases {
		require.Equal(t, want, stripParentPrefix(in), in)
	}
}
