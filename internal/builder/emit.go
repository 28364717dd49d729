package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"docpages/internal/frontmatter"
	"docpages/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// emit builds one source file into destDir: Markdown becomes an HTML
// fragment plus its metadata sidecar, anything else is copied verbatim.
func (r *run) emit(ctx context.Context, srcPath, filename, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", destDir, err)
	}
	if strings.HasSuffix(filename, markdownExt) {
		return r.emitPage(ctx, srcPath, filename, destDir)
	}
	return r.copyFile(ctx, srcPath, filepath.Join(destDir, filename))
}

func (r *run) emitPage(ctx context.Context, srcPath, filename, destDir string) error {
	r.log.Info("Building page", "src", srcPath, "dest", destDir)

	raw, err := r.readFile(ctx, srcPath)
	if err != nil {
		return err
	}
	text := string(raw)
	if !utf8.ValidString(text) {
		r.log.Warn("Replacing invalid UTF-8 sequences", "src", srcPath)
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	doc, err := frontmatter.Parse(text)
	if err != nil {
		return fmt.Errorf("%s: %w", srcPath, err)
	}

	baseName := strings.TrimSuffix(filename, markdownExt)
	html, err := r.renderer.Render(doc.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", srcPath, err)
	}
	meta, err := encodeMetadata(r.pageMetadata(doc.Attributes, baseName, srcPath))
	if err != nil {
		return fmt.Errorf("%s: encode metadata: %w", srcPath, err)
	}

	htmlPath := filepath.Join(destDir, baseName+".html")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.writeFile(gctx, htmlPath, []byte(html)) })
	g.Go(func() error { return r.writeFile(gctx, htmlPath+".json", meta) })
	if err := g.Wait(); err != nil {
		return err
	}

	r.pages.Add(1)
	r.recorder.IncFile(metrics.FilePage)
	return nil
}

func (r *run) readFile(ctx context.Context, path string) ([]byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

func (r *run) writeFile(ctx context.Context, path string, data []byte) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}

// copyFile copies src to dest byte for byte, keeping its permission bits.
func (r *run) copyFile(ctx context.Context, src, dest string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)
	r.log.Debug("Copying file", "src", src, "dest", dest)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}

	r.copied.Add(1)
	r.recorder.IncFile(metrics.FileCopied)
	return nil
}
