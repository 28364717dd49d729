// internal/server/server.go
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 500 * time.Millisecond

// Options configures the preview server.
type Options struct {
	Port      int
	SourceDir string
	OutputDir string
	// Build rebuilds the output tree; it runs once at startup and after
	// every detected change.
	Build func(context.Context) error
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *log.Logger
}

// Run builds once, then serves OutputDir with live reload while rebuilding on
// changes under SourceDir. It returns when ctx is canceled.
func Run(ctx context.Context, opts Options) error {
	if err := opts.Build(ctx); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}

	hub := newHub(opts.Logger)
	w, err := newSourceWatcher(opts.SourceDir, opts.OutputDir, opts.Logger)
	if err != nil {
		return err
	}
	defer w.Close()
	go w.run(ctx, func() {
		if err := opts.Build(ctx); err != nil {
			opts.Logger.Error("Error rebuilding docs", "err", err)
			return
		}
		opts.Logger.Info("Docs rebuilt successfully. Triggering reload...", "tabs", hub.Reload())
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	mux.Handle("/", liveReloadWrapper(http.FileServer(http.Dir(opts.OutputDir))))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	opts.Logger.Info("Serving docs", "url", fmt.Sprintf("http://localhost:%d", opts.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sourceWatcher watches a directory tree. fsnotify is not recursive, so every
// directory is added individually, including ones created later. The output
// directory is skipped when it sits inside the tree, otherwise every rebuild
// would trigger the next one.
type sourceWatcher struct {
	*fsnotify.Watcher
	watched map[string]bool
	ignore  string
	log     *log.Logger
}

func newSourceWatcher(root, ignore string, l *log.Logger) (*sourceWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	w := &sourceWatcher{Watcher: fw, watched: make(map[string]bool), log: l}
	if ignore != "" {
		if w.ignore, err = filepath.Abs(ignore); err != nil {
			fw.Close()
			return nil, fmt.Errorf("resolve output directory %s: %w", ignore, err)
		}
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", root, err)
	}
	return w, nil
}

func (w *sourceWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		dir := filepath.Clean(path)
		if w.watched[dir] {
			return nil
		}
		if err := w.Add(dir); err != nil {
			w.log.Warn("Error adding watch", "dir", dir, "err", err)
			return nil
		}
		w.log.Debug("Watching directory", "dir", dir)
		w.watched[dir] = true
		return nil
	})
}

// ignored reports whether path is the output directory or lies below it.
func (w *sourceWatcher) ignored(path string) bool {
	if w.ignore == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(w.ignore, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// run calls rebuild for change events, at most once per debounce window.
func (w *sourceWatcher) run(ctx context.Context, rebuild func()) {
	var lastBuildTime time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("Error watching new directory", "dir", event.Name, "err", err)
					}
				}
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				continue
			}
			if time.Since(lastBuildTime) <= debounceDuration {
				continue
			}
			// Let editors finish their save sequence.
			time.Sleep(100 * time.Millisecond)
			w.log.Info("Change detected, rebuilding...", "path", event.Name)
			rebuild()
			lastBuildTime = time.Now()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			w.log.Error("Watcher error", "err", err)
		}
	}
}

func liveReloadWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		isHTML := strings.HasSuffix(r.URL.Path, ".html") || strings.HasSuffix(r.URL.Path, "/")
		if !isHTML {
			next.ServeHTTP(w, r)
			return
		}

		iw := newInterceptingWriter(w)
		next.ServeHTTP(iw, r)

		for key, values := range iw.Header() {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}

		body := iw.body.Bytes()
		if iw.statusCode != http.StatusOK {
			w.WriteHeader(iw.statusCode)
			w.Write(body)
			return
		}

		injected := injectReloadScript(body)
		w.Header().Set("Content-Length", fmt.Sprint(len(injected)))
		w.WriteHeader(iw.statusCode)
		w.Write(injected)
	})
}

// injectReloadScript places the script before </body>, or appends it to
// bare fragments such as built doc pages.
func injectReloadScript(body []byte) []byte {
	if bytes.Contains(body, []byte("</body>")) {
		return bytes.Replace(body, []byte("</body>"), []byte(liveReloadScript+"</body>"), 1)
	}
	return append(append([]byte{}, body...), liveReloadScript...)
}

type interceptingWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	header     http.Header
}

func newInterceptingWriter(w http.ResponseWriter) *interceptingWriter {
	return &interceptingWriter{
		ResponseWriter: w,
		body:           new(bytes.Buffer),
		header:         make(http.Header),
		statusCode:     http.StatusOK,
	}
}

func (iw *interceptingWriter) Header() http.Header {
	return iw.header
}

func (iw *interceptingWriter) Write(b []byte) (int, error) {
	return iw.body.Write(b)
}

func (iw *interceptingWriter) WriteHeader(statusCode int) {
	iw.statusCode = statusCode
}

const liveReloadScript = `
<script>
  (function() {
    let socket = new WebSocket("ws://" + window.location.host + "/ws");
    socket.onmessage = function(event) {
      if (event.data === "reload") {
        window.location.reload();
      }
    };
    socket.onerror = function() {
      console.error("Live reload connection error. Please restart 'docpages serve'.");
    };
  })();
</script>
`
