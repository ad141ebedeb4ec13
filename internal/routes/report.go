package routes

import (
	"net/http"
	"path"
	"sync"

	"visual-diff/internal/job"
	"visual-diff/internal/myhttp"
	"visual-diff/internal/report"
	"visual-diff/internal/storage"
)

// Latest holds the result of the most recent completed run.
type Latest struct {
	mu     sync.RWMutex
	result *job.Result
}

func (l *Latest) Set(result *job.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result = result
}

func (l *Latest) Get() *job.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result
}

// Report serves the latest report at /report/ and the artifacts it references below it.
func Report(latest *Latest, s storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := latest.Get()
		if result == nil {
			http.Error(w, "no report has been generated yet", http.StatusNotFound)
			return
		}

		key := r.PathValue("key")
		if key == "" {
			key = report.HTMLKey
		}
		url, ok := result.Artifacts[key]
		if !ok {
			http.NotFound(w, r)
			return
		}

		data, err := s.Get(r.Context(), url)
		if err != nil {
			myhttp.Logger(r.Context()).Error("failed to read artifact", "key", key, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentType(key))
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	}
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
