package handlers

import (
	"net/http"
	"os"
	"path/filepath"
)

// HandleRoot serves the browser game from dir. Requests for paths that do not
// exist fall back to index.html so client-side routes keep working.
func HandleRoot(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); err != nil {
			index := filepath.Join(dir, "index.html")
			if _, err := os.Stat(index); err != nil {
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	}
}
