package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// StaticFileServer serves the files under dir and falls back to
// fallbackPath for anything missing, so client-side routes resolve.
func StaticFileServer(dir, fallbackPath string) (http.Handler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static directory: %s is not a directory", dir)
	}

	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, fallbackPath))
	}), nil
}
