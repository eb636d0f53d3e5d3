package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// handleAssets serves the UI bundle when an assets directory is
// configured. Resolution order mirrors the original frontend hosting:
// exact file first, then SPA fallback to index.html for extensionless
// paths (client-side routes), 404 for missing file-like paths so a
// missing script never comes back as HTML.
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	dir := s.assetsDir()
	if dir == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Clean before joining so "../" can't escape the assets dir.
	rel := path.Clean("/" + r.URL.Path)
	if rel == "/" {
		rel = "/index.html"
	}
	full := filepath.Join(dir, filepath.FromSlash(rel))

	if fi, err := os.Stat(full); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, full)
		return
	}

	if !strings.Contains(path.Base(rel), ".") {
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		return
	}
	http.NotFound(w, r)
}

func (s *Server) assetsDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.AssetsDir
}
