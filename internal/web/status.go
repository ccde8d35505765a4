package web

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"memejoin/internal/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cacheSize := "unknown"
	if size, err := s.status.CacheSize(); err == nil {
		cacheSize = humanize.Bytes(uint64(size))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"app":       version.AppName,
		"version":   version.Version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"cacheSize": cacheSize,
		"sessions":  s.status.SessionStates(),
		"jobs":      s.status.Jobs(),
	})
}
