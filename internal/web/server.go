// Package web is the HTTP configuration surface: Discord OAuth login, intro
// management, uploads and a status endpoint. It only reads and writes
// storage; playback stays on the gateway side.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"memejoin/internal/config"
	"memejoin/internal/storage"
)

const sessionName = "memejoin-session"

// Permission bits stored per guild user.
const (
	PermUploadSounds = 1 << 0
	PermDeleteSounds = 1 << 1
)

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// StatusSource reports runtime state for the status endpoint.
type StatusSource interface {
	SessionStates() map[string]string
	CacheSize() (int64, error)
	Jobs() []string
}

type Server struct {
	cfg     *config.Config
	storage *storage.Storage
	store   *sessions.CookieStore
	oauth   *oauth2.Config
	status  StatusSource
	started time.Time
	srv     *http.Server
}

func NewServer(cfg *config.Config, st *storage.Storage, status StatusSource) *Server {
	s := &Server{
		cfg:     cfg,
		storage: st,
		store:   sessions.NewCookieStore([]byte(cfg.SessionSecret)),
		status:  status,
		started: time.Now(),
		oauth: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.AppOrigin + "/auth/callback",
			Scopes:       []string{"identify"},
			Endpoint:     discordEndpoint,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", s.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/guilds/{guild}", s.handleGetGuild).Methods(http.MethodGet)
	api.HandleFunc("/guilds/{guild}/users", s.handleGuildUsers).Methods(http.MethodGet)
	api.HandleFunc("/guilds/{guild}/intros", s.handleListIntros).Methods(http.MethodGet)
	api.HandleFunc("/guilds/{guild}/intros", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/guilds/{guild}/intros/url", s.handleAddURLIntro).Methods(http.MethodPost)
	api.HandleFunc("/guilds/{guild}/intros/{id:[0-9]+}", s.handleDeleteIntro).Methods(http.MethodDelete)
	api.HandleFunc("/guilds/{guild}/delay", s.handleSetDelay).Methods(http.MethodPost)
	api.HandleFunc("/guilds/{guild}/me/intro", s.handleBindIntro).Methods(http.MethodPut)
	api.HandleFunc("/guilds/{guild}/me/intro", s.handleUnbindIntro).Methods(http.MethodDelete)
	api.HandleFunc("/guilds/{guild}/permissions", s.handleSetPermissions).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.WebPort),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.srv.Addr).Info("web server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
