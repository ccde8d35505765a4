package web

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"memejoin/internal/storage"
)

const apiKeyTTL = 30 * 24 * time.Hour

type ctxKey int

const userKey ctxKey = 0

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create state")
		return
	}

	session, _ := s.store.Get(r, sessionName)
	session.Values["state"] = state
	if err := session.Save(r, w); err != nil {
		log.WithError(err).Error("failed to save session")
	}

	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no session")
		return
	}
	if r.URL.Query().Get("state") != session.Values["state"] {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	token, err := s.oauth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		log.WithError(err).Warn("oauth code exchange failed")
		writeError(w, http.StatusBadGateway, "code exchange failed")
		return
	}

	dg, err := discordgo.New("Bearer " + token.AccessToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	defer dg.Close()

	me, err := dg.User("@me")
	if err != nil {
		log.WithError(err).Warn("failed to fetch user identity")
		writeError(w, http.StatusBadGateway, "identity lookup failed")
		return
	}

	apiKey, err := randomToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}

	user := storage.User{
		Name:                  me.Username,
		APIKey:                apiKey,
		APIKeyExpiresAt:       time.Now().Add(apiKeyTTL),
		DiscordToken:          token.AccessToken,
		DiscordRefreshToken:   token.RefreshToken,
		DiscordTokenExpiresAt: token.Expiry,
	}
	if err := s.storage.UpsertUser(user); err != nil {
		log.WithError(err).Error("failed to persist user")
		writeError(w, http.StatusInternalServerError, "failed to persist user")
		return
	}

	session.Values["username"] = me.Username
	if err := session.Save(r, w); err != nil {
		log.WithError(err).Error("failed to save session")
	}

	log.WithField("user", me.Username).Info("user authenticated")
	writeJSON(w, http.StatusOK, map[string]string{
		"username": me.Username,
		"apiKey":   apiKey,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.WithError(err).Error("failed to clear session")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// requireAuth accepts either a browser session or an X-API-Key header and
// stores the resolved user in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "auth lookup failed")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func (s *Server) authenticate(r *http.Request) (*storage.User, error) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		user, err := s.storage.UserByAPIKey(key)
		if err != nil || user == nil {
			return nil, err
		}
		if time.Now().After(user.APIKeyExpiresAt) {
			return nil, nil
		}
		if !credentialsUsable(user) {
			return nil, nil
		}
		return user, nil
	}

	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return nil, nil
	}
	username, ok := session.Values["username"].(string)
	if !ok || username == "" {
		return nil, nil
	}
	user, err := s.storage.GetUser(username)
	if err != nil || user == nil {
		return nil, err
	}
	if !credentialsUsable(user) {
		return nil, nil
	}
	return user, nil
}

// credentialsUsable rejects users flagged by the credential refresher and
// users whose Discord token already expired. A zero expiry means the account
// carries no expiring token.
func credentialsUsable(user *storage.User) bool {
	if user.CredentialInvalid {
		return false
	}
	if !user.DiscordTokenExpiresAt.IsZero() && time.Now().After(user.DiscordTokenExpiresAt) {
		return false
	}
	return true
}

func requestUser(r *http.Request) *storage.User {
	user, _ := r.Context().Value(userKey).(*storage.User)
	return user
}
