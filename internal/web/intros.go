package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const maxUploadBytes = 10 << 20

var allowedUploadExts = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".wav":  true,
	".flac": true,
	".dca":  true,
}

func (s *Server) handleGetGuild(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	guild, err := s.storage.GetGuild(guildID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load guild")
		return
	}
	writeJSON(w, http.StatusOK, guild)
}

func (s *Server) handleGuildUsers(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	users, err := s.storage.GuildUsers(guildID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list guild users")
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleListIntros(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	intros, err := s.storage.GuildIntros(guildID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list intros")
		return
	}
	writeJSON(w, http.StatusOK, intros)
}

// handleUpload stores an uploaded clip in the sounds directory and registers
// it as a guild intro. Requires the upload permission bit.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	user := requestUser(r)

	perms, err := s.storage.GetPermissions(guildID, user.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "permission lookup failed")
		return
	}
	if perms&PermUploadSounds == 0 {
		writeError(w, http.StatusForbidden, "upload not permitted")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("sound")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing sound file")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExts[ext] {
		writeError(w, http.StatusBadRequest, "unsupported file type")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(header.Filename), ext)
	}

	volume := 1.0
	if v := r.FormValue("volume"); v != "" {
		volume, err = strconv.ParseFloat(v, 64)
		if err != nil || volume < 0 {
			writeError(w, http.StatusBadRequest, "invalid volume")
			return
		}
	}

	filename := fmt.Sprintf("%s_%s%s", guildID, sanitizeName(name), ext)
	if err := s.saveUpload(file, filename); err != nil {
		log.WithError(err).Error("failed to store upload")
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	intro, err := s.storage.AddIntro(guildID, name, volume, filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register intro")
		return
	}

	log.WithFields(log.Fields{
		"guild": guildID,
		"user":  user.Name,
		"intro": intro.Name,
	}).Info("intro uploaded")
	writeJSON(w, http.StatusCreated, intro)
}

func (s *Server) saveUpload(src io.Reader, filename string) error {
	if err := os.MkdirAll(s.cfg.SoundsDir, 0o755); err != nil {
		return err
	}
	dst, err := os.Create(filepath.Join(s.cfg.SoundsDir, filename))
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// handleAddURLIntro registers an intro referencing a remote asset. The asset
// is not downloaded here; the audio pipeline fetches and caches it on first
// playback. Requires the upload permission bit.
func (s *Server) handleAddURLIntro(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	user := requestUser(r)

	perms, err := s.storage.GetPermissions(guildID, user.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "permission lookup failed")
		return
	}
	if perms&PermUploadSounds == 0 {
		writeError(w, http.StatusForbidden, "upload not permitted")
		return
	}

	var req struct {
		Name   string  `json:"name"`
		URL    string  `json:"url"`
		Volume float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must be http or https")
		return
	}
	if req.Volume == 0 {
		req.Volume = 1.0
	}

	intro, err := s.storage.AddIntro(guildID, req.Name, req.Volume, req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.WithFields(log.Fields{
		"guild": guildID,
		"user":  user.Name,
		"intro": intro.Name,
	}).Info("remote intro registered")
	writeJSON(w, http.StatusCreated, intro)
}

// handleDeleteIntro removes an intro, its bindings and its local file.
// Requires the delete permission bit.
func (s *Server) handleDeleteIntro(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	guildID := vars["guild"]
	introID, err := strconv.Atoi(vars["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid intro id")
		return
	}
	user := requestUser(r)

	perms, err := s.storage.GetPermissions(guildID, user.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "permission lookup failed")
		return
	}
	if perms&PermDeleteSounds == 0 {
		writeError(w, http.StatusForbidden, "delete not permitted")
		return
	}

	intros, err := s.storage.GuildIntros(guildID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list intros")
		return
	}
	var filename string
	for _, intro := range intros {
		if intro.ID == introID {
			filename = intro.Filename
			break
		}
	}

	if err := s.storage.RemoveIntro(guildID, introID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// Remote references live in the asset cache, not the sounds dir.
	if filename != "" && !strings.HasPrefix(filename, "http://") && !strings.HasPrefix(filename, "https://") {
		if err := os.Remove(filepath.Join(s.cfg.SoundsDir, filepath.Base(filename))); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("failed to remove intro file")
		}
	}

	log.WithFields(log.Fields{
		"guild": guildID,
		"user":  user.Name,
		"intro": introID,
	}).Info("intro deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type bindRequest struct {
	ChannelID string `json:"channelId"`
	IntroID   int    `json:"introId"`
}

func (s *Server) handleBindIntro(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	user := requestUser(r)

	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.storage.AddUserIntro(guildID, user.Name, req.ChannelID, req.IntroID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.storage.AddGuildUser(guildID, user.Name); err != nil {
		log.WithError(err).Warn("failed to record guild membership")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bound"})
}

func (s *Server) handleUnbindIntro(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	user := requestUser(r)

	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.storage.RemoveUserIntro(guildID, user.Name, req.ChannelID, req.IntroID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unbound"})
}

func (s *Server) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]

	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.storage.SetSoundDelay(guildID, req.Seconds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"seconds": req.Seconds})
}

func (s *Server) handleSetPermissions(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]

	var req struct {
		Username    string `json:"username"`
		Permissions int    `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Permissions&^(PermUploadSounds|PermDeleteSounds) != 0 {
		writeError(w, http.StatusBadRequest, "unknown permission bits")
		return
	}

	if err := s.storage.SetPermissions(guildID, req.Username, req.Permissions); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set permissions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"permissions": req.Permissions})
}
