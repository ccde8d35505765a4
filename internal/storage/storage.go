// Package storage persists guilds, intros, user-intro bindings and user
// credentials in a JSON key-value datastore. Guild data lives under
// "guild:<id>", user records under "user:<name>".
package storage

import (
	"context"
	"time"

	"github.com/keshon/datastore"
)

// Guild is a server the bot is a member of. SoundDelay is the minimum number
// of seconds between two intro playbacks in the guild.
type Guild struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SoundDelay int    `json:"sound_delay"`
}

// Intro is a short audio clip owned by a guild. Filename is either a file in
// the sounds directory or a remote reference (http/https URL).
type Intro struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Volume   float64 `json:"volume"`
	Filename string  `json:"filename"`
}

// UserIntro binds (user, channel) to an intro within a guild. A user may have
// different intros for different channels of the same guild. The store does
// not enforce a single binding per (user, channel).
type UserIntro struct {
	Username  string `json:"username"`
	ChannelID string `json:"channel_id"`
	IntroID   int    `json:"intro_id"`
}

// User holds a web user's api key and Discord tokens.
type User struct {
	Name                  string    `json:"name"`
	APIKey                string    `json:"api_key"`
	APIKeyExpiresAt       time.Time `json:"api_key_expires_at"`
	DiscordToken          string    `json:"discord_token"`
	DiscordRefreshToken   string    `json:"discord_refresh_token"`
	DiscordTokenExpiresAt time.Time `json:"discord_token_expires_at"`
	CredentialInvalid     bool      `json:"credential_invalid"`
}

// Record is everything stored for one guild.
type Record struct {
	Name        string           `json:"name"`
	SoundDelay  int              `json:"sound_delay"`
	NextIntroID int              `json:"next_intro_id"`
	Intros      map[string]Intro `json:"intros"`
	UserIntros  []UserIntro      `json:"user_intros"`
	Permissions map[string]int   `json:"permissions"`
	Users       []string         `json:"users"`
}

type Storage struct {
	ds *datastore.DataStore
}

// New opens the datastore. The context governs the store's background
// workers; Close waits for them, so cancel ctx before closing.
func New(ctx context.Context, filePath string) (*Storage, error) {
	ds, err := datastore.New(ctx, filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// getOrCreateGuildRecord returns the record for a guild, creating an empty
// one on first use.
func (s *Storage) getOrCreateGuildRecord(guildID string) (*Record, error) {
	record := &Record{}
	exists, err := s.ds.Get(guildKey(guildID), record)
	if err != nil {
		return nil, err
	}
	if !exists {
		record = &Record{
			NextIntroID: 1,
			Intros:      map[string]Intro{},
			Permissions: map[string]int{},
		}
		if err := s.ds.Set(guildKey(guildID), record); err != nil {
			return nil, err
		}
		return record, nil
	}

	if record.Intros == nil {
		record.Intros = map[string]Intro{}
	}
	if record.Permissions == nil {
		record.Permissions = map[string]int{}
	}
	if record.NextIntroID == 0 {
		record.NextIntroID = 1
	}

	return record, nil
}

func (s *Storage) saveGuildRecord(guildID string, record *Record) error {
	return s.ds.Set(guildKey(guildID), record)
}

func guildKey(guildID string) string {
	return "guild:" + guildID
}
