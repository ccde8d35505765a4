package storage

import "fmt"

// UpsertGuild creates or updates a guild's name without touching its
// configured delay. Called when the bot sees a guild on ready or join.
func (s *Storage) UpsertGuild(guildID, name string) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	record.Name = name
	return s.saveGuildRecord(guildID, record)
}

// SetSoundDelay updates the minimum interval (seconds) between playbacks.
func (s *Storage) SetSoundDelay(guildID string, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("sound delay must not be negative, got %d", seconds)
	}

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	record.SoundDelay = seconds
	return s.saveGuildRecord(guildID, record)
}

// GuildDelay returns the configured sound delay in seconds for a guild.
// Unknown guilds have no delay.
func (s *Storage) GuildDelay(guildID string) (int, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return 0, err
	}
	return record.SoundDelay, nil
}

// GetGuild returns guild metadata.
func (s *Storage) GetGuild(guildID string) (*Guild, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return &Guild{ID: guildID, Name: record.Name, SoundDelay: record.SoundDelay}, nil
}

// AddGuildUser records that a user is a member of a guild.
func (s *Storage) AddGuildUser(guildID, username string) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	for _, u := range record.Users {
		if u == username {
			return nil
		}
	}
	record.Users = append(record.Users, username)
	return s.saveGuildRecord(guildID, record)
}

// GuildUsers lists the known members of a guild.
func (s *Storage) GuildUsers(guildID string) ([]string, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.Users, nil
}

// SetPermissions stores a user's permission bits for a guild.
func (s *Storage) SetPermissions(guildID, username string, perms int) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	record.Permissions[username] = perms
	return s.saveGuildRecord(guildID, record)
}

// GetPermissions returns a user's permission bits for a guild; users without
// an entry have no permissions.
func (s *Storage) GetPermissions(guildID, username string) (int, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return 0, err
	}
	return record.Permissions[username], nil
}
