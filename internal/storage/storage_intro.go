package storage

import (
	"fmt"
	"sort"
	"strconv"
)

// AddIntro registers a new intro for a guild and returns it with its
// assigned id.
func (s *Storage) AddIntro(guildID, name string, volume float64, filename string) (*Intro, error) {
	if volume < 0 {
		return nil, fmt.Errorf("intro volume must not be negative, got %f", volume)
	}

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}

	intro := Intro{
		ID:       record.NextIntroID,
		Name:     name,
		Volume:   volume,
		Filename: filename,
	}
	record.NextIntroID++
	record.Intros[strconv.Itoa(intro.ID)] = intro
	if err := s.saveGuildRecord(guildID, record); err != nil {
		return nil, err
	}

	return &intro, nil
}

// RemoveIntro deletes an intro and every binding that references it.
func (s *Storage) RemoveIntro(guildID string, introID int) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	key := strconv.Itoa(introID)
	if _, ok := record.Intros[key]; !ok {
		return fmt.Errorf("intro %d does not exist in guild %s", introID, guildID)
	}
	delete(record.Intros, key)

	kept := record.UserIntros[:0]
	for _, ui := range record.UserIntros {
		if ui.IntroID == introID {
			continue
		}
		kept = append(kept, ui)
	}
	record.UserIntros = kept

	return s.saveGuildRecord(guildID, record)
}

// GuildIntros lists a guild's intros ordered by id.
func (s *Storage) GuildIntros(guildID string) ([]Intro, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}

	intros := make([]Intro, 0, len(record.Intros))
	for _, intro := range record.Intros {
		intros = append(intros, intro)
	}
	sort.Slice(intros, func(i, j int) bool { return intros[i].ID < intros[j].ID })
	return intros, nil
}

// AddUserIntro binds an intro to (user, channel) within a guild. The intro
// must exist in the guild.
func (s *Storage) AddUserIntro(guildID, username, channelID string, introID int) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	if _, ok := record.Intros[strconv.Itoa(introID)]; !ok {
		return fmt.Errorf("intro %d does not exist in guild %s", introID, guildID)
	}

	for _, ui := range record.UserIntros {
		if ui.Username == username && ui.ChannelID == channelID && ui.IntroID == introID {
			return nil
		}
	}

	record.UserIntros = append(record.UserIntros, UserIntro{
		Username:  username,
		ChannelID: channelID,
		IntroID:   introID,
	})
	return s.saveGuildRecord(guildID, record)
}

// RemoveUserIntro deletes one (user, channel, intro) binding.
func (s *Storage) RemoveUserIntro(guildID, username, channelID string, introID int) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	kept := record.UserIntros[:0]
	for _, ui := range record.UserIntros {
		if ui.Username == username && ui.ChannelID == channelID && ui.IntroID == introID {
			continue
		}
		kept = append(kept, ui)
	}
	record.UserIntros = kept
	return s.saveGuildRecord(guildID, record)
}

// UserChannelIntros returns all intros bound to (user, channel) in a guild,
// ordered by intro id. Usually zero or one, but duplicates are possible.
func (s *Storage) UserChannelIntros(guildID, username, channelID string) ([]Intro, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}

	var intros []Intro
	for _, ui := range record.UserIntros {
		if ui.Username != username || ui.ChannelID != channelID {
			continue
		}
		if intro, ok := record.Intros[strconv.Itoa(ui.IntroID)]; ok {
			intros = append(intros, intro)
		}
	}
	sort.Slice(intros, func(i, j int) bool { return intros[i].ID < intros[j].ID })
	return intros, nil
}
