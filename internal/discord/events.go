package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"memejoin/internal/player"
)

// onVoiceStateUpdate forwards fresh voice channel joins to the player
// manager. Moves between channels, leaves, and the bot's own voice state are
// filtered here so the sessions only ever see real joins.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.UserID == s.State.User.ID {
		return
	}
	if v.ChannelID == "" {
		return
	}
	// A non-empty prior channel means a move, not a join.
	if v.BeforeUpdate != nil && v.BeforeUpdate.ChannelID != "" {
		return
	}

	username := b.username(s, v)
	if username == "" {
		log.WithFields(log.Fields{
			"guild": v.GuildID,
			"user":  v.UserID,
		}).Warn("cannot resolve username for voice join")
		return
	}

	log.WithFields(log.Fields{
		"guild":   v.GuildID,
		"user":    username,
		"channel": v.ChannelID,
	}).Debug("voice channel join")

	b.manager.Dispatch(player.JoinEvent{
		UserID:    v.UserID,
		Username:  username,
		GuildID:   v.GuildID,
		ChannelID: v.ChannelID,
		At:        time.Now(),
	})
}

func (b *Bot) username(s *discordgo.Session, v *discordgo.VoiceStateUpdate) string {
	if v.Member != nil && v.Member.User != nil {
		return v.Member.User.Username
	}
	member, err := s.State.Member(v.GuildID, v.UserID)
	if err == nil && member.User != nil {
		return member.User.Username
	}
	user, err := s.User(v.UserID)
	if err != nil {
		return ""
	}
	return user.Username
}
