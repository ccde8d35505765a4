package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"memejoin/internal/player"
)

// Connector joins voice channels over the bot's gateway session. discordgo
// reuses the guild's existing connection when asked to join another channel
// of the same guild, which gives move-instead-of-reconnect for free.
type Connector struct {
	dg *discordgo.Session
}

func NewConnector(dg *discordgo.Session) *Connector {
	return &Connector{dg: dg}
}

func (c *Connector) Join(guildID, channelID string) (player.VoiceConn, error) {
	vc, err := c.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("voice join %s/%s: %w", guildID, channelID, err)
	}
	return &voiceConn{vc: vc}, nil
}

type voiceConn struct {
	vc *discordgo.VoiceConnection
}

func (c *voiceConn) ChannelID() string {
	return c.vc.ChannelID
}

func (c *voiceConn) Speaking(on bool) error {
	return c.vc.Speaking(on)
}

func (c *voiceConn) SendFrame(frame []byte) error {
	if !c.vc.Ready {
		return fmt.Errorf("voice connection not ready")
	}
	c.vc.OpusSend <- frame
	return nil
}

func (c *voiceConn) Disconnect() error {
	return c.vc.Disconnect()
}
