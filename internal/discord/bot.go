package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"memejoin/internal/config"
	"memejoin/internal/player"
	"memejoin/internal/storage"
)

// Bot is the Discord gateway side of the intro service. It normalizes voice
// state updates into join events and hands them to the player manager; all
// playback decisions live there.
type Bot struct {
	dg      *discordgo.Session
	storage *storage.Storage
	cfg     *config.Config
	manager *player.Manager
}

// NewBot builds the bot and its gateway session without opening it. The
// player manager is attached afterwards via SetManager, since its voice
// connector needs this bot's session.
func NewBot(cfg *config.Config, st *storage.Storage) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	b := &Bot{
		dg:      dg,
		storage: st,
		cfg:     cfg,
	}

	b.configureIntents()
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onGuildDelete)
	dg.AddHandler(b.onVoiceStateUpdate)

	return b, nil
}

// Session exposes the underlying gateway session for the voice connector and
// the credential probe.
func (b *Bot) Session() *discordgo.Session {
	return b.dg
}

// SetManager attaches the player manager. Must be called before Run.
func (b *Bot) SetManager(m *player.Manager) {
	b.manager = m
}

// Run opens the gateway connection and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	log.Info("shutdown signal received, closing gateway")
	return nil
}

func (b *Bot) configureIntents() {
	b.dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
}

// Probe verifies the bot credential by fetching the bot's own user.
func (b *Bot) Probe(ctx context.Context) error {
	_, err := b.dg.User("@me", discordgo.WithContext(ctx))
	return err
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		if err := b.storage.UpsertGuild(g.ID, g.Name); err != nil {
			log.WithField("guild", g.ID).WithError(err).Error("failed to sync guild record")
		}
	}
	log.WithField("guilds", len(r.Guilds)).Infof("discord bot %v is running", s.State.User.Username)
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log.WithFields(log.Fields{"guild": g.ID, "name": g.Name}).Info("guild available")
	if err := b.storage.UpsertGuild(g.ID, g.Name); err != nil {
		log.WithField("guild", g.ID).WithError(err).Error("failed to sync guild record")
	}
}

func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		return
	}
	log.WithField("guild", g.ID).Info("removed from guild")
	b.manager.RemoveGuild(g.ID)
}
