package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"memejoin/internal/audio"
	"memejoin/internal/auth"
	"memejoin/internal/config"
	"memejoin/internal/discord"
	"memejoin/internal/intro"
	"memejoin/internal/player"
	"memejoin/internal/storage"
	v "memejoin/internal/version"
	"memejoin/internal/web"
	"memejoin/pkg/jobmgr"
)

const cacheMaxAge = 30 * 24 * time.Hour

func main() {
	log.Infof("starting %v...", v.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}

	// The store's workers run on ctx; every exit path cancels it before the
	// deferred Close runs.
	store, err := storage.New(ctx, cfg.StoragePath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	gate := player.NewCooldownGate(func(guildID string) (time.Duration, error) {
		seconds, err := store.GuildDelay(guildID)
		return time.Duration(seconds) * time.Second, err
	})

	cache := audio.NewCache(cfg.CacheDir, &audio.HTTPFetcher{}, cfg.FetchTimeout)
	pipeline := audio.NewPipeline(cfg.SoundsDir, cache)
	credStatus := auth.NewStatus()

	bot, err := discord.NewBot(cfg, store)
	if err != nil {
		log.Fatal(err)
	}

	manager := player.NewManager(
		player.Config{
			QueueCap:    cfg.QueueCap,
			IdleTimeout: cfg.IdleTimeout,
		},
		player.Deps{
			Gate:      gate,
			Resolver:  intro.NewResolver(store),
			Opener:    pipeline,
			Connector: discord.NewConnector(bot.Session()),
			Creds:     credStatus,
			OnResult:  logResult,
		},
	)
	bot.SetManager(manager)
	defer manager.Shutdown()

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		Scopes:       []string{"identify"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://discord.com/api/oauth2/authorize",
			TokenURL: "https://discord.com/api/oauth2/token",
		},
	}

	jobs := jobmgr.NewManager(func(msg string) {
		log.WithField("job", msg).Debug("job status")
	})
	defer jobs.StopAll()

	refresher := auth.NewRefresher(store, oauthCfg, credStatus, bot.Probe, cfg.RefreshInterval, cfg.RefreshWindow)
	if err := jobs.StartAsync(ctx, "credential-refresh", refresher.Run); err != nil {
		log.Fatal(err)
	}
	if err := jobs.StartAsync(ctx, "cache-sweeper", func(ctx context.Context) error {
		audio.RunCacheSweeper(ctx, cache, cacheMaxAge)
		return nil
	}); err != nil {
		log.Fatal(err)
	}

	errCh := make(chan error, 2)

	if cfg.RunBot {
		go func() {
			if err := bot.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	if cfg.RunAPI {
		srv := web.NewServer(cfg, store, &statusSource{
			manager: manager,
			cache:   cache,
			jobs:    jobs,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Infof("received signal %s, shutting down...", s)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("runtime error")
		}
		cancel()
	case <-ctx.Done():
	}

	log.Info("exited cleanly")
}

// logResult records handled join events; skips are normal outcomes and only
// logged at debug level.
func logResult(ev player.JoinEvent, err error) {
	logger := log.WithFields(log.Fields{
		"guild": ev.GuildID,
		"user":  ev.Username,
	})

	switch {
	case err == nil:
		logger.Debug("intro played")
	case errors.Is(err, player.ErrNoIntro),
		errors.Is(err, player.ErrCooldownActive),
		errors.Is(err, player.ErrCredentialInvalid):
		logger.WithField("reason", err.Error()).Debug("join event skipped")
	default:
		logger.WithError(err).Warn("join event failed")
	}
}

type statusSource struct {
	manager *player.Manager
	cache   *audio.Cache
	jobs    *jobmgr.Manager
}

func (s *statusSource) SessionStates() map[string]string { return s.manager.States() }
func (s *statusSource) CacheSize() (int64, error)        { return s.cache.Size() }
func (s *statusSource) Jobs() []string                   { return s.jobs.List() }
