package auth

import (
	"context"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"memejoin/internal/storage"
)

// UserStore is the slice of storage the refresher needs.
type UserStore interface {
	Users() ([]storage.User, error)
	UpsertUser(user storage.User) error
	MarkCredentialInvalid(username string) error
}

// BotProbe checks that the bot-level credential still works, typically by
// fetching the bot's own user. Nil error means healthy.
type BotProbe func(ctx context.Context) error

// Refresher periodically renews user Discord tokens nearing expiry and
// probes the bot credential. Renewal failures mark the stored credential
// invalid so the web surface can request re-authentication; they never stop
// the loop.
type Refresher struct {
	store    UserStore
	oauth    *oauth2.Config
	status   *Status
	probe    BotProbe
	interval time.Duration
	window   time.Duration
}

func NewRefresher(store UserStore, oauth *oauth2.Config, status *Status, probe BotProbe, interval, window time.Duration) *Refresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Refresher{
		store:    store,
		oauth:    oauth,
		status:   status,
		probe:    probe,
		interval: interval,
		window:   window,
	}
}

// Run loops until ctx is done. The first check is delayed by a random
// fraction of the interval so restarts do not stampede the token endpoint.
func (r *Refresher) Run(ctx context.Context) error {
	initialJitter := time.Duration(rand.Int63n(int64(r.interval/2) + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(initialJitter):
	}

	for {
		r.checkBot(ctx)
		r.refreshUsers(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

func (r *Refresher) checkBot(ctx context.Context) {
	if r.probe == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := r.probe(probeCtx); err != nil {
		if r.status.Valid() {
			log.WithError(err).Error("bot credential probe failed, halting voice connections")
		}
		r.status.MarkInvalid()
		return
	}

	if !r.status.Valid() {
		log.Info("bot credential recovered")
	}
	r.status.MarkValid()
}

func (r *Refresher) refreshUsers(ctx context.Context) {
	users, err := r.store.Users()
	if err != nil {
		log.WithError(err).Error("failed to list users for token refresh")
		return
	}

	for _, user := range users {
		if user.CredentialInvalid || user.DiscordRefreshToken == "" {
			continue
		}
		if time.Until(user.DiscordTokenExpiresAt) > r.window {
			continue
		}
		r.refreshUser(ctx, user)

		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Refresher) refreshUser(ctx context.Context, user storage.User) {
	logger := log.WithField("user", user.Name)

	refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	src := r.oauth.TokenSource(refreshCtx, &oauth2.Token{
		RefreshToken: user.DiscordRefreshToken,
		Expiry:       user.DiscordTokenExpiresAt,
	})

	token, err := src.Token()
	if err != nil {
		logger.WithError(err).Warn("token refresh failed, marking credential invalid")
		if err := r.store.MarkCredentialInvalid(user.Name); err != nil {
			logger.WithError(err).Error("failed to mark credential invalid")
		}
		return
	}

	user.DiscordToken = token.AccessToken
	if token.RefreshToken != "" {
		user.DiscordRefreshToken = token.RefreshToken
	}
	user.DiscordTokenExpiresAt = token.Expiry
	user.CredentialInvalid = false

	if err := r.store.UpsertUser(user); err != nil {
		logger.WithError(err).Error("failed to persist refreshed token")
		return
	}
	logger.Info("discord token refreshed")
}
