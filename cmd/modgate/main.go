// Command modgate runs the subscription-gated download bot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kabili207/modgate/bot/authoring"
	"github.com/kabili207/modgate/bot/broadcast"
	"github.com/kabili207/modgate/bot/publish"
	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/bot/repo"
	"github.com/kabili207/modgate/bot/server"
	"github.com/kabili207/modgate/bot/suggest"
	"github.com/kabili207/modgate/bot/users"
	"github.com/kabili207/modgate/config"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/access"
	"github.com/kabili207/modgate/core/callback"
	"github.com/kabili207/modgate/core/clock"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/events"
	"github.com/kabili207/modgate/events/mqtt"
	"github.com/kabili207/modgate/httpapi"
	"github.com/kabili207/modgate/storage"
	"github.com/kabili207/modgate/storage/jsonfile"
	"github.com/kabili207/modgate/storage/sqlstore"
	"github.com/kabili207/modgate/transport"
	"github.com/kabili207/modgate/transport/telegram"
)

func main() {
	if err := run(); err != nil {
		slog.Error("modgate exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	cats, err := cfg.CategoryTable()
	if err != nil {
		return err
	}

	client := telegram.New(telegram.Config{
		AppID:       cfg.AppID,
		AppHash:     cfg.AppHash,
		BotToken:    cfg.BotToken,
		SessionFile: cfg.SessionFile,
		Logger:      logger,
	})

	// The change callbacks read back through reg and roles, so they are
	// declared before either is built.
	var (
		reg   *users.Registry
		roles *role.Set
	)
	saveUsers := storage.SyncUsers(store, storage.UserSource{
		Known:  func() []core.UserID { return reg.Known() },
		Banned: func() []core.UserID { return reg.Banned() },
		Admins: func() []core.UserID { return roles.Admins() },
	}, logger)

	clk := clock.New()
	reg = users.New(users.Config{
		Cooldown:  cfg.SuggestionCooldown,
		Threshold: cfg.ViolationThreshold,
		Clock:     clk,
		OnChange:  saveUsers,
		Logger:    logger,
	})
	reg.Restore(snap.Users.Known, snap.Users.Banned)

	admins := cfg.AdminIDs()
	for _, id := range snap.Users.Admins {
		if id != cfg.OwnerID() && !slices.Contains(admins, id) {
			admins = append(admins, id)
		}
	}
	roles = role.NewSet(role.SetConfig{Owner: cfg.OwnerID(), Admins: admins, OnChange: saveUsers})

	posts := repo.New(repo.Config{Saver: store, Logger: logger})
	posts.Restore(snap.Posts)
	logger.Info("state restored", "posts", posts.Count(), "users", reg.Count(), "admins", len(admins))

	dir := access.NewDirectory(cfg.Channels, cfg.PrimaryChannel)
	rnd := render.New(client, logger)
	codec := callback.New([]byte(cfg.BotToken))

	var pub events.Publisher
	if cfg.MQTTBroker != "" {
		mq := mqtt.New(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			UseTLS:      cfg.MQTTTLS,
			TopicPrefix: cfg.MQTTTopicPrefix,
			BotID:       botID(cfg.BotToken),
			Logger:      logger,
		})
		if err := mq.Start(ctx); err != nil {
			logger.Warn("mqtt event feed disabled", "error", err)
		} else {
			defer mq.Stop()
			pub = mq
		}
	}
	emitter := events.NewEmitter(pub, logger)

	ctl := authoring.NewController(authoring.Config{
		Transport: client,
		Posts:     posts,
		Roles:     roles,
		Publisher: publish.New(publish.Config{Transport: client, Posts: posts, Channels: dir, Renderer: rnd, Logger: logger}),
		Fanout: broadcast.New(broadcast.Config{
			Transport:   client,
			Posts:       posts,
			Audience:    reg,
			Staff:       roles,
			Renderer:    rnd,
			Delay:       cfg.FanoutDelay,
			Concurrency: cfg.FanoutConcurrency,
			Logger:      logger,
		}),
		Renderer:   rnd,
		Callbacks:  codec,
		Categories: cats,
		Channels:   dir,
		Events:     emitter,
		Logger:     logger,
	})
	wf := suggest.New(suggest.Config{
		Transport: client,
		Users:     reg,
		Roles:     roles,
		Clock:     clk,
		Callbacks: codec,
		Events:    emitter,
		Logger:    logger,
	})
	srv := server.NewServer(server.ServerConfig{
		Transport:   client,
		Posts:       posts,
		Users:       reg,
		Roles:       roles,
		Authoring:   ctl,
		Suggestions: wf,
		Gate:        access.NewGate(access.GateConfig{Directory: dir, Lookup: client, Logger: logger}),
		Channels:    dir,
		Renderer:    rnd,
		Callbacks:   codec,
		Categories:  cats,
		Events:      emitter,
		BannerMedia: cfg.Banner(),
		Logger:      logger,
	})

	client.SetUpdateHandler(srv.HandleUpdate)
	client.SetStateHandler(func(_ transport.Client, e transport.Event) {
		logger.Info("telegram state changed", "event", e)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Start(ctx)
	})
	if cfg.HTTPAddr != "" {
		api := httpapi.New(httpapi.Config{
			Addr:      cfg.HTTPAddr,
			Stats:     srv,
			Connected: client.IsConnected,
			Logger:    logger,
		})
		g.Go(func() error {
			return api.Run(ctx)
		})
	}
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.StoragePath, logger)
	case config.StoragePostgres:
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.DatabaseURL, logger)
	default:
		return jsonfile.Open(cfg.StoragePath)
	}
}

// botID returns the numeric prefix of a bot token.
func botID(token string) string {
	id, _, _ := strings.Cut(token, ":")
	return id
}
