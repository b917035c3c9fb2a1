package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/bridge-bot/internal/bot"
	"github.com/xaenox/bridge-bot/internal/metrics"
	"github.com/xaenox/bridge-bot/internal/models"
	"github.com/xaenox/bridge-bot/internal/relay"
	"github.com/xaenox/bridge-bot/internal/storage"
	"github.com/xaenox/bridge-bot/pkg/config"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// gatedKinds turns configured channel type names into channel kinds.
func gatedKinds(names []string, logger *zap.Logger) []models.ChannelKind {
	kinds := make([]models.ChannelKind, 0, len(names))
	for _, name := range names {
		kind := models.ChannelKind(strings.ToLower(strings.TrimSpace(name)))
		switch kind {
		case models.KindText, models.KindThread, models.KindForum, models.KindMedia:
			kinds = append(kinds, kind)
		default:
			logger.Warn("Ignoring unknown gated channel type", zap.String("type", name))
		}
	}
	return kinds
}

func main() {
	configPath := pflag.String("config", "config.yaml", "path to the config file")
	oneWay := pflag.Bool("one-way", false, "relay Discord to Slack only")
	pflag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load(".env")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}
	if *oneWay {
		cfg.Relay.OneWay = true
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		logger = zap.Must(zap.NewProduction())
		logger.Warn("Invalid log level, using info", zap.String("level", cfg.Log.Level))
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err), zap.String("path", *configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.DatabaseConfig{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		Path:     cfg.Database.Path,
		RedisURL: cfg.Database.RedisURL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	discord, err := bot.NewDiscordBot(cfg.Discord.Token, logger)
	if err != nil {
		logger.Fatal("Failed to create Discord bot", zap.Error(err))
	}
	slackBot := bot.NewSlackBot(cfg.Slack.BotToken, cfg.Slack.AppToken, logger)

	gate := relay.NewGate(
		cfg.Discord.ApprovalEmoji,
		cfg.Discord.PrivilegedRoles,
		relay.KindsPredicate(gatedKinds(cfg.Discord.GatedChannelTypes, logger)...),
	)
	engine := relay.NewEngine(relay.Config{
		BridgeChannelID: cfg.Discord.ChannelID,
		DestChannelID:   cfg.Slack.ChannelID,
		ForwardAvatars:  cfg.Relay.ForwardAvatars,
	}, gate, store, discord, slackBot.Sender(), logger)

	var reverse *relay.Reverse
	if cfg.Relay.OneWay {
		logger.Info("One-way mode, Slack to Discord relay disabled")
	} else {
		webhook, err := bot.NewWebhookSender(discord.Session(), cfg.Discord.WebhookURL)
		if err != nil {
			logger.Fatal("Failed to configure Discord webhook", zap.Error(err))
		}
		directory := slackBot.Directory()
		reverse = relay.NewReverse(relay.ReverseConfig{
			SourceChannelID: cfg.Slack.ChannelID,
			ForwardAvatars:  cfg.Relay.ForwardAvatars,
		}, directory, directory, webhook, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return discord.Run(gctx, engine)
	})
	if reverse != nil {
		g.Go(func() error {
			return slackBot.Run(gctx, reverse)
		})
	}

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Addr, logger)
		})
	}

	logger.Info("Bridge started",
		zap.String("discord_channel", cfg.Discord.ChannelID),
		zap.String("slack_channel", cfg.Slack.ChannelID),
		zap.Bool("one_way", cfg.Relay.OneWay))

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Bridge stopped with error", zap.Error(runErr))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
	defer cancel()
	if err := discord.Wait(waitCtx); err != nil {
		logger.Warn("Discord handlers did not finish in time", zap.Error(err))
	}
	if err := slackBot.Wait(waitCtx); err != nil {
		logger.Warn("Slack handlers did not finish in time", zap.Error(err))
	}

	logger.Info("Bridge stopped")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Sync()
		os.Exit(1)
	}
}
