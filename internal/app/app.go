package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"telegram-secret-santa/config"
	"telegram-secret-santa/internal/domain"
	"telegram-secret-santa/internal/logging"
	"telegram-secret-santa/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

func Run() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Bot stopped with error")
	}
	log.Info().Msg("Bot stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	texts, err := service.LoadMessages(cfg.Game.MessagesPath)
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = cfg.Telegram.Debug

	messenger := service.NewTelegramMessenger(api)
	if err := messenger.SetGroupCommands(texts); err != nil {
		log.Warn().Err(err).Msg("Failed to publish command list")
	}

	bot := service.NewSecretSantaBot(messenger, storage, texts, cfg.Game.SnowballHitChance)
	bot.BotUsername = api.Self.UserName

	if cfg.HTTP.Addr != "" {
		srv := newOpsServer(cfg.HTTP.Addr, storage)
		go serveOps(ctx, srv)
	}

	d := newDispatcher(cfg.Game.UpdateWorkers, bot.HandleCommand)
	d.start(ctx)
	defer d.stop()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Telegram.PollTimeout
	updates := api.GetUpdatesChan(u)

	log.Info().
		Str("username", api.Self.UserName).
		Str("storage", cfg.Storage.Driver).
		Int("workers", cfg.Game.UpdateWorkers).
		Msg("Bot started and ready!")

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			cmd, ok := service.CommandFromMessage(update.Message)
			if !ok {
				continue
			}
			d.dispatch(cmd)
		}
	}
}

// openStorage connects the backend selected by STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg *config.Config) (domain.StorageInterface, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		st, err := service.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return st, nil
	case config.StoragePostgres:
		st, err := service.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return st, nil
	case config.StorageRedis:
		st, err := service.NewStorage(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
