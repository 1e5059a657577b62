package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"activity_scraper/internal/app"
	"activity_scraper/internal/infra/config"
	idb "activity_scraper/internal/infra/database"
	"activity_scraper/internal/infra/logger"
	"activity_scraper/internal/infra/scheduler"
	"activity_scraper/internal/infra/scraper"
	"activity_scraper/internal/infra/source"
	"activity_scraper/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "scraper",
		Short: "Recurring activity scraper",
		Long: `Scrapes activity listings from the configured sources and stores them in PostgreSQL.

Commands:
  run   - scrape now, then again on every scheduled run until interrupted (default)
  once  - run a single scrape cycle and exit`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default: ./.env if present)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recurring scrape loop until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd.Context(), envFile)
		},
	}
	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run one scrape cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd.Context(), envFile)
		},
	}
	root.AddCommand(runCmd, onceCmd)
	root.RunE = runCmd.RunE

	return root
}

func loadConfig(envFile string) (*config.AppConfig, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	return cfg, nil
}

// setup opens the database and builds the cycle executor shared by both commands.
func setup(ctx context.Context, cfg *config.AppConfig) (*sql.DB, *app.CycleExecutor, error) {
	mainLogger := logger.Component("main")

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to database: %w", err)
	}
	mainLogger.Info("Database connection established")

	if err := idb.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	factory := source.NewWebSourceFactory(db, source.FactoryOptions{
		Scraper: scraper.Options{
			URLs:      cfg.SourceURLs,
			ItemsPath: cfg.ItemsPath,
			UserAgent: cfg.UserAgent,
		},
		HTTPTimeout: cfg.HTTPTimeout,
		RatePerSec:  cfg.RatePerSec,
	}, logger.Component("source"))

	executor := app.NewCycleExecutor(factory, cfg.StepTimeout, logger.Component("cycle"))
	return db, executor, nil
}

func runLoop(parent context.Context, envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"sources":     len(cfg.SourceURLs),
		"interval":    cfg.Interval.String(),
		"cron":        cfg.CronSpec,
		"policy":      cfg.FailurePolicy,
	}).Info("Configuration loaded")

	// The cancellation signal for the loop: set once on SIGINT/SIGTERM, never reset.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, executor, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var notifier scheduler.FailureNotifier
	var bot *telebot.Bot
	if cfg.TelegramEnabled() {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				logger.Component("telegram").WithError(err).Error("Telebot error")
			},
		})
		if err != nil {
			return fmt.Errorf("could not create Telegram bot: %w", err)
		}
		notifier = telegram.NewFailureAlerter(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, logger.Component("alerter"))
	}

	recurring := scheduler.NewRecurringScheduler(executor, cfg.Schedule, cfg.FailurePolicy, notifier, logger.Component("scheduler"))

	if bot != nil {
		telegram.RegisterAdminHandlers(ctx, bot, recurring, idb.NewPostgresActivityRepository(db), cfg.AdminTelegramID, logger.Component("telegram"))
		botCtx, stopBot := context.WithCancel(ctx)
		botDone := serveAdminBot(botCtx, bot)
		defer func() {
			stopBot()
			select {
			case <-botDone:
			case <-time.After(botShutdownTimeout):
				mainLogger.Warn("Telegram poller did not stop in time")
			}
		}()
		mainLogger.Info("Telegram admin channel started")
	}

	err = recurring.Run(ctx)
	if err != nil {
		mainLogger.WithError(err).Error("Recurring scheduler stopped on failure")
		return err
	}
	mainLogger.Info("Application shut down gracefully")
	return nil
}

const botShutdownTimeout = 15 * time.Second

// signalingPoller closes polling once the bot's update loop is running.
type signalingPoller struct {
	telebot.Poller
	polling chan struct{}
}

func (p *signalingPoller) Poll(b *telebot.Bot, updates chan telebot.Update, stop chan struct{}) {
	close(p.polling)
	p.Poller.Poll(b, updates, stop)
}

// serveAdminBot polls Telegram until ctx is done. The returned channel is
// closed once the bot has stopped. Stop is only sent after polling started,
// since telebot blocks on a Stop without a running Start loop.
func serveAdminBot(ctx context.Context, bot *telebot.Bot) <-chan struct{} {
	p := &signalingPoller{Poller: bot.Poller, polling: make(chan struct{})}
	bot.Poller = p

	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	go func() {
		<-ctx.Done()
		<-p.polling
		bot.Stop()
	}()
	return done
}

func runSingle(parent context.Context, envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, executor, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := executor.RunOnce(ctx, 1)
	if err != nil {
		return err
	}
	logger.Component("main").WithFields(logrus.Fields{
		"fetched":   result.Fetched,
		"persisted": result.Persisted,
		"cancelled": result.Cancelled,
		"duration":  result.Duration().String(),
	}).Info("Single cycle finished")
	return nil
}
