package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/korjavin/commitquizbot/bot"
	"github.com/korjavin/commitquizbot/commits"
	"github.com/korjavin/commitquizbot/config"
	"github.com/korjavin/commitquizbot/contributions"
	"github.com/korjavin/commitquizbot/database"
	"github.com/korjavin/commitquizbot/github"
	"github.com/korjavin/commitquizbot/logger"
	"github.com/korjavin/commitquizbot/progress"
	"github.com/korjavin/commitquizbot/questions"
	"github.com/korjavin/commitquizbot/quiz"
	"github.com/korjavin/commitquizbot/scheduler"
	"github.com/korjavin/commitquizbot/session"
)

const retryInterval = 15 * time.Minute

func run(ctx context.Context, cmd *cobra.Command, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, cfg)

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting commit quiz bot", zap.Bool("webhook", cfg.Server.Webhook), zap.String("default_tz", cfg.DefaultTZ))

	loc, err := time.LoadLocation(cfg.DefaultTZ)
	if err != nil {
		return fmt.Errorf("DEFAULT_TZ %q: %w", cfg.DefaultTZ, err)
	}

	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		if errors.Is(err, database.ErrStoreUnavailable) {
			log.Error("store unavailable at startup", zap.String("path", cfg.DatabasePath), zap.Error(err))
		}
		return err
	}
	defer db.Close()

	bank, err := questions.Load()
	if err != nil {
		return err
	}
	log.Info("question bank loaded", zap.Int("questions", bank.Len()))

	var committer commits.Committer
	if cfg.GitHub.Configured() {
		committer = github.NewClient(github.Config{
			Token:       cfg.GitHub.Token,
			Repo:        cfg.GitHub.Repo,
			AuthorName:  cfg.GitHub.AuthorName,
			AuthorEmail: cfg.GitHub.AuthorEmail,
		}, log)
	} else {
		log.Warn("github commits disabled", zap.Strings("missing", cfg.GitHub.Missing()))
	}
	trigger := commits.NewTrigger(db, committer, cfg.GitHub.Timeout(), log)

	var sessions session.Store = session.NewMemoryStore(session.DefaultTTL)
	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		sessions = session.NewRedisStore(rc, session.DefaultTTL)
		log.Info("using redis session cache", zap.String("addr", cfg.Redis.Addr))
	}

	sched := scheduler.New(db, log)
	svc := quiz.New(quiz.Deps{
		Store:     db,
		Progress:  progress.NewEngine(db, loc),
		Reminders: sched,
		Commits:   trigger,
		Bank:      bank,
		Graph:     contributions.NewClient("", log),
		Sessions:  sessions,
		DefaultTZ: cfg.DefaultTZ,
		Log:       log,
	})

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = cfg.Debug
	log.Info("authorized", zap.String("bot", api.Self.UserName))

	routerCfg := bot.RouterConfig{WebhookPath: cfg.Server.WebhookPath, Debug: cfg.Debug}
	var updates <-chan tgbotapi.Update
	if cfg.Server.Webhook {
		if cfg.Server.BaseURL == "" {
			return errors.New("webhook mode needs --base-url or BASE_URL")
		}
		wh, err := tgbotapi.NewWebhook(strings.TrimRight(cfg.Server.BaseURL, "/") + cfg.Server.WebhookPath)
		if err != nil {
			return fmt.Errorf("webhook url: %w", err)
		}
		if _, err := api.Request(wh); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		ch := make(chan tgbotapi.Update, api.Buffer)
		routerCfg.Decode = api.HandleUpdate
		routerCfg.Updates = ch
		updates = ch
	} else {
		if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Warn("delete webhook", zap.Error(err))
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = api.GetUpdatesChan(u)
	}

	b := bot.New(api, svc, log)
	router := bot.NewRouter(routerCfg, log)

	g, gctx := errgroup.WithContext(ctx)
	if _, err := sched.Restore(gctx); err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	}

	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return b.Run(gctx, updates, sched.Events()) })
	g.Go(func() error { return bot.Serve(gctx, cfg.Server.Listen, cfg.Server.Port, router, log) })
	g.Go(func() error {
		retryOwed(gctx, trigger, log)
		return nil
	})
	if !cfg.Server.Webhook {
		g.Go(func() error {
			<-gctx.Done()
			api.StopReceivingUpdates()
			return nil
		})
	}

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

func applyFlags(cmd *cobra.Command, f flags, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("webhook") {
		cfg.Server.Webhook = f.webhook
	}
	if fs.Changed("base-url") {
		cfg.Server.BaseURL = f.baseURL
	}
	if fs.Changed("path") {
		cfg.Server.WebhookPath = f.path
	}
	if fs.Changed("port") {
		cfg.Server.Port = f.port
	}
	if fs.Changed("listen") {
		cfg.Server.Listen = f.listen
	}
}

// retryOwed re-issues commit batches that failed earlier, once at start and
// then on a ticker.
func retryOwed(ctx context.Context, trigger *commits.Trigger, log *zap.Logger) {
	if !trigger.Configured() {
		return
	}
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		if _, err := trigger.RetryOwed(ctx); err != nil && ctx.Err() == nil {
			log.Warn("owed commit retry incomplete", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
