package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stresscam/internal/analysis"
	"stresscam/internal/api"
	"stresscam/internal/auth"
	"stresscam/internal/capture"
	"stresscam/internal/classifier"
	"stresscam/internal/config"
	"stresscam/internal/database"
	"stresscam/internal/messaging"
	"stresscam/internal/monitor"
	"stresscam/internal/notify"
	"stresscam/internal/pipeline"
	"stresscam/internal/sessionlog"
	"stresscam/internal/ws"
)

const (
	notifyBufferSize   = 4
	amqpBufferSize     = 64
	databaseBufferSize = 256
	sinkDrainTimeout   = 5 * time.Second
)

// liveOptions controls which outer surfaces a live session starts
type liveOptions struct {
	serveAPI      bool
	openSource    func(ctx context.Context, cfg capture.Config, logger *logrus.Logger) (capture.Source, error)
	newClassifier func(cfg classifier.Config, logger *logrus.Logger) (classifier.Client, error)
}

func defaultLiveOptions(serveAPI bool) liveOptions {
	return liveOptions{
		serveAPI:      serveAPI,
		openSource:    capture.Open,
		newClassifier: classifier.New,
	}
}

// runLive captures until ctx is cancelled or the source ends, then stops the
// worker, exports the session and returns its summary
func runLive(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts liveOptions) (*monitor.Summary, string, error) {
	src, err := opts.openSource(ctx, cfg.Capture, logger)
	if err != nil {
		if errors.Is(err, capture.ErrNoDevice) {
			return nil, "", fmt.Errorf("no camera available (device %q); connect a camera or set capture.device: %w", cfg.Capture.Device, err)
		}
		return nil, "", fmt.Errorf("open capture: %w", err)
	}
	defer src.Close()

	client, err := opts.newClassifier(cfg.ClassifierConfig(), logger)
	if err != nil {
		return nil, "", fmt.Errorf("create classifier: %w", err)
	}
	if closer, ok := client.(io.Closer); ok {
		defer closer.Close()
	}
	if err := client.CheckHealth(ctx); err != nil {
		logger.WithError(err).Warn("Classifier is not reachable yet; frames will be dropped until it is")
	}

	p, err := pipeline.New(client, cfg.PipelineConfig(), logger)
	if err != nil {
		return nil, "", err
	}

	startedAt := time.Now()
	sessionID := uuid.New().String()
	bus := monitor.NewEventBus()
	defer bus.Close()

	mon, err := monitor.New(monitor.Config{
		SessionID:   sessionID,
		Stress:      cfg.Stress,
		HistorySize: cfg.Session.HistorySize,
	}, p, sessionlog.New(cfg.Session.ExportDir, startedAt), bus, logger)
	if err != nil {
		return nil, "", err
	}

	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()

	var recordSink *database.RecordSink
	if cfg.Database.Enabled {
		store, err := database.Open(cfg.Database.Path)
		if err != nil {
			return nil, "", err
		}
		defer store.Close()
		recordSink, err = database.NewRecordSink(store, sessionID, startedAt, logger)
		if err != nil {
			return nil, "", err
		}
		bus.SubscribeAsync(sinkCtx, databaseBufferSize, recordSink)
	}

	if cfg.AMQP.Enabled {
		publisher := messaging.NewPublisher(messaging.Config{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			RoutingKey: cfg.AMQP.RoutingKey,
		}, logger)
		defer publisher.Close()
		bus.SubscribeAsync(sinkCtx, amqpBufferSize, publisher)
	}

	if cfg.Telegram.Enabled {
		bot := notify.NewTelegramBot(telegramConfig(cfg))
		if bot.IsEnabled() {
			bus.SubscribeAsync(sinkCtx, notifyBufferSize, notify.NewStressNotifier(bot, logger))
		} else {
			logger.Warn("Telegram alerts enabled but bot token or chat id is missing")
		}
	}

	hub := ws.NewAffectHub(logger)
	defer hub.Close()
	bus.Subscribe(hub)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	serverErr := make(chan error, 1)
	if opts.serveAPI {
		server, err := newAPIServer(cfg, logger, client, mon, hub)
		if err != nil {
			return nil, "", err
		}
		go func() {
			err := server.Run(runCtx, cfg.API.Bind)
			if err != nil {
				logger.WithError(err).Error("HTTP server failed")
				cancelRun()
			}
			serverErr <- err
		}()
	}

	logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"device":     cfg.Capture.Device,
		"classifier": client.Name(),
	}).Info("Session started")

	p.Start(runCtx)
	runErr := mon.Run(runCtx, src)
	cancelRun()
	p.Stop()

	if opts.serveAPI {
		if err := <-serverErr; err != nil && runErr == nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	bus.Close()
	if !bus.Wait(sinkDrainTimeout) {
		logger.Warn("Update sinks did not drain in time")
	}

	exportPath := ""
	if cfg.Session.ExportOnExit {
		path, err := mon.Export("")
		switch {
		case errors.Is(err, sessionlog.ErrNoData):
			logger.Info("No session data to export")
		case err != nil:
			logger.WithError(err).Error("Session export failed")
		default:
			exportPath = path
		}
	}

	if recordSink != nil {
		if err := recordSink.Finish(time.Now(), exportPath); err != nil {
			logger.WithError(err).Warn("Failed to close stored session")
		}
	}

	summary := mon.Summary()
	return &summary, exportPath, runErr
}

func telegramConfig(cfg *config.Config) notify.Config {
	return notify.Config{
		BotToken:        cfg.Telegram.BotToken,
		ChatID:          cfg.Telegram.ChatID,
		Enabled:         cfg.Telegram.Enabled,
		CooldownSeconds: cfg.Telegram.CooldownSeconds,
		APIBaseURL:      cfg.Telegram.APIBaseURL,
	}
}

// newAPIServer builds the HTTP API. Session and hub are nil when no live
// session is running.
func newAPIServer(cfg *config.Config, logger *logrus.Logger, client classifier.Client, session api.Session, hub *ws.AffectHub) (*api.Server, error) {
	authenticator, err := auth.NewAuthenticator(auth.Config{
		Enabled:   cfg.Auth.Enabled,
		Username:  cfg.Auth.Username,
		Password:  cfg.Auth.Password,
		JWTSecret: cfg.Auth.JWTSecret,
		JWTExpiry: cfg.JWTExpiry(),
	})
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	timeout := time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second
	return api.NewServer(api.Options{
		Version:  version,
		Analyzer: analysis.NewAnalyzer(client, timeout, logger),
		Session:  session,
		Hub:      hub,
		Auth:     authenticator,
		Health:   client,
		Logger:   logger,
	}), nil
}
