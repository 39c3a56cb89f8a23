package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stresscam/internal/classifier"
	"stresscam/internal/pipeline"
)

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.Stress.Validate(); err != nil {
		return fmt.Errorf("stress: %w", err)
	}
	if c.Session.HistorySize <= 0 {
		return errors.New("session.history_size must be positive")
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if c.AMQP.Enabled && (strings.TrimSpace(c.AMQP.URL) == "" || c.AMQP.Exchange == "") {
		return errors.New("amqp.url and amqp.exchange must be set when amqp.enabled is true")
	}
	if c.Database.Enabled && strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must be set when database.enabled is true")
	}
	return c.validateLogging()
}

func (c *Config) validatePipeline() error {
	switch pipeline.DispatchMode(c.Pipeline.Mode) {
	case pipeline.DispatchModeStride:
		if c.Pipeline.Stride <= 0 {
			return fmt.Errorf("pipeline.stride must be positive, got %d", c.Pipeline.Stride)
		}
	case pipeline.DispatchModeInterval:
		if c.Pipeline.IntervalMs <= 0 {
			return fmt.Errorf("pipeline.interval_ms must be positive, got %d", c.Pipeline.IntervalMs)
		}
	default:
		return fmt.Errorf("pipeline.mode must be stride or interval, got %q", c.Pipeline.Mode)
	}
	if c.Pipeline.AnalysisWidth <= 0 || c.Pipeline.AnalysisHeight <= 0 {
		return errors.New("pipeline analysis resolution must be positive")
	}
	if c.Pipeline.WaitTimeoutMs < 0 || c.Pipeline.JoinTimeoutMs < 0 || c.Pipeline.ClassifyTimeoutMs < 0 {
		return errors.New("pipeline timeouts cannot be negative")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.Transport {
	case classifier.TransportHTTP, classifier.TransportGRPC:
	default:
		return fmt.Errorf("classifier.transport must be http or grpc, got %q", c.Classifier.Transport)
	}
	if strings.TrimSpace(c.Classifier.Endpoint) == "" {
		return errors.New("classifier.endpoint must be set")
	}
	if c.Classifier.JPEGQuality < 1 || c.Classifier.JPEGQuality > 100 {
		return fmt.Errorf("classifier.jpeg_quality must be in [1,100], got %d", c.Classifier.JPEGQuality)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if !c.Auth.Enabled {
		return nil
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return errors.New("auth.username and auth.password must be set when auth is enabled (AUTH_USERNAME, AUTH_PASSWORD)")
	}
	if _, err := time.ParseDuration(c.Auth.JWTExpiry); err != nil {
		return fmt.Errorf("auth.jwt_expiry: %w", err)
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if !c.Telegram.Enabled {
		return nil
	}
	if c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when enabled (TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return errors.New("telegram chat ID is required when enabled (TELEGRAM_CHAT_ID)")
	}
	if c.Telegram.CooldownSeconds < 0 {
		return errors.New("telegram.cooldown_seconds cannot be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be auto, text or json, got %q", c.Logging.Format)
	}
}
