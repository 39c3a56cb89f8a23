package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() {
	c.Capture.Device = getEnv("STRESSCAM_DEVICE", c.Capture.Device)
	c.Capture.FPS = getEnvInt("STRESSCAM_FPS", c.Capture.FPS)

	c.Pipeline.Mode = getEnv("STRESSCAM_DISPATCH_MODE", c.Pipeline.Mode)
	c.Pipeline.Stride = getEnvInt("STRESSCAM_STRIDE", c.Pipeline.Stride)

	c.Classifier.Transport = getEnv("STRESSCAM_CLASSIFIER_TRANSPORT", c.Classifier.Transport)
	c.Classifier.Endpoint = getEnv("STRESSCAM_CLASSIFIER_ENDPOINT", c.Classifier.Endpoint)

	c.Session.ExportDir = getEnv("STRESSCAM_EXPORT_DIR", c.Session.ExportDir)
	c.API.Bind = getEnv("STRESSCAM_API_BIND", c.API.Bind)

	c.Auth.Enabled = getEnvBool("AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.Username = getEnv("AUTH_USERNAME", c.Auth.Username)
	c.Auth.Password = getEnv("AUTH_PASSWORD", c.Auth.Password)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTExpiry = getEnv("JWT_EXPIRY", c.Auth.JWTExpiry)

	c.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Telegram.Enabled = getEnvBool("TELEGRAM_ENABLED", c.Telegram.Enabled)

	c.AMQP.URL = getEnv("STRESSCAM_AMQP_URL", c.AMQP.URL)
	c.AMQP.Enabled = getEnvBool("STRESSCAM_AMQP_ENABLED", c.AMQP.Enabled)

	c.Database.Path = getEnv("STRESSCAM_DB_PATH", c.Database.Path)
	c.Database.Enabled = getEnvBool("STRESSCAM_DB_ENABLED", c.Database.Enabled)

	c.Logging.Level = getEnv("STRESSCAM_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("STRESSCAM_LOG_FORMAT", c.Logging.Format)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}
