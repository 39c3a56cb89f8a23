package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"stresscam/internal/config"
	"stresscam/internal/database"
	"stresscam/internal/logging"
	"stresscam/internal/metrics"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *logrus.Logger
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger builds the process logger once and initialises metrics
func (c *commandContext) ensureLogger() (*logrus.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	var logErr error
	c.loggerOnce.Do(func() {
		c.logger, logErr = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		if logErr == nil {
			metrics.Init(c.logger)
		}
	})
	if logErr != nil {
		return nil, fmt.Errorf("configure logging: %w", logErr)
	}
	if c.logger == nil {
		return nil, fmt.Errorf("logger unavailable")
	}
	return c.logger, nil
}

func (c *commandContext) withStore(fn func(*database.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session database %s not found; enable [database] and record a session with `stresscam run`", cfg.Database.Path)
		}
		return fmt.Errorf("check session database: %w", err)
	}

	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
