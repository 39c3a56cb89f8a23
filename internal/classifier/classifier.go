// Package classifier holds the clients for the external emotion
// classification service.
package classifier

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"stresscam/internal/pipeline"
)

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config selects and configures a classifier client
type Config struct {
	Transport   string
	Endpoint    string
	Timeout     time.Duration
	JPEGQuality int
}

// Client is a classifier that can also report health
type Client interface {
	pipeline.Classifier
	pipeline.HealthChecker
}

// New creates the client for the configured transport
func New(cfg Config, logger *logrus.Logger) (Client, error) {
	switch cfg.Transport {
	case TransportHTTP, "":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("classifier endpoint is required")
		}
		return NewHTTPClassifier(cfg), nil
	case TransportGRPC:
		return NewGRPCClassifier(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown classifier transport: %s", cfg.Transport)
	}
}
