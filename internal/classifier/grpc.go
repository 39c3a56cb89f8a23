package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"stresscam/internal/emotion"
	"stresscam/internal/metrics"
	"stresscam/internal/pipeline"
)

const (
	// GRPCService is the classifier service name, also used for health checks
	GRPCService = "stresscam.classifier.v1.EmotionClassifier"
	// GRPCAnalyzeMethod is the unary analysis method. Requests and responses
	// are google.protobuf.Struct values shaped like the HTTP JSON bodies.
	GRPCAnalyzeMethod = "/" + GRPCService + "/Analyze"

	healthCacheTTL = 30 * time.Second
)

// GRPCClassifier calls the emotion classifier over gRPC
type GRPCClassifier struct {
	endpoint    string
	conn        *grpc.ClientConn
	health      healthpb.HealthClient
	jpegQuality int
	timeout     time.Duration
	healthMu    sync.RWMutex
	healthy     bool
	lastHealth  time.Time
	logger      *logrus.Entry
}

// NewGRPCClassifier creates a gRPC classifier client. The connection is
// established lazily on the first call.
func NewGRPCClassifier(cfg Config, logger *logrus.Logger, opts ...grpc.DialOption) (*GRPCClassifier, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("grpc endpoint is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}

	c := &GRPCClassifier{
		endpoint:    cfg.Endpoint,
		conn:        conn,
		health:      healthpb.NewHealthClient(conn),
		jpegQuality: cfg.JPEGQuality,
		timeout:     cfg.Timeout,
		logger:      logger.WithField("component", "grpc-classifier"),
	}
	c.logger.WithField("endpoint", cfg.Endpoint).Info("gRPC classifier configured")
	return c, nil
}

func (c *GRPCClassifier) Name() string {
	return TransportGRPC
}

// IsHealthy returns the cached health state
func (c *GRPCClassifier) IsHealthy() bool {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.healthy
}

// CheckHealth queries the standard gRPC health service, caching a healthy
// answer for 30 seconds
func (c *GRPCClassifier) CheckHealth(ctx context.Context) error {
	c.healthMu.RLock()
	fresh := c.healthy && time.Since(c.lastHealth) < healthCacheTTL
	c.healthMu.RUnlock()
	if fresh {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: GRPCService})

	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	c.lastHealth = time.Now()
	if err != nil {
		c.healthy = false
		return fmt.Errorf("health check failed: %w", err)
	}
	c.healthy = resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	if !c.healthy {
		return fmt.Errorf("service unhealthy: status=%s", resp.GetStatus())
	}
	return nil
}

// Classify sends the frame to the classifier service
func (c *GRPCClassifier) Classify(ctx context.Context, frame *pipeline.FrameData) (detections []emotion.Detection, err error) {
	done := metrics.ObserveClassifier(TransportGRPC)
	defer func() { done(err) }()

	imageData, err := EncodeJPEG(frame.Image, c.jpegQuality)
	if err != nil {
		return nil, err
	}
	return c.ClassifyJPEG(ctx, imageData)
}

// ClassifyJPEG analyses an already-encoded image
func (c *GRPCClassifier) ClassifyJPEG(ctx context.Context, imageData []byte) ([]emotion.Detection, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"image":  base64.StdEncoding.EncodeToString(imageData),
		"format": "jpeg",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, GRPCAnalyzeMethod, req, resp); err != nil {
		return nil, fmt.Errorf("analyze rpc failed: %w", err)
	}

	raw, err := protojson.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	return result.Detections(), nil
}

// Close releases the connection
func (c *GRPCClassifier) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

var _ pipeline.Classifier = (*GRPCClassifier)(nil)
var _ pipeline.HealthChecker = (*GRPCClassifier)(nil)
