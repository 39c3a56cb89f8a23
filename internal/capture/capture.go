// Package capture provides frame sources for the live monitor: a local V4L2
// camera or network stream read through ffmpeg, or an HTTP snapshot URL
// polled at a fixed rate.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoDevice is returned when no usable capture device can be found
var ErrNoDevice = errors.New("no capture device available")

// AutoDevice asks Open to probe for the first accessible local camera
const AutoDevice = "auto"

// probeDevices are tried in order when the device is "auto"
var probeDevices = []string{"/dev/video0", "/dev/video1", "/dev/video2", "/dev/video3", "/dev/video4"}

// Source yields decoded frames. Next blocks until a frame is available, ctx is
// cancelled, or the source ends (io.EOF).
type Source interface {
	Next(ctx context.Context) (image.Image, time.Time, error)
	Close() error
}

// Config holds capture settings
type Config struct {
	Device     string `toml:"device"` // "auto", /dev/videoN, rtsp://, http(s):// stream or snapshot URL
	FPS        int    `toml:"fps"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	FFmpegPath string `toml:"ffmpeg_path"`
}

// DefaultConfig returns capture defaults
func DefaultConfig() Config {
	return Config{
		Device:     AutoDevice,
		FPS:        30,
		Width:      640,
		Height:     480,
		FFmpegPath: "ffmpeg",
	}
}

// Validate checks the capture settings
func (c Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("capture device is required")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("capture fps must be positive, got %d", c.FPS)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	return nil
}

// Open resolves the configured device and starts the matching source
func Open(ctx context.Context, cfg Config, logger *logrus.Logger) (Source, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	device, err := ResolveDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	cfg.Device = device

	entry := logger.WithFields(logrus.Fields{"component": "capture", "device": device})
	if IsSnapshotURL(device) {
		entry.Info("Polling HTTP snapshots")
		return NewSnapshotSource(device, cfg.FPS, entry), nil
	}

	entry.WithField("fps", cfg.FPS).Info("Starting ffmpeg capture")
	return StartFFmpeg(ctx, cfg, entry)
}

// ResolveDevice expands "auto" to the first accessible probe device and checks
// that local devices exist. Network sources are returned as-is.
func ResolveDevice(device string) (string, error) {
	if device == AutoDevice {
		for _, candidate := range probeDevices {
			if deviceAccessible(candidate) {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("%w: probed %s", ErrNoDevice, strings.Join(probeDevices, ", "))
	}

	if IsNetworkSource(device) {
		return device, nil
	}
	if !deviceAccessible(device) {
		return "", fmt.Errorf("%w: %s is not accessible", ErrNoDevice, device)
	}
	return device, nil
}

// IsNetworkSource reports whether device is an HTTP or RTSP URL
func IsNetworkSource(device string) bool {
	return strings.HasPrefix(device, "http://") ||
		strings.HasPrefix(device, "https://") ||
		strings.HasPrefix(device, "rtsp://")
}

// IsSnapshotURL reports whether device is an HTTP endpoint serving single images
func IsSnapshotURL(device string) bool {
	if !strings.HasPrefix(device, "http://") && !strings.HasPrefix(device, "https://") {
		return false
	}
	return strings.Contains(device, ".jpg") || strings.Contains(device, ".jpeg") ||
		strings.Contains(device, ".png") || strings.Contains(device, "snapshot")
}

func deviceAccessible(device string) bool {
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	file.Close()
	return true
}
