package capture

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// FFmpegSource reads MJPEG frames from an ffmpeg image2pipe process
type FFmpegSource struct {
	*StreamSource
	cmd    *exec.Cmd
	cancel context.CancelFunc
	once   sync.Once
}

// ffmpegArgs builds the ffmpeg command line for a device
func ffmpegArgs(cfg Config) []string {
	fps := fmt.Sprintf("%d", cfg.FPS)
	output := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"}

	switch {
	case strings.HasPrefix(cfg.Device, "rtsp://"):
		return append([]string{"-rtsp_transport", "tcp", "-i", cfg.Device, "-r", fps}, output...)
	case IsNetworkSource(cfg.Device):
		return append([]string{"-i", cfg.Device, "-r", fps}, output...)
	default:
		return append([]string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"-framerate", fps,
			"-i", cfg.Device,
		}, output...)
	}
}

// StartFFmpeg launches ffmpeg for cfg.Device and streams its frames
func StartFFmpeg(ctx context.Context, cfg Config, logger *logrus.Entry) (*FFmpegSource, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, cfg.FFmpegPath, ffmpegArgs(cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.WithField("ffmpeg", scanner.Text()).Trace("ffmpeg output")
		}
	}()

	return &FFmpegSource{
		StreamSource: NewStreamSource(stdout, nil, logger),
		cmd:          cmd,
		cancel:       cancel,
	}, nil
}

// Close stops the ffmpeg process and waits for it to exit
func (s *FFmpegSource) Close() error {
	s.once.Do(func() {
		s.StreamSource.Close()
		s.cancel()
		if err := s.cmd.Wait(); err != nil {
			s.logger.WithError(err).Debug("ffmpeg exited")
		}
	})
	return nil
}
