package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// minSnapshotInterval caps polling at 10 requests per second
const minSnapshotInterval = 100 * time.Millisecond

// SnapshotSource polls an HTTP endpoint that returns a single image per request
type SnapshotSource struct {
	url      string
	client   *http.Client
	interval time.Duration
	logger   *logrus.Entry
	last     time.Time
}

// NewSnapshotSource polls url at fps, bounded to minSnapshotInterval
func NewSnapshotSource(url string, fps int, logger *logrus.Entry) *SnapshotSource {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	interval := minSnapshotInterval
	if fps > 0 && time.Second/time.Duration(fps) > interval {
		interval = time.Second / time.Duration(fps)
	}
	return &SnapshotSource{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
		logger:   logger,
	}
}

// Next waits for the next poll slot and fetches one image. Failed fetches are
// logged and retried on the following slot.
func (s *SnapshotSource) Next(ctx context.Context) (image.Image, time.Time, error) {
	for {
		if wait := time.Until(s.last.Add(s.interval)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, time.Time{}, ctx.Err()
			case <-timer.C:
			}
		}
		s.last = time.Now()

		img, err := s.fetch(ctx)
		if err == nil {
			return img, s.last, nil
		}
		if ctx.Err() != nil {
			return nil, time.Time{}, ctx.Err()
		}
		s.logger.WithError(err).Warn("Error fetching snapshot")
	}
}

func (s *SnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return img, nil
}

// Close releases idle connections
func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
