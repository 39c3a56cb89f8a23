package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stresscam/internal/metrics"
	"stresscam/internal/monitor"
)

// Sender delivers a formatted alert
type Sender interface {
	IsEnabled() bool
	SendMessage(ctx context.Context, message string) error
}

// StressNotifier alerts once each time the high-stress flag rises
type StressNotifier struct {
	sender  Sender
	timeout time.Duration
	logger  *logrus.Entry

	mu   sync.Mutex
	high bool
}

// NewStressNotifier creates a notifier. It implements monitor.UpdateHandler and
// is meant to be fed through EventBus.SubscribeAsync, since sends block on the
// network.
func NewStressNotifier(sender Sender, logger *logrus.Logger) *StressNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StressNotifier{
		sender:  sender,
		timeout: 15 * time.Second,
		logger:  logger.WithField("component", "notify"),
	}
}

// OnUpdate tracks the high-stress flag and sends on a rising edge. Updates
// without a face keep the previous flag.
func (n *StressNotifier) OnUpdate(update *monitor.Update) {
	if update == nil || !update.FaceDetected {
		return
	}

	n.mu.Lock()
	rising := update.HighStress && !n.high
	n.high = update.HighStress
	n.mu.Unlock()

	if !rising || n.sender == nil || !n.sender.IsEnabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	err := n.sender.SendMessage(ctx, FormatAlert(update))
	switch {
	case err == nil:
		metrics.RecordAlert("sent")
		n.logger.WithField("stress_level", update.StressLevel).Info("High-stress alert sent")
	case errors.Is(err, ErrCooldown):
		metrics.RecordAlert("cooldown")
		n.logger.Debug("High-stress alert suppressed by cooldown")
	default:
		metrics.RecordAlert("error")
		n.logger.WithError(err).Warn("Failed to send high-stress alert")
	}
}

// FormatAlert renders the Telegram message for a high-stress update
func FormatAlert(update *monitor.Update) string {
	return fmt.Sprintf(
		"🚨 <b>High stress detected</b>\n\n"+
			"📈 Stress level: %.1f (%s)\n"+
			"🙂 Dominant emotion: %s (%.0f%%)\n"+
			"🧭 Valence %.2f, arousal %.2f\n"+
			"🕐 Time: %s",
		update.StressLevel, update.StressStatus,
		update.Dominant, update.Confidence,
		update.Valence, update.Arousal,
		formatTime(update.Timestamp),
	)
}
