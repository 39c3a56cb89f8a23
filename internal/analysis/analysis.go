// Package analysis implements the single-shot emotion analysis contract:
// one base64 image in, one affect assessment out.
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stresscam/internal/affect"
	"stresscam/internal/emotion"
	"stresscam/internal/pipeline"
)

var (
	// ErrInvalidImage is returned for missing, oversized or undecodable input
	ErrInvalidImage = errors.New("invalid image")
	// ErrClassification is returned when the classifier call fails
	ErrClassification = errors.New("classification failed")
)

// MaxImageBytes bounds the encoded request payload
const MaxImageBytes = 2 << 20

// Request is the single-shot input
type Request struct {
	ImageBase64 string `json:"imageBase64"`
}

// Response is the single-shot assessment
type Response struct {
	Valence         float64              `json:"valence"`
	Arousal         float64              `json:"arousal"`
	Confidence      float64              `json:"confidence"`
	Reasoning       string               `json:"reasoning"`
	StressLevel     float64              `json:"stress_level"`
	DominantEmotion emotion.Label        `json:"dominant_emotion"`
	Emotions        emotion.Distribution `json:"emotions"`
	FaceDetected    bool                 `json:"face_detected"`
	Timestamp       int64                `json:"timestamp"`
}

// Analyzer runs single-shot requests against a classifier
type Analyzer struct {
	classifier pipeline.Classifier
	timeout    time.Duration
	logger     *logrus.Entry
}

// NewAnalyzer creates an analyzer. A zero timeout leaves the caller's
// deadline in charge.
func NewAnalyzer(classifier pipeline.Classifier, timeout time.Duration, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Analyzer{
		classifier: classifier,
		timeout:    timeout,
		logger:     logger.WithField("component", "analysis"),
	}
}

// Analyze decodes the image, classifies it and derives the assessment
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Response, error) {
	img, err := DecodeBase64Image(req.ImageBase64)
	if err != nil {
		return nil, err
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	bounds := img.Bounds()
	frame := &pipeline.FrameData{
		Timestamp: time.Now(),
		Image:     img,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}

	start := time.Now()
	detections, err := a.classifier.Classify(ctx, frame)
	if err != nil {
		a.logger.WithError(err).Warn("Single-shot classification failed")
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	resp := Assess(detections)
	resp.Timestamp = time.Now().UnixMilli()
	a.logger.WithFields(logrus.Fields{
		"dominant":    resp.DominantEmotion,
		"stress":      resp.StressLevel,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Single-shot analysis complete")
	return resp, nil
}

// Assess builds a response from the primary detection. No usable detection
// yields the neutral assessment of a zero distribution.
func Assess(detections []emotion.Detection) *Response {
	var d emotion.Distribution
	dominant := emotion.Neutral
	face := false

	if len(detections) > 0 {
		primary := detections[0].Normalize()
		if !primary.Region.Empty() && !primary.Emotions.IsZero() {
			d = primary.Emotions
			dominant = primary.Dominant
			face = true
		}
	}

	point := affect.Map(d)
	score := d.Get(dominant)
	level := affect.SnapshotStress(d)

	return &Response{
		Valence:         point.Valence,
		Arousal:         point.Arousal,
		Confidence:      math.Min(1, score/100),
		Reasoning:       Reasoning(dominant, score, point, level),
		StressLevel:     level,
		DominantEmotion: dominant,
		Emotions:        d,
		FaceDetected:    face,
	}
}

// Reasoning renders the human-readable explanation of an assessment
func Reasoning(dominant emotion.Label, score float64, point affect.Point, level float64) string {
	valence := "negative"
	if point.Valence > 0 {
		valence = "positive"
	}

	arousal := "low"
	switch {
	case point.Arousal > 0.6:
		arousal = "high"
	case point.Arousal > 0.3:
		arousal = "moderate"
	}

	return fmt.Sprintf("Dominant emotion: %s (%.1f%%). Valence: %s, Arousal: %s. Stress level: %.1f%%.",
		dominant, score, valence, arousal, level)
}

// DecodeBase64Image accepts raw base64 or a data URI and decodes a JPEG or PNG
func DecodeBase64Image(encoded string) (image.Image, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: missing imageBase64", ErrInvalidImage)
	}
	// data:image/jpeg;base64,<payload>
	if idx := strings.IndexByte(encoded, ','); idx >= 0 {
		encoded = encoded[idx+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, MaxImageBytes)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}
