package classifier

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"stresscam/internal/emotion"
)

const defaultJPEGQuality = 90

// FaceResult is one face in the classifier service response
type FaceResult struct {
	Region          emotion.Region     `json:"region"`
	DominantEmotion string             `json:"dominant_emotion"`
	Emotion         map[string]float64 `json:"emotion"`
	Age             *float64           `json:"age,omitempty"`
}

// AnalyzeResponse is the classifier service response body
type AnalyzeResponse struct {
	Results         []FaceResult `json:"results"`
	InferenceTimeMs float32      `json:"inference_time_ms,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func (h HealthResponse) ok() bool {
	return (h.Status == "healthy" || h.Status == "ok") && h.ModelLoaded
}

// Detections converts the response into detections
func (r *AnalyzeResponse) Detections() []emotion.Detection {
	out := make([]emotion.Detection, 0, len(r.Results))
	for _, f := range r.Results {
		d := emotion.Detection{
			Region:   f.Region,
			Dominant: emotion.Label(f.DominantEmotion),
			Emotions: emotion.FromMap(f.Emotion),
			Age:      f.Age,
		}
		out = append(out, d.Normalize())
	}
	return out
}

// EncodeJPEG compresses an analysis frame for transport
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to encode")
	}
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
