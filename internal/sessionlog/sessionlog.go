package sessionlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"stresscam/internal/emotion"
)

// ErrNoData is returned when exporting a session with no records
var ErrNoData = errors.New("no session data to export")

const (
	TimestampLayout = "2006-01-02 15:04:05"
	fileLayout      = "20060102_150405"
	missingAge      = "N/A"
)

// Header is the export column order
var Header = []string{
	"timestamp", "emotion", "confidence", "age", "stress_level", "stress_status",
	"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral",
}

// Record is one classified frame in the session log
type Record struct {
	Timestamp    time.Time            `json:"timestamp"`
	Emotion      emotion.Label        `json:"emotion"`
	Confidence   float64              `json:"confidence"`
	Age          *float64             `json:"age,omitempty"`
	StressLevel  float64              `json:"stress_level"`
	StressStatus string               `json:"stress_status"`
	Emotions     emotion.Distribution `json:"emotions"`
	Valence      float64              `json:"valence"`
	Arousal      float64              `json:"arousal"`
}

// Row renders the record as export fields
func (r Record) Row() []string {
	age := missingAge
	if r.Age != nil {
		age = strconv.Itoa(int(math.Round(*r.Age)))
	}

	row := []string{
		r.Timestamp.Format(TimestampLayout),
		string(r.Emotion),
		formatFloat(r.Confidence),
		age,
		formatFloat(r.StressLevel),
		r.StressStatus,
	}
	for _, v := range r.Emotions.Values() {
		row = append(row, formatFloat(v))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Logger is the append-only session log. Record is called by the consumer
// loop; Export and Records may run concurrently from other goroutines.
type Logger struct {
	startedAt time.Time
	dir       string
	records   []Record
	mu        sync.RWMutex
}

// New creates an empty log whose default export lands in dir
func New(dir string, startedAt time.Time) *Logger {
	if dir == "" {
		dir = "."
	}
	return &Logger{startedAt: startedAt, dir: dir}
}

// Record appends one entry. It never fails.
func (l *Logger) Record(r Record) {
	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()
}

// Len returns the number of records
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns a copy of all records in insertion order
func (l *Logger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// StartedAt returns the session start time
func (l *Logger) StartedAt() time.Time {
	return l.startedAt
}

// DefaultPath is the export file for this session
func (l *Logger) DefaultPath() string {
	return filepath.Join(l.dir, FileName(l.startedAt))
}

// FileName returns the export file name for a session started at t
func FileName(t time.Time) string {
	return "emotion_data_" + t.Format(fileLayout) + ".csv"
}

// Export writes every record to path, replacing any existing file.
// An empty log returns ErrNoData and touches nothing.
func (l *Logger) Export(path string) error {
	records := l.Records()
	if len(records) == 0 {
		return ErrNoData
	}
	if path == "" {
		path = l.DefaultPath()
	}
	return ExportFile(path, records)
}

// ExportFile writes records to path under an advisory lock, via a temp
// file renamed into place so readers never see a partial export
func ExportFile(path string, records []Record) error {
	if len(records) == 0 {
		return ErrNoData
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock export file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, ".export-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set export permissions: %w", err)
	}
	if err := WriteCSV(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// WriteCSV writes the header and one row per record
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}
