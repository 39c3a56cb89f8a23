package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// frameBufferSize bounds how many undecoded frames wait for Next; older frames
// are dropped so a slow consumer always sees recent video
const frameBufferSize = 2

type rawFrame struct {
	data []byte
	ts   time.Time
}

// StreamSource splits a concatenated JPEG stream (ffmpeg image2pipe, MJPEG)
// into frames. Reading happens on a background goroutine so the producer is
// never blocked by the consumer.
type StreamSource struct {
	frames  chan rawFrame
	done    chan struct{}
	logger  *logrus.Entry
	closer  io.Closer
	once    sync.Once
	err     atomic.Value
	read    atomic.Uint64
	dropped atomic.Uint64
}

// NewStreamSource starts reading r. closer, when set, is closed by Close.
func NewStreamSource(r io.Reader, closer io.Closer, logger *logrus.Entry) *StreamSource {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &StreamSource{
		frames: make(chan rawFrame, frameBufferSize),
		done:   make(chan struct{}),
		logger: logger,
		closer: closer,
	}
	go s.readLoop(r)
	return s
}

func (s *StreamSource) readLoop(r io.Reader) {
	defer close(s.frames)

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 32*1024)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&buffer)
				if frame == nil {
					break
				}
				if !s.push(rawFrame{data: frame, ts: time.Now()}) {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				s.err.Store(err)
				s.logger.WithError(err).Warn("Frame stream read failed")
			}
			return
		}
	}
}

// push delivers a frame, evicting the oldest queued frame when full
func (s *StreamSource) push(f rawFrame) bool {
	s.read.Add(1)
	for {
		select {
		case <-s.done:
			return false
		case s.frames <- f:
			return true
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

// Next returns the oldest buffered frame
func (s *StreamSource) Next(ctx context.Context) (image.Image, time.Time, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, time.Time{}, ctx.Err()
		case f, ok := <-s.frames:
			if !ok {
				if err, _ := s.err.Load().(error); err != nil {
					return nil, time.Time{}, fmt.Errorf("frame stream failed: %w", err)
				}
				return nil, time.Time{}, io.EOF
			}
			img, err := jpeg.Decode(bytes.NewReader(f.data))
			if err != nil {
				s.logger.WithError(err).Debug("Skipping undecodable frame")
				continue
			}
			return img, f.ts, nil
		}
	}
}

// Stats returns frames split from the stream and frames dropped before Next
func (s *StreamSource) Stats() (read, dropped uint64) {
	return s.read.Load(), s.dropped.Load()
}

// Close stops delivery and closes the underlying stream
func (s *StreamSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// extractJPEGFrame removes and returns the first complete JPEG frame in buffer.
// Bytes before the start marker are discarded.
func extractJPEGFrame(buffer *[]byte) []byte {
	start := bytes.Index(*buffer, jpegStart)
	if start == -1 {
		// keep a trailing 0xFF that may begin the next marker
		if n := len(*buffer); n > 0 && (*buffer)[n-1] == 0xFF {
			*buffer = (*buffer)[n-1:]
		} else {
			*buffer = (*buffer)[:0]
		}
		return nil
	}

	end := bytes.Index((*buffer)[start+2:], jpegEnd)
	if end == -1 {
		*buffer = (*buffer)[start:]
		return nil
	}
	end += start + 2 + len(jpegEnd)

	frame := make([]byte, end-start)
	copy(frame, (*buffer)[start:end])
	*buffer = append((*buffer)[:0], (*buffer)[end:]...)
	return frame
}
