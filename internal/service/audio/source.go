// Package audio feeds recorded PCM audio to a streaming recognizer at
// real-time pace.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"live-caption-service/internal/observability/logging"
	"live-caption-service/internal/observability/metrics"
	"live-caption-service/internal/service/recognizer"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// At 8kHz 16-bit mono = 16000 bytes/second, 100ms chunks = 1600 bytes
const (
	DefaultChunkSize     = 1600
	DefaultChunkInterval = 100 * time.Millisecond
)

var (
	ErrNotWAV         = errors.New("not a valid WAV file")
	ErrUnsupportedWAV = errors.New("only PCM WAV supported")
)

// Sink receives audio chunks. The google recognizer satisfies it.
type Sink interface {
	SendAudio(ctx context.Context, audio []byte) error
}

// Format describes a PCM WAV stream.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRateHz  uint32
	BitsPerSample uint16
}

// ReadHeader reads and validates a 44-byte PCM WAV header.
func ReadHeader(r io.Reader) (Format, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Format{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, ErrNotWAV
	}

	f := Format{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRateHz:  binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.AudioFormat != 1 {
		return f, ErrUnsupportedWAV
	}
	return f, nil
}

// Source streams a WAV file into a sink, looping at end of file so the
// recognizer always has audio. Chunks sent while the recognizer is down are
// dropped; the health lifecycle restarts it.
type Source struct {
	path         string
	sink         Sink
	chunkSize    int
	interval     time.Duration
	sampleRateHz uint32
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithChunk sets the chunk size and the pause between chunks.
func WithChunk(size int, interval time.Duration) Option {
	return func(s *Source) {
		s.chunkSize = size
		s.interval = interval
	}
}

// WithSampleRate sets the expected sample rate; a mismatch is logged.
func WithSampleRate(hz int) Option {
	return func(s *Source) { s.sampleRateHz = uint32(hz) }
}

// NewSource creates a source for the WAV file at path.
func NewSource(path string, sink Sink, opts ...Option) *Source {
	s := &Source{
		path:         path,
		sink:         sink,
		chunkSize:    DefaultChunkSize,
		interval:     DefaultChunkInterval,
		sampleRateHz: 8000,
		metrics:      metrics.DefaultMetrics,
		log:          logging.WithComponent("audio-source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run streams the file until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	for {
		if err := s.playFile(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.log.Debug().Str("path", s.path).Msg("Reached end of audio, looping")
	}
}

func (s *Source) playFile(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	format, err := ReadHeader(f)
	if err != nil {
		return err
	}
	if format.SampleRateHz != s.sampleRateHz {
		s.log.Warn().
			Uint32("sampleRate", format.SampleRateHz).
			Uint32("expected", s.sampleRateHz).
			Msg("WAV sample rate mismatch")
	}

	_, err = s.Pump(ctx, f)
	return err
}

// Pump sends r to the sink in paced chunks until EOF and returns the number
// of bytes delivered.
func (s *Source) Pump(ctx context.Context, r io.Reader) (int64, error) {
	chunk := make([]byte, s.chunkSize)
	var sent int64
	var dropped int

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			switch serr := s.sink.SendAudio(ctx, chunk[:n]); {
			case serr == nil:
				sent += int64(n)
				s.metrics.RecordAudioSent(n)
			case errors.Is(serr, recognizer.ErrNotStarted):
				dropped++
				if dropped == 1 || dropped%50 == 0 {
					s.log.Debug().Int("dropped", dropped).Msg("Recognizer not running, dropping audio")
				}
			default:
				s.log.Warn().Err(serr).Msg("Failed to send audio chunk")
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("read audio: %w", err)
		}

		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-ticker.C:
		}
	}
}
