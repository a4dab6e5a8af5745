// Package google provides a recognizer backed by Google Cloud Speech-to-Text
// streaming recognition.
package google

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"live-caption-service/internal/service/health"
	"live-caption-service/internal/service/recognizer"
)

// Config holds Google Speech-to-Text stream settings not covered by
// recognizer.Settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns sensible defaults for telephony audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// parseAudioEncoding converts string encoding to protobuf enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Stream is the bidirectional streaming call. speechpb.Speech_StreamingRecognizeClient
// satisfies it.
type Stream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Client opens streaming calls.
type Client interface {
	Open(ctx context.Context) (Stream, error)
	Close() error
}

type cloudClient struct {
	c *speech.Client
}

func (c cloudClient) Open(ctx context.Context) (Stream, error) {
	return c.c.StreamingRecognize(ctx)
}

func (c cloudClient) Close() error {
	return c.c.Close()
}

// Recognizer implements recognizer.Recognizer over Google streaming recognition.
//
// Google numbers nothing, so slots are assigned locally: results of one
// response occupy consecutive slots from base, and base moves past every
// final result.
type Recognizer struct {
	client Client
	cfg    Config

	mu       sync.Mutex
	sendMu   sync.Mutex
	settings recognizer.Settings
	listener recognizer.Listener
	stream   Stream
	cancel   context.CancelFunc
	running  bool
	started  time.Time
	base     int
	speaking bool
	done     chan struct{}
	now      func() time.Time
}

// New creates a recognizer on a Speech-to-Text client.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Recognizer, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cloudClient{c: c}, cfg), nil
}

// NewWithClient creates a recognizer on an existing client.
func NewWithClient(client Client, cfg Config) *Recognizer {
	settings := recognizer.DefaultSettings()
	settings.Language = cfg.LanguageCode
	settings.InterimResults = cfg.InterimResults
	return &Recognizer{
		client:   client,
		cfg:      cfg,
		settings: settings,
		now:      time.Now,
	}
}

// Listen registers the listener.
func (r *Recognizer) Listen(l recognizer.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

// Settings returns the applied settings.
func (r *Recognizer) Settings() recognizer.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Configure replaces the settings used by the next Start.
func (r *Recognizer) Configure(s recognizer.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
}

// Start opens a streaming call and sends the stream configuration.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return recognizer.ErrAlreadyStarted
	}
	settings := r.settings
	r.mu.Unlock()

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := r.client.Open(streamCtx)
	if err != nil {
		cancel()
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(r.cfg.AudioEncoding),
					SampleRateHertz: int32(r.cfg.SampleRateHz),
					LanguageCode:    settings.Language,
					MaxAlternatives: int32(settings.MaxAlternatives),
				},
				InterimResults:  settings.InterimResults,
				SingleUtterance: !settings.Continuous,
			},
		},
	})
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.stream = stream
	r.cancel = cancel
	r.running = true
	r.started = r.now()
	r.base = 0
	r.speaking = false
	r.done = done
	r.mu.Unlock()

	r.emit(recognizer.Event{Type: health.EventStart})
	r.emit(recognizer.Event{Type: health.EventAudioStart})

	go r.receive(streamCtx, stream, done)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (r *Recognizer) SendAudio(ctx context.Context, audio []byte) error {
	r.mu.Lock()
	stream := r.stream
	running := r.running
	r.mu.Unlock()

	if !running || stream == nil {
		return recognizer.ErrNotStarted
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream; Google flushes final results and ends it.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	stream := r.stream
	r.mu.Unlock()

	if stream == nil {
		return nil
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return stream.CloseSend()
}

// Abort cancels the stream, dropping pending results.
func (r *Recognizer) Abort() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until the current stream has ended.
func (r *Recognizer) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close releases the client.
func (r *Recognizer) Close() error {
	_ = r.Abort()
	return r.client.Close()
}

// receive maps responses to events until the stream ends.
// Should be called in a separate goroutine after Start().
func (r *Recognizer) receive(ctx context.Context, stream Stream, done chan struct{}) {
	defer close(done)
	defer r.end()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			st, _ := status.FromError(err)
			log.Warn().Err(err).Str("component", "google-recognizer").Msg("stream failed")
			r.emit(recognizer.Event{Type: health.EventError, ErrorCode: st.Code().String(), Message: st.Message()})
			return
		}

		for _, ev := range r.translate(resp) {
			r.emit(ev)
		}
	}
}

// translate maps one response to recognizer events.
func (r *Recognizer) translate(resp *speechpb.StreamingRecognizeResponse) []recognizer.Event {
	var out []recognizer.Event

	if e := resp.GetError(); e != nil {
		out = append(out, recognizer.Event{
			Type:      health.EventError,
			ErrorCode: codes.Code(e.GetCode()).String(),
			Message:   e.GetMessage(),
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(resp.GetResults()) > 0 {
		if !r.speaking {
			r.speaking = true
			out = append(out, recognizer.Event{Type: health.EventSpeechStart})
		}

		ev := recognizer.Event{
			Type:        health.EventResult,
			ResultIndex: r.base,
			Results:     make([]recognizer.Result, 0, len(resp.GetResults())),
		}
		lastFinal := -1
		for i, res := range resp.GetResults() {
			result := recognizer.Result{Final: res.GetIsFinal()}
			for _, alt := range res.GetAlternatives() {
				result.Alternatives = append(result.Alternatives, recognizer.Alternative{
					Transcript: alt.GetTranscript(),
					Confidence: float64(alt.GetConfidence()),
				})
			}
			if res.GetIsFinal() {
				lastFinal = i
			}
			if end := res.GetResultEndTime(); end != nil {
				ev.Timestamp = r.started.Add(end.AsDuration())
			}
			ev.Results = append(ev.Results, result)
		}
		out = append(out, ev)
		r.base += lastFinal + 1
	}

	if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE && r.speaking {
		r.speaking = false
		out = append(out, recognizer.Event{Type: health.EventSpeechEnd})
	}
	return out
}

func (r *Recognizer) end() {
	r.mu.Lock()
	speaking := r.speaking
	r.running = false
	r.stream = nil
	r.speaking = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	if speaking {
		r.emit(recognizer.Event{Type: health.EventSpeechEnd})
	}
	r.emit(recognizer.Event{Type: health.EventAudioEnd})
	r.emit(recognizer.Event{Type: health.EventEnd})
}

func (r *Recognizer) emit(ev recognizer.Event) {
	r.mu.Lock()
	l := r.listener
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	r.mu.Unlock()

	if l != nil {
		l.OnEvent(ev)
	}
}
