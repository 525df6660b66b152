// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram streaming WebSocket API. It implements the stt.Provider interface
// in multichannel mode: each channel of the multiplexed input is transcribed
// independently and results carry the originating channel index.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// defaultUtteranceEndMs is the silence gap after which Deepgram emits
	// an UtteranceEnd message for the stream.
	defaultUtteranceEndMs = 1000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithUtteranceEnd sets the silence gap after which Deepgram reports the end
// of an utterance.
func WithUtteranceEnd(d time.Duration) Option {
	return func(p *Provider) {
		p.utteranceEndMs = int(d / time.Millisecond)
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey         string
	model          string
	language       string
	utteranceEndMs int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		model:          defaultModel,
		language:       defaultLanguage,
		utteranceEndMs: defaultUtteranceEndMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &stream{
		conn:    conn,
		results: make(chan stt.Result, 64),
		vad:     make(chan stt.VADEvent, 16),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)

	return s, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}
	channels := cfg.Channels
	if channels == 0 {
		channels = 2
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(channels))
	q.Set("multichannel", "true")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	q.Set("utterance_end_ms", strconv.Itoa(p.utteranceEndMs))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- stream ----

// deepgramResponse is the JSON structure of a Deepgram WebSocket message.
// Results, UtteranceEnd, and SpeechStarted events share this envelope.
type deepgramResponse struct {
	Type         string  `json:"type"`
	IsFinal      bool    `json:"is_final"`
	SpeechFinal  bool    `json:"speech_final"`
	ChannelIndex []int   `json:"channel_index"`
	Start        float64 `json:"start"`
	Duration     float64 `json:"duration"`
	Timestamp    float64 `json:"timestamp"`
	LastWordEnd  float64 `json:"last_word_end"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// stream is a live Deepgram streaming session. It implements stt.Stream.
type stream struct {
	conn    *websocket.Conn
	results chan stt.Result
	vad     chan stt.VADEvent
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a multiplexed PCM frame for delivery to Deepgram.
func (s *stream) SendAudio(frame []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: stream is closed")
	default:
	}
	select {
	case s.audio <- frame:
		return nil
	case <-s.done:
		return errors.New("deepgram: stream is closed")
	}
}

// Results returns the channel of recognition results.
func (s *stream) Results() <-chan stt.Result { return s.results }

// VAD returns the channel of connection-wide voice activity events.
func (s *stream) VAD() <-chan stt.VADEvent { return s.vad }

// Close terminates the stream cleanly.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask Deepgram to flush pending audio before the socket drops.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *stream) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case frame, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				return
			}
		case <-s.done:
			// Drain queued audio before exiting.
			for {
				select {
				case frame, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, frame)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// results and VAD channels.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)
	defer close(s.vad)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation — exit gracefully.
			return
		}

		result, vadEvent, ok := parseResponse(msg)
		if !ok {
			continue
		}

		if vadEvent != nil {
			select {
			case s.vad <- *vadEvent:
			case <-s.done:
			}
			continue
		}

		select {
		case s.results <- *result:
		case <-s.done:
		}
	}
}

// parseResponse parses a raw Deepgram WebSocket message. Exactly one of the
// returned pointers is non-nil when ok is true.
func parseResponse(data []byte) (*stt.Result, *stt.VADEvent, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, false
	}

	switch resp.Type {
	case "SpeechStarted":
		return nil, &stt.VADEvent{
			Type:      stt.SpeechStarted,
			Timestamp: secondsToDuration(resp.Timestamp),
		}, true

	case "UtteranceEnd":
		return nil, &stt.VADEvent{
			Type:      stt.SpeechEnded,
			Timestamp: secondsToDuration(resp.LastWordEnd),
		}, true

	case "Results":
		if len(resp.Channel.Alternatives) == 0 {
			return nil, nil, false
		}
		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return nil, nil, false
		}

		source := audio.SourceLocal
		if len(resp.ChannelIndex) > 0 && resp.ChannelIndex[0] == 1 {
			source = audio.SourceRemote
		}

		return &stt.Result{
			Text:       alt.Transcript,
			Source:     source,
			Start:      secondsToDuration(resp.Start),
			End:        secondsToDuration(resp.Start + resp.Duration),
			Confidence: alt.Confidence,
			IsFinal:    resp.IsFinal,
			IsBoundary: resp.IsFinal && resp.SpeechFinal,
		}, nil, true

	default:
		return nil, nil, false
	}
}

// secondsToDuration converts Deepgram's fractional-second timestamps,
// rounding to whole milliseconds to avoid float truncation artifacts.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s*1000)) * time.Millisecond
}
