// Package tts drives streaming speech synthesis for one session: request-id
// scoped synthesis lifecycles, cancellation, and bridging from the backend's
// output codec to the telephony link (pass-through, raw PCM forwarding, or
// MP3 decode), with the start-of-utterance fade-in applied in all modes.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/voxbridge-ai/voxbridge/internal/observe"
	"github.com/voxbridge-ai/voxbridge/pkg/audio"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/tts"
)

const defaultFadeInMs = 200

// Config configures a synthesis client.
type Config struct {
	// Voice is the initial synthesis voice. Changeable via SetVoice.
	Voice tts.Voice

	// Output is the codec the backend delivers, parsed from the agent's
	// output-format string.
	Output audio.Codec

	// Target is the codec the telephony link consumes.
	Target audio.Codec

	// FadeInMs is the length of the start-of-utterance gain ramp. Defaults
	// to 200ms.
	FadeInMs int

	// DecimateEnabled turns on naive decimation when the (decoded) output
	// rate is an integer multiple of the target rate. Off by default; the
	// telephony edge usually resamples.
	DecimateEnabled bool

	// Metrics receives first-chunk latency recordings. Defaults to the
	// process-wide instruments.
	Metrics *observe.Metrics
}

// Client manages synthesis requests against one provider.
type Client struct {
	provider tts.Provider
	cfg      Config
	log      *slog.Logger

	events chan Event

	mu     sync.Mutex
	voice  tts.Voice
	active *request
	closed bool

	nextID atomic.Uint64
	chars  atomic.Int64

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// request is one in-flight synthesis with its per-request pipeline state.
type request struct {
	id        uint64
	start     time.Time
	cancel    context.CancelFunc
	cancelled atomic.Bool
	finished  chan struct{}

	fade     *audio.FadeIn
	dec      *audio.Decimator
	mp3      *audio.MP3Decoder
	bytesOut int
}

// NewClient creates a synthesis client. Call Initialize before the first
// request.
func NewClient(provider tts.Provider, cfg Config, log *slog.Logger) *Client {
	if cfg.FadeInMs <= 0 {
		cfg.FadeInMs = defaultFadeInMs
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		log:      log.With("component", "tts"),
		events:   make(chan Event, 256),
		voice:    cfg.Voice,
		done:     make(chan struct{}),
	}
}

// Initialize validates the configured codec bridge. It must be called before
// the first synthesis.
func (c *Client) Initialize() error {
	out, tgt := c.cfg.Output, c.cfg.Target
	if out.SampleRate <= 0 {
		return fmt.Errorf("tts: output codec missing sample rate")
	}
	if out.Encoding == audio.EncULaw && out != tgt {
		return fmt.Errorf("tts: µ-law output requires a matching target codec, got %s -> %s", out, tgt)
	}
	if c.cfg.DecimateEnabled {
		rate := out.SampleRate
		if tgt.SampleRate <= 0 || rate <= tgt.SampleRate || rate%tgt.SampleRate != 0 {
			return fmt.Errorf("tts: decimation needs an integer rate ratio, got %d -> %d", rate, tgt.SampleRate)
		}
	}
	return nil
}

// Events returns the event channel. It is closed by Close.
func (c *Client) Events() <-chan Event { return c.events }

// SetVoice changes the voice used by subsequent synthesis requests.
func (c *Client) SetVoice(v tts.Voice) {
	c.mu.Lock()
	c.voice = v
	c.mu.Unlock()
}

// Characters returns the total number of characters submitted for synthesis,
// the unit the backend bills in.
func (c *Client) Characters() int64 { return c.chars.Load() }

// SynthesizeStreaming starts one synthesis request and returns its request
// ID. Audio arrives as DeltaEvent values scoped to that ID, terminated by
// exactly one DoneEvent or CancelledEvent. Only one request may be in flight
// at a time; the caller cancels the previous one first.
func (c *Client) SynthesizeStreaming(ctx context.Context, text string) (uint64, error) {
	if text == "" {
		return 0, fmt.Errorf("tts: text must not be empty")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, fmt.Errorf("tts: client is closed")
	}
	prev := c.active
	voice := c.voice
	c.mu.Unlock()

	if prev != nil {
		// A cancelled request just needs to drain; anything else is a
		// caller sequencing bug.
		if !prev.cancelled.Load() {
			return 0, fmt.Errorf("tts: synthesis %d still in flight", prev.id)
		}
		select {
		case <-prev.finished:
		case <-time.After(time.Second):
			return 0, fmt.Errorf("tts: cancelled synthesis %d did not drain", prev.id)
		case <-c.done:
			return 0, fmt.Errorf("tts: client is closed")
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	synth, err := c.provider.Synthesize(reqCtx, text, voice)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("tts: synthesize: %w", err)
	}

	id := c.nextID.Add(1)
	c.chars.Add(int64(utf8.RuneCountInString(text)))

	req := &request{id: id, start: time.Now(), cancel: cancel, finished: make(chan struct{})}
	c.buildPipeline(req)

	c.mu.Lock()
	c.active = req
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(req, synth)
	return id, nil
}

// Cancel aborts the in-flight synthesis, if any. The request ends with a
// CancelledEvent; audio still in the pipe is discarded.
func (c *Client) Cancel() {
	c.mu.Lock()
	req := c.active
	c.mu.Unlock()
	if req == nil {
		return
	}
	req.cancelled.Store(true)
	req.cancel()
}

// Close cancels any active request, stops all workers, and closes the event
// channel. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		req := c.active
		c.mu.Unlock()
		if req != nil {
			req.cancelled.Store(true)
			req.cancel()
		}
		close(c.done)
		c.wg.Wait()
		close(c.events)
	})
}

// buildPipeline wires the per-request bridge: optional MP3 decode, optional
// decimation, fade-in. The fade operates on the codec that actually reaches
// the telephony side.
func (c *Client) buildPipeline(req *request) {
	out := c.cfg.Output
	isMP3 := out.Encoding == audio.EncMP3
	if isMP3 {
		out = audio.Codec{Encoding: audio.EncPCM16, SampleRate: out.SampleRate}
	}

	factor := 1
	if c.cfg.DecimateEnabled && out.Encoding == audio.EncPCM16 &&
		c.cfg.Target.SampleRate > 0 && out.SampleRate > c.cfg.Target.SampleRate &&
		out.SampleRate%c.cfg.Target.SampleRate == 0 {
		factor = out.SampleRate / c.cfg.Target.SampleRate
		out.SampleRate = c.cfg.Target.SampleRate
	}

	req.fade = audio.NewFadeIn(out, c.cfg.FadeInMs)
	req.dec = audio.NewDecimator(factor)
	if isMP3 {
		req.mp3 = audio.NewMP3Decoder(func(pcm []byte) {
			c.deliver(req, pcm)
		})
	}
}

// run consumes the provider's audio stream through the request pipeline and
// emits the single terminal event.
func (c *Client) run(req *request, synth *tts.Synthesis) {
	defer c.wg.Done()
	c.emit(StartedEvent{ID: req.id})

	for chunk := range synth.Audio {
		if req.cancelled.Load() {
			continue // drain and discard
		}
		if req.mp3 != nil {
			if err := req.mp3.Write(chunk); err != nil {
				synth.SetStreamErr(fmt.Errorf("tts: decode: %w", err))
				req.cancel()
			}
			continue
		}
		c.deliver(req, chunk)
	}

	var err error
	if req.mp3 != nil {
		if req.cancelled.Load() {
			req.mp3.Close()
		} else if ferr := req.mp3.Flush(); ferr != nil {
			err = fmt.Errorf("tts: decode: %w", ferr)
		}
	}
	if err == nil {
		err = synth.Err()
	}

	c.mu.Lock()
	if c.active == req {
		c.active = nil
	}
	c.mu.Unlock()
	req.cancel()
	close(req.finished)

	if req.cancelled.Load() {
		c.emit(CancelledEvent{ID: req.id})
		return
	}
	c.emit(DoneEvent{ID: req.id, Bytes: req.bytesOut, Err: err})
}

// deliver pushes one bridged chunk through decimation and fade-in, then
// emits it.
func (c *Client) deliver(req *request, data []byte) {
	if req.cancelled.Load() {
		return
	}
	data = req.dec.Process(data)
	if len(data) == 0 {
		return
	}
	data = req.fade.Apply(data)
	if req.bytesOut == 0 {
		c.cfg.Metrics.TTSFirstChunkDuration.Record(context.Background(), time.Since(req.start).Seconds())
	}
	req.bytesOut += len(data)
	c.emit(DeltaEvent{ID: req.id, Data: data})
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
