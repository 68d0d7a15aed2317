package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// minDecodeBuffer is the number of compressed bytes accumulated before the
// decoder is created. Starting the decoder on a partial first frame makes the
// header sync fail, so the opening chunks are held back until this floor is
// reached (or the stream is flushed).
const minDecodeBuffer = 4096

// errDecoderAborted signals a cancelled synthesis to the decode goroutine.
var errDecoderAborted = errors.New("audio: mp3 decoder aborted")

// pcmSource is the decoded-PCM read side of a compressed stream.
type pcmSource interface {
	io.Reader
	SampleRate() int
}

// newMP3Source adapts hajimehoshi/go-mp3 to pcmSource. The decoder blocks
// inside the constructor until it has read the stream header.
func newMP3Source(r io.Reader) (pcmSource, error) {
	return mp3.NewDecoder(r)
}

// MP3Decoder incrementally decodes a streamed MP3 synthesis response into
// 16-bit mono little-endian PCM. The underlying decoder is created lazily on
// the first write that crosses [minDecodeBuffer] and is torn down on Flush or
// Close, whichever comes first.
//
// Decoded PCM is delivered through the onPCM callback on an internal
// goroutine. Not safe for concurrent use; one decoder per synthesis request.
type MP3Decoder struct {
	onPCM     func(pcm []byte)
	newSource func(io.Reader) (pcmSource, error)

	mu      sync.Mutex
	pending []byte
	pw      *io.PipeWriter
	started bool
	closed  bool
	wg      sync.WaitGroup
	decErr  error
}

// NewMP3Decoder returns a decoder that delivers mono PCM chunks to onPCM.
func NewMP3Decoder(onPCM func(pcm []byte)) *MP3Decoder {
	return &MP3Decoder{onPCM: onPCM, newSource: newMP3Source}
}

// Write buffers a compressed chunk and, once enough data has accumulated,
// feeds it to the decoder. Write may block while the decode goroutine drains
// previously written data.
func (d *MP3Decoder) Write(chunk []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errDecoderAborted
	}
	if !d.started {
		d.pending = append(d.pending, chunk...)
		if len(d.pending) < minDecodeBuffer {
			d.mu.Unlock()
			return nil
		}
		d.start()
		buf := d.pending
		d.pending = nil
		pw := d.pw
		d.mu.Unlock()
		_, err := pw.Write(buf)
		return err
	}
	pw := d.pw
	d.mu.Unlock()
	_, err := pw.Write(chunk)
	return err
}

// Flush closes the compressed stream and waits for the remaining PCM to be
// delivered. If the stream never reached the buffering floor, the decoder is
// started on whatever was received. Returns the first decode error, if any.
func (d *MP3Decoder) Flush() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if !d.started && len(d.pending) > 0 {
		d.start()
		buf := d.pending
		d.pending = nil
		pw := d.pw
		d.mu.Unlock()
		_, _ = pw.Write(buf)
		d.mu.Lock()
	}
	d.closed = true
	pw := d.pw
	d.mu.Unlock()

	if pw != nil {
		_ = pw.Close()
		d.wg.Wait()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decErr
}

// Close aborts decoding immediately, discarding buffered compressed data and
// any PCM not yet delivered. Safe to call after Flush; subsequent calls are
// no-ops.
func (d *MP3Decoder) Close() {
	d.mu.Lock()
	if d.closed && d.pw == nil {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pw := d.pw
	d.pw = nil
	d.pending = nil
	d.mu.Unlock()

	if pw != nil {
		_ = pw.CloseWithError(errDecoderAborted)
		d.wg.Wait()
	}
}

// start spins up the pipe and decode goroutine. Caller must hold d.mu.
func (d *MP3Decoder) start() {
	pr, pw := io.Pipe()
	d.pw = pw
	d.started = true
	d.wg.Add(1)
	go d.decodeLoop(pr)
}

// decodeLoop reads compressed bytes from pr, decodes, downmixes to mono, and
// delivers PCM via the callback until the stream ends or is aborted.
func (d *MP3Decoder) decodeLoop(pr *io.PipeReader) {
	defer d.wg.Done()
	defer pr.Close()

	src, err := d.newSource(pr)
	if err != nil {
		d.setErr(fmt.Errorf("audio: mp3 header decode: %w", err))
		return
	}

	buf := make([]byte, 8192)
	var rem []byte // carry for stereo-frame alignment across reads
	for {
		n, err := src.Read(buf)
		if n > 0 {
			pcm := append(rem, buf[:n]...)
			aligned := len(pcm) &^ 3
			rem = append([]byte(nil), pcm[aligned:]...)
			if aligned > 0 {
				d.onPCM(StereoToMono(pcm[:aligned]))
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, errDecoderAborted) {
				d.setErr(fmt.Errorf("audio: mp3 decode: %w", err))
			}
			return
		}
	}
}

func (d *MP3Decoder) setErr(err error) {
	d.mu.Lock()
	if d.decErr == nil {
		d.decErr = err
	}
	d.mu.Unlock()
}
