package audio

import (
	"io"
	"sync"
	"testing"
)

// fakeSource stands in for the MP3 decoder: it passes compressed bytes
// through as "decoded" stereo PCM so tests can observe buffering and flush
// behaviour without real MPEG data.
type fakeSource struct{ r io.Reader }

func (f *fakeSource) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fakeSource) SampleRate() int            { return 22050 }

// newTestDecoder returns a decoder wired to the fake source and a thread-safe
// accumulator for delivered PCM.
func newTestDecoder() (*MP3Decoder, func() []byte) {
	var mu sync.Mutex
	var got []byte
	d := NewMP3Decoder(func(pcm []byte) {
		mu.Lock()
		got = append(got, pcm...)
		mu.Unlock()
	})
	d.newSource = func(r io.Reader) (pcmSource, error) {
		return &fakeSource{r: r}, nil
	}
	return d, func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return append([]byte(nil), got...)
	}
}

func TestMP3DecoderBuffersBelowFloor(t *testing.T) {
	t.Parallel()

	d, got := newTestDecoder()
	if err := d.Write(make([]byte, minDecodeBuffer-1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(got()) != 0 {
		t.Errorf("PCM delivered before buffering floor: %d bytes", len(got()))
	}
	d.Close()
}

func TestMP3DecoderDecodesPastFloor(t *testing.T) {
	t.Parallel()

	d, got := newTestDecoder()
	if err := d.Write(make([]byte, 3000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Write(make([]byte, 2000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// 5000 stereo bytes → 1250 frames → 2500 mono bytes.
	if n := len(got()); n != 2500 {
		t.Errorf("mono PCM bytes: want 2500, got %d", n)
	}
}

func TestMP3DecoderFlushStartsShortStream(t *testing.T) {
	t.Parallel()

	d, got := newTestDecoder()
	if err := d.Write(make([]byte, 100)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := len(got()); n != 50 {
		t.Errorf("mono PCM bytes from short stream: want 50, got %d", n)
	}
}

func TestMP3DecoderCloseDiscards(t *testing.T) {
	t.Parallel()

	d, _ := newTestDecoder()
	if err := d.Write(make([]byte, minDecodeBuffer)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	d.Close()
	d.Close() // idempotent

	if err := d.Write([]byte{1, 2, 3}); err == nil {
		t.Error("Write after Close: want error, got nil")
	}
}
