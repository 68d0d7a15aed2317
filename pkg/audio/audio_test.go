package audio

import (
	"bytes"
	"testing"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Codec
		wantErr bool
	}{
		{in: "ULAW_8000_8", want: Codec{Encoding: EncULaw, SampleRate: 8000}},
		{in: "PCM_22050_16", want: Codec{Encoding: EncPCM16, SampleRate: 22050}},
		{in: "PCM_24000_16", want: Codec{Encoding: EncPCM16, SampleRate: 24000}},
		{in: "MP3_22050_128", want: Codec{Encoding: EncMP3, SampleRate: 22050}},
		{in: "pcm_24000_16", want: Codec{Encoding: EncPCM16, SampleRate: 24000}},
		{in: "PCM_22050_8", wantErr: true},
		{in: "OGG_48000", wantErr: true},
		{in: "PCM_x_16", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): want error, got %+v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q): want %+v, got %+v", tc.in, tc.want, got)
		}
	}
}

func TestCodecBytesPerSecond(t *testing.T) {
	t.Parallel()

	if got := ULaw8000.BytesPerSecond(); got != 8000 {
		t.Errorf("ULaw8000 bytes/s: want 8000, got %d", got)
	}
	if got := (Codec{Encoding: EncPCM16, SampleRate: 22050}).BytesPerSecond(); got != 44100 {
		t.Errorf("PCM22050 bytes/s: want 44100, got %d", got)
	}
	if got := (Codec{Encoding: EncMP3, SampleRate: 22050}).BytesPerSecond(); got != 0 {
		t.Errorf("MP3 bytes/s: want 0, got %d", got)
	}
}

func TestULawRoundTrip(t *testing.T) {
	t.Parallel()

	// Companding is lossy; round-tripping an already-companded byte is exact.
	for i := 0; i < 256; i++ {
		u := byte(i)
		got := EncodeULawSample(DecodeULawSample(u))
		// 0x7F and 0xFF both decode to zero; the encoder picks the positive form.
		if u == 0x7F {
			continue
		}
		if got != u {
			t.Errorf("round trip byte 0x%02X: got 0x%02X", u, got)
		}
	}
}

func TestULawSilenceIsZero(t *testing.T) {
	t.Parallel()

	if got := DecodeULawSample(ULawSilence); got != 0 {
		t.Errorf("decode 0xFF: want 0, got %d", got)
	}
	if got := EncodeULawSample(0); got != ULawSilence {
		t.Errorf("encode 0: want 0xFF, got 0x%02X", got)
	}
}

func TestDecodeEncodeULawStream(t *testing.T) {
	t.Parallel()

	ulaw := []byte{0xFF, 0x00, 0x80, 0x42}
	pcm := DecodeULaw(ulaw)
	if len(pcm) != 8 {
		t.Fatalf("decoded length: want 8, got %d", len(pcm))
	}
	back := EncodeULaw(pcm)
	if !bytes.Equal(back, ulaw) {
		t.Errorf("stream round trip: want %v, got %v", ulaw, back)
	}
}

func TestFadeInPCM(t *testing.T) {
	t.Parallel()

	codec := Codec{Encoding: EncPCM16, SampleRate: 8000}
	// 200 ms at 8 kHz 16-bit = 3200 bytes.
	f := NewFadeIn(codec, 200)

	loud := make([]byte, 3200)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0x00
		loud[i+1] = 0x40 // 16384
	}
	out := f.Apply(loud)

	first := int16(out[0]) | int16(out[1])<<8
	if first != 0 {
		t.Errorf("first faded sample: want 0, got %d", first)
	}
	mid := int16(out[1600]) | int16(out[1601])<<8
	if mid < 7000 || mid > 9500 {
		t.Errorf("midpoint sample outside half-gain band: got %d", mid)
	}

	// Past the ramp, samples pass through untouched.
	tail := []byte{0x00, 0x40}
	out = f.Apply(tail)
	if got := int16(out[0]) | int16(out[1])<<8; got != 16384 {
		t.Errorf("post-ramp sample: want 16384, got %d", got)
	}
}

func TestFadeInULawConvergesOnSilence(t *testing.T) {
	t.Parallel()

	f := NewFadeIn(ULaw8000, 200) // 1600-byte ramp

	chunk := make([]byte, 4)
	for i := range chunk {
		chunk[i] = EncodeULawSample(12000)
	}
	out := f.Apply(chunk)
	if out[0] != ULawSilence {
		t.Errorf("first faded byte: want 0xFF (silence), got 0x%02X", out[0])
	}
}

func TestFadeInZeroDurationPassesThrough(t *testing.T) {
	t.Parallel()

	f := NewFadeIn(ULaw8000, 0)
	in := []byte{0x11, 0x22, 0x33}
	out := f.Apply(in)
	if !bytes.Equal(out, []byte{0x11, 0x22, 0x33}) {
		t.Errorf("zero-duration fade mutated chunk: %v", out)
	}
}

func TestDecimate(t *testing.T) {
	t.Parallel()

	// Samples 0..5 as little-endian int16.
	pcm := []byte{0, 0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0}

	got := Decimate(pcm, 3)
	want := []byte{0, 0, 3, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("Decimate factor 3: want %v, got %v", want, got)
	}

	if got := Decimate(pcm, 1); !bytes.Equal(got, pcm) {
		t.Errorf("Decimate factor 1 must be identity")
	}
}

func TestDecimatorMatchesDecimateAcrossChunks(t *testing.T) {
	t.Parallel()

	// Samples 0..9 as little-endian int16, split awkwardly mid-sample.
	var pcm []byte
	for i := 0; i < 10; i++ {
		pcm = append(pcm, byte(i), 0)
	}
	want := Decimate(pcm, 3)

	d := NewDecimator(3)
	var got []byte
	for _, cut := range [][2]int{{0, 5}, {5, 6}, {6, 20}} {
		got = append(got, d.Process(pcm[cut[0]:cut[1]])...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("chunked decimation: want %v, got %v", want, got)
	}
}

func TestDecimatorPassThrough(t *testing.T) {
	t.Parallel()

	d := NewDecimator(1)
	in := []byte{1, 0, 2, 0}
	if got := d.Process(in); !bytes.Equal(got, in) {
		t.Errorf("factor 1 must be identity, got %v", got)
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	// One frame: L=100, R=300 → 200.
	in := []byte{100, 0, 44, 1}
	got := StereoToMono(in)
	if len(got) != 2 {
		t.Fatalf("mono length: want 2, got %d", len(got))
	}
	if s := int16(got[0]) | int16(got[1])<<8; s != 200 {
		t.Errorf("downmixed sample: want 200, got %d", s)
	}
}
