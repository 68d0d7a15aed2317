// Package audio provides the frame and codec types shared by every stage of
// the Voxbridge pipeline, plus the codec-bridging primitives the TTS client
// needs: µ-law transcoding, start-of-utterance fade-in, naive decimation, and
// a buffered streaming MP3 decoder.
//
// Frames are value-passed between components; no stage mutates a frame it did
// not allocate.
package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoding identifies the byte-level representation of an audio stream.
type Encoding int

const (
	// EncULaw is G.711 µ-law, 1 byte per sample. The telephony link codec.
	EncULaw Encoding = iota

	// EncPCM16 is 16-bit signed little-endian linear PCM, 2 bytes per sample.
	EncPCM16

	// EncMP3 is MPEG-1 Layer III compressed audio. Not byte-addressable;
	// duration accounting requires decoding.
	EncMP3
)

// String returns the lowercase name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncULaw:
		return "ulaw"
	case EncPCM16:
		return "pcm16"
	case EncMP3:
		return "mp3"
	}
	return "unknown"
}

// Codec pairs an encoding with a sample rate. Mono is assumed throughout;
// the telephony link and all three backends operate on single-channel audio.
type Codec struct {
	Encoding   Encoding
	SampleRate int
}

// ULaw8000 is the narrowband telephony codec: µ-law at 8 kHz.
var ULaw8000 = Codec{Encoding: EncULaw, SampleRate: 8000}

// String returns the codec as "encoding@rate", e.g. "ulaw@8000".
func (c Codec) String() string {
	return fmt.Sprintf("%s@%d", c.Encoding, c.SampleRate)
}

// BytesPerSecond returns the wire rate of the codec, or 0 for compressed
// encodings where the byte rate does not map to audio duration.
func (c Codec) BytesPerSecond() int {
	switch c.Encoding {
	case EncULaw:
		return c.SampleRate
	case EncPCM16:
		return c.SampleRate * 2
	}
	return 0
}

// ParseFormat parses a configuration format string such as "ULAW_8000_8",
// "PCM_22050_16", or "MP3_22050_128" into a Codec. The trailing field
// (bit depth or bitrate) is validated for PCM but otherwise ignored.
func ParseFormat(s string) (Codec, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(s)), "_")
	if len(parts) < 2 {
		return Codec{}, fmt.Errorf("audio: malformed format %q", s)
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil || rate <= 0 {
		return Codec{}, fmt.Errorf("audio: bad sample rate in format %q", s)
	}
	switch parts[0] {
	case "ULAW":
		return Codec{Encoding: EncULaw, SampleRate: rate}, nil
	case "PCM":
		if len(parts) > 2 && parts[2] != "16" {
			return Codec{}, fmt.Errorf("audio: only 16-bit PCM is supported, got %q", s)
		}
		return Codec{Encoding: EncPCM16, SampleRate: rate}, nil
	case "MP3":
		return Codec{Encoding: EncMP3, SampleRate: rate}, nil
	}
	return Codec{}, fmt.Errorf("audio: unknown encoding in format %q", s)
}

// Frame is a chunk of audio with its declared codec. Frames within one
// utterance are ordered; silence between utterances is the absence of frames,
// never zero-filled payloads.
type Frame struct {
	Data  []byte
	Codec Codec
}

// Duration returns the playback time of the frame in seconds, or 0 for
// compressed codecs.
func (f Frame) Duration() float64 {
	bps := f.Codec.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(len(f.Data)) / float64(bps)
}
