package audio

// FadeIn applies a linear gain ramp to the opening bytes of a synthesis
// stream to suppress codec-startup noise. The ramp runs from 0.0 to 1.0 over
// a fixed byte budget; once the budget is spent every subsequent chunk passes
// through untouched.
//
// For µ-law streams the ramp converges on [ULawSilence]; for linear PCM it
// converges on signed zero. Create one FadeIn per synthesis request; it is
// not safe for concurrent use.
type FadeIn struct {
	codec Codec
	total int
	done  int
}

// NewFadeIn returns a ramp covering durationMs of audio in the given codec.
// A non-positive duration (or a compressed codec) yields a pass-through ramp.
func NewFadeIn(codec Codec, durationMs int) *FadeIn {
	total := 0
	if durationMs > 0 {
		total = codec.BytesPerSecond() * durationMs / 1000
	}
	if codec.Encoding == EncPCM16 {
		// Keep sample alignment so the ramp never splits an int16.
		total &^= 1
	}
	return &FadeIn{codec: codec, total: total}
}

// Apply scales chunk in place according to the remaining ramp and returns it.
// Chunks arriving after the ramp is exhausted are returned unchanged.
func (f *FadeIn) Apply(chunk []byte) []byte {
	if f.done >= f.total || len(chunk) == 0 {
		return chunk
	}
	switch f.codec.Encoding {
	case EncULaw:
		for i := range chunk {
			if f.done >= f.total {
				break
			}
			gain := float64(f.done) / float64(f.total)
			scaled := int16(float64(DecodeULawSample(chunk[i])) * gain)
			chunk[i] = EncodeULawSample(scaled)
			f.done++
		}
	case EncPCM16:
		for i := 0; i+1 < len(chunk); i += 2 {
			if f.done >= f.total {
				break
			}
			gain := float64(f.done) / float64(f.total)
			s := int16(chunk[i]) | int16(chunk[i+1])<<8
			s = int16(float64(s) * gain)
			chunk[i] = byte(s)
			chunk[i+1] = byte(uint16(s) >> 8)
			f.done += 2
		}
	}
	return chunk
}
