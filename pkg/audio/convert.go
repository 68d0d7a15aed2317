package audio

// Decimate downsamples 16-bit mono PCM by keeping every factor-th sample.
// This is the deliberately naive rate downshift used when a synthesis backend
// delivers audio at an integer multiple of the telephony rate; it trades
// aliasing for zero buffering and zero latency. A factor below 2 returns the
// input unchanged.
func Decimate(pcm []byte, factor int) []byte {
	if factor < 2 || len(pcm) < 2 {
		return pcm
	}
	samples := len(pcm) / 2
	outSamples := (samples + factor - 1) / factor
	out := make([]byte, 0, outSamples*2)
	for i := 0; i < samples; i += factor {
		out = append(out, pcm[i*2], pcm[i*2+1])
	}
	return out
}

// Decimator applies Decimate semantics to a chunked stream: sample phase and
// split samples carry across Process calls, so concatenating the outputs for
// a chunked input equals Decimate over the concatenated input.
type Decimator struct {
	factor int
	phase  int
	rem    []byte
}

// NewDecimator creates a streaming decimator. A factor below 2 passes audio
// through unchanged.
func NewDecimator(factor int) *Decimator {
	return &Decimator{factor: factor}
}

// Process consumes one chunk of 16-bit mono PCM and returns the decimated
// samples ready so far.
func (d *Decimator) Process(chunk []byte) []byte {
	if d.factor < 2 {
		return chunk
	}
	data := chunk
	if len(d.rem) > 0 {
		data = append(d.rem, chunk...)
	}
	n := len(data) &^ 1
	out := make([]byte, 0, n/(2*d.factor)+2)
	for i := 0; i+1 < n; i += 2 {
		if d.phase == 0 {
			out = append(out, data[i], data[i+1])
		}
		d.phase = (d.phase + 1) % d.factor
	}
	d.rem = append(d.rem[:0:0], data[n:]...)
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono
// output. Uses int32 arithmetic to prevent overflow and clamps to int16
// range. Decoded MP3 is always two-channel; the pipeline is mono throughout.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}
