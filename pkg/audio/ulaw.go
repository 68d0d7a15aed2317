package audio

// G.711 µ-law transcoding. The tables and constants follow the ITU-T G.711
// reference: 8-bit companded samples with a 33-unit bias and inverted output.

const (
	ulawBias = 0x84
	ulawClip = 32635

	// ULawSilence is the µ-law encoding of linear zero. Fade ramps and
	// comfort padding converge on this byte.
	ULawSilence = 0xFF
)

// DecodeULawSample expands one µ-law byte to a 16-bit linear sample.
func DecodeULawSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	t := (int32(mant)<<3 + ulawBias) << exp
	t -= ulawBias
	if sign != 0 {
		return int16(-t)
	}
	return int16(t)
}

// EncodeULawSample compands one 16-bit linear sample to a µ-law byte.
func EncodeULawSample(s int16) byte {
	x := int32(s)
	var sign byte
	if x < 0 {
		x = -x
		sign = 0x80
	}
	if x > ulawClip {
		x = ulawClip
	}
	x += ulawBias

	exp := byte(7)
	for mask := int32(0x4000); x&mask == 0 && exp > 0; exp-- {
		mask >>= 1
	}
	mant := byte((x >> (exp + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}

// DecodeULaw expands a µ-law byte stream to 16-bit little-endian PCM.
func DecodeULaw(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, u := range ulaw {
		s := DecodeULawSample(u)
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// EncodeULaw compands 16-bit little-endian PCM to a µ-law byte stream.
// A trailing odd byte is ignored.
func EncodeULaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = EncodeULawSample(s)
	}
	return out
}
