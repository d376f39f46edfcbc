package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToMono converts interleaved 16-bit signed little-endian PCM to mono
// samples in [-1, 1] by averaging all channels per frame. A trailing partial
// frame is ignored.
func PCM16ToMono(pcm []byte, channels int) []float64 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[idx:idx+2]))) / 32768.0
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// Int16ToMono is [PCM16ToMono] for already-decoded interleaved samples.
func Int16ToMono(pcm []int16, channels int) []float64 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += float64(pcm[i*channels+ch]) / 32768.0
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// intsToMono down-mixes integer PCM of the given bit depth. 8-bit PCM is
// unsigned in WAV files and is re-centred around zero.
func intsToMono(data []int, channels, bitDepth int) []float64 {
	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	frames := len(data) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += float64(data[i*channels+ch]-offset) / scale
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. The input is returned unchanged when the rates match or are
// invalid.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float64, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// ToFloat32 narrows samples to float32, the representation whisper.cpp
// expects.
func ToFloat32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return out
}

// ToPCM16 encodes mono samples as 16-bit signed little-endian PCM, clamping
// values outside [-1, 1].
func ToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(s * 32767)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
