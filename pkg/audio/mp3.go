package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MPEG-1/2 Layer III stream. The decoder always yields
// 16-bit stereo, which is down-mixed to mono here.
func DecodeMP3(r io.Reader) (*Clip, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("audio: open mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("audio: decode mp3: %w", err)
	}
	return &Clip{
		Samples:    PCM16ToMono(pcm, 2),
		SampleRate: d.SampleRate(),
		Channels:   2,
	}, nil
}
