package audio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

// FFmpeg decodes any container the ffmpeg binary understands. It is the
// fallback for WebM/Opus uploads from Chromium-based browsers, for which no
// pure-Go demuxer is wired in.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// Compile-time assertion that FFmpeg satisfies Decoder.
var _ Decoder = (*FFmpeg)(nil)

// LookupFFmpeg locates ffmpeg and ffprobe on PATH.
func LookupFFmpeg() (*FFmpeg, error) {
	ff, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("audio: ffmpeg not found: %w", err)
	}
	fp, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("audio: ffprobe not found: %w", err)
	}
	return &FFmpeg{ffmpegPath: ff, ffprobePath: fp}, nil
}

// probeResult is the subset of `ffprobe -of json` output we need.
type probeResult struct {
	Streams []struct {
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// Decode implements [Decoder]. The first audio stream is decoded to mono
// 32-bit float at its native sample rate.
func (f *FFmpeg) Decode(ctx context.Context, path string) (*Clip, error) {
	rate, channels, err := f.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-nostdin", "-v", "error",
		"-i", path,
		"-map", "0:a:0",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-f", "f32le", "-acodec", "pcm_f32le",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("audio: ffmpeg decode: %w", err)
	}

	n := len(out) / 4
	samples := make([]float64, n)
	for i := range n {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:])))
	}
	return &Clip{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

func (f *FFmpeg) probe(ctx context.Context, path string) (rate, channels int, err error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("audio: ffprobe: %w", err)
	}
	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, 0, fmt.Errorf("audio: parse ffprobe output: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, 0, fmt.Errorf("%w: no audio stream", ErrUnsupportedFormat)
	}
	rate, err = strconv.Atoi(res.Streams[0].SampleRate)
	if err != nil || rate <= 0 {
		return 0, 0, fmt.Errorf("audio: ffprobe sample rate %q invalid", res.Streams[0].SampleRate)
	}
	return rate, res.Streams[0].Channels, nil
}
