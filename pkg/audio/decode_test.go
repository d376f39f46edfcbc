package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

func TestSniff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header []byte
		want   Container
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVE"), ContainerWAV},
		{"riff but not wave", []byte("RIFF\x00\x00\x00\x00AVI "), ContainerUnknown},
		{"ogg", []byte("OggS\x00\x02"), ContainerOgg},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F}, ContainerWebM},
		{"mp3 with id3", []byte("ID3\x04\x00"), ContainerMP3},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x64}, ContainerMP3},
		{"empty", nil, ContainerUnknown},
		{"text", []byte("hello world!"), ContainerUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Sniff(tc.header); got != tc.want {
				t.Errorf("Sniff = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFileDecoder_MonoWAV(t *testing.T) {
	t.Parallel()
	path := writeMonoWAV(t, sine(440, 0.5, 16000, 1), 16000)

	clip, err := NewFileDecoder().Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("Channels = %d, want 1", clip.Channels)
	}
	if !almostEqual(clip.Seconds(), 1, 1e-6) {
		t.Errorf("Seconds = %v, want 1", clip.Seconds())
	}
	if !almostEqual(RMS(clip.Samples), 0.5/1.41421356, 1e-3) {
		t.Errorf("RMS = %v, want ~0.354", RMS(clip.Samples))
	}
}

func TestFileDecoder_StereoWAVKeepsNativeRate(t *testing.T) {
	t.Parallel()
	const frames = 44100
	pcm := make([]byte, frames*4)
	left, right := int16(16000), int16(-16000)
	for i := range frames {
		binary.LittleEndian.PutUint16(pcm[i*4:], uint16(left))
		binary.LittleEndian.PutUint16(pcm[i*4+2:], uint16(right))
	}
	path := writeFile(t, "stereo.wav", EncodeWAV(pcm, 44100, 2))

	clip, err := NewFileDecoder().Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", clip.SampleRate)
	}
	if clip.Channels != 2 {
		t.Errorf("Channels = %d, want 2", clip.Channels)
	}
	if len(clip.Samples) != frames {
		t.Fatalf("len = %d, want %d", len(clip.Samples), frames)
	}
	for i, s := range clip.Samples[:10] {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0 after down-mix", i, s)
		}
	}
}

func TestFileDecoder_UnknownWithoutExternal(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "junk.bin", []byte("definitely not audio data"))

	_, err := NewFileDecoder().Decode(context.Background(), path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFileDecoder_EmptyFile(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "empty.webm", nil)

	_, err := NewFileDecoder().Decode(context.Background(), path)
	if !errors.Is(err, ErrNoSamples) {
		t.Fatalf("err = %v, want ErrNoSamples", err)
	}
}

func TestFileDecoder_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewFileDecoder().Decode(context.Background(), "/nonexistent/clip.wav")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// stubDecoder is a Decoder returning a fixed clip and recording calls.
type stubDecoder struct {
	clip  *Clip
	err   error
	calls int
}

func (s *stubDecoder) Decode(_ context.Context, _ string) (*Clip, error) {
	s.calls++
	return s.clip, s.err
}

func TestFileDecoder_WebMUsesExternal(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "rec.webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02, 0x03})
	ext := &stubDecoder{clip: &Clip{Samples: make([]float64, 480), SampleRate: 48000, Channels: 1}}

	clip, err := NewFileDecoder(WithExternal(ext)).Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ext.calls != 1 {
		t.Errorf("external calls = %d, want 1", ext.calls)
	}
	if !almostEqual(clip.Seconds(), 0.01, 1e-9) {
		t.Errorf("Seconds = %v, want 0.01", clip.Seconds())
	}
}

func TestFileDecoder_ExternalErrorPropagates(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "rec.webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01})
	ext := &stubDecoder{err: errors.New("ffmpeg exploded")}

	_, err := NewFileDecoder(WithExternal(ext)).Decode(context.Background(), path)
	if err == nil || err.Error() != "ffmpeg exploded" {
		t.Fatalf("err = %v, want external error", err)
	}
}

func TestFileDecoder_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileDecoder().Decode(ctx, "irrelevant.wav")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestContentTypeAndExtension(t *testing.T) {
	t.Parallel()
	tests := []struct {
		c        Container
		wantType string
		wantExt  string
	}{
		{ContainerWAV, "audio/wav", ".wav"},
		{ContainerMP3, "audio/mpeg", ".mp3"},
		{ContainerOgg, "audio/ogg", ".ogg"},
		{ContainerWebM, "audio/webm", ".webm"},
		{ContainerUnknown, "application/octet-stream", ".webm"},
	}
	for _, tc := range tests {
		if got := ContentType(tc.c); got != tc.wantType {
			t.Errorf("ContentType(%s) = %q, want %q", tc.c, got, tc.wantType)
		}
		if got := Extension(tc.c); got != tc.wantExt {
			t.Errorf("Extension(%s) = %q, want %q", tc.c, got, tc.wantExt)
		}
	}
}

func TestSniffFile(t *testing.T) {
	t.Parallel()
	path := writeMonoWAV(t, sine(200, 0.1, 8000, 0.1), 8000)
	got, err := SniffFile(path)
	if err != nil {
		t.Fatalf("SniffFile: %v", err)
	}
	if got != ContainerWAV {
		t.Errorf("SniffFile = %q, want wav", got)
	}

	empty := writeFile(t, "empty", nil)
	if got, err := SniffFile(empty); err != nil || got != ContainerUnknown {
		t.Errorf("SniffFile(empty) = %q, %v; want unknown, nil", got, err)
	}
}
