package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrUnsupportedFormat is returned when no decoder can handle the input.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// ErrNoSamples is returned when a file decodes successfully but holds no audio.
var ErrNoSamples = errors.New("audio: no samples decoded")

// Container identifies the container format of an audio file.
type Container string

const (
	ContainerWAV     Container = "wav"
	ContainerMP3     Container = "mp3"
	ContainerOgg     Container = "ogg"
	ContainerWebM    Container = "webm"
	ContainerUnknown Container = "unknown"
)

// sniffLen is the number of leading bytes inspected by [Sniff].
const sniffLen = 12

// Sniff guesses the container format from the first bytes of a file.
func Sniff(header []byte) Container {
	switch {
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return ContainerWAV
	case len(header) >= 4 && bytes.Equal(header[0:4], []byte("OggS")):
		return ContainerOgg
	case len(header) >= 4 && bytes.Equal(header[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ContainerWebM
	case len(header) >= 3 && bytes.Equal(header[0:3], []byte("ID3")):
		return ContainerMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return ContainerMP3
	}
	return ContainerUnknown
}

// Decoder turns the audio file at path into a [Clip].
type Decoder interface {
	Decode(ctx context.Context, path string) (*Clip, error)
}

// FileDecoder decodes WAV, MP3 and Ogg/Opus natively and hands every other
// container (WebM in particular, which is what browsers record) to an
// optional external decoder.
type FileDecoder struct {
	external Decoder
}

// DecoderOption configures a [FileDecoder].
type DecoderOption func(*FileDecoder)

// WithExternal sets the decoder used for containers without a native
// decoder, and as a second attempt when a native decoder fails.
func WithExternal(d Decoder) DecoderOption {
	return func(fd *FileDecoder) { fd.external = d }
}

// NewFileDecoder returns a [FileDecoder]. Without [WithExternal], WebM and
// unknown containers fail with [ErrUnsupportedFormat].
func NewFileDecoder(opts ...DecoderOption) *FileDecoder {
	fd := &FileDecoder{}
	for _, o := range opts {
		o(fd)
	}
	return fd
}

// Decode implements [Decoder].
func (d *FileDecoder) Decode(ctx context.Context, path string) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoSamples
		}
		return nil, fmt.Errorf("audio: read header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("audio: rewind: %w", err)
	}

	container := Sniff(header[:n])

	var clip *Clip
	switch container {
	case ContainerWAV:
		clip, err = DecodeWAV(f)
	case ContainerMP3:
		clip, err = DecodeMP3(f)
	case ContainerOgg:
		clip, err = DecodeOggOpus(f)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, container)
	}

	if err != nil && d.external != nil {
		if container != ContainerWebM && container != ContainerUnknown {
			slog.Debug("native decode failed, trying external decoder",
				"container", container, "err", err)
		}
		clip, err = d.external.Decode(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if len(clip.Samples) == 0 {
		return nil, ErrNoSamples
	}
	return clip, nil
}

// ContentType returns the MIME type conventionally used for c.
func ContentType(c Container) string {
	switch c {
	case ContainerWAV:
		return "audio/wav"
	case ContainerMP3:
		return "audio/mpeg"
	case ContainerOgg:
		return "audio/ogg"
	case ContainerWebM:
		return "audio/webm"
	}
	return "application/octet-stream"
}

// Extension returns the file extension, including the dot, for c. Unknown
// containers map to ".webm", the format browsers record by default.
func Extension(c Container) string {
	switch c {
	case ContainerWAV, ContainerMP3, ContainerOgg:
		return "." + string(c)
	}
	return ".webm"
}

// SniffFile reads the first bytes of the file at path and reports its
// container.
func SniffFile(path string) (Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return ContainerUnknown, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return ContainerUnknown, fmt.Errorf("audio: read header: %w", err)
	}
	return Sniff(header[:n]), nil
}
