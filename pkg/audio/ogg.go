package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"layeh.com/gopus"
)

// Opus always decodes at 48 kHz regardless of the rate stored in OpusHead.
const (
	opusSampleRate = 48000
	// opusMaxFrameSize is the largest Opus packet duration (120 ms) in
	// samples per channel.
	opusMaxFrameSize = 5760
)

// oggPageHeaderLen is the fixed part of an Ogg page header, before the
// segment table.
const oggPageHeaderLen = 27

var (
	opusHeadMagic = []byte("OpusHead")
	opusTagsMagic = []byte("OpusTags")
)

// DecodeOggOpus decodes a mono or stereo Ogg/Opus stream, the format Firefox
// uses for MediaRecorder uploads. Only the first logical bitstream is read.
func DecodeOggOpus(r io.Reader) (*Clip, error) {
	packets, err := readOggPackets(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 || !bytes.HasPrefix(packets[0], opusHeadMagic) {
		return nil, fmt.Errorf("%w: ogg stream is not opus", ErrUnsupportedFormat)
	}

	head := packets[0]
	if len(head) < 19 {
		return nil, fmt.Errorf("audio: short OpusHead packet (%d bytes)", len(head))
	}
	channels := int(head[9])
	preSkip := int(binary.LittleEndian.Uint16(head[10:12]))
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: opus with %d channels", ErrUnsupportedFormat, channels)
	}

	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}

	var pcm []int16
	for _, pkt := range packets[1:] {
		if bytes.HasPrefix(pkt, opusTagsMagic) {
			continue
		}
		frame, err := dec.Decode(pkt, opusMaxFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("audio: opus decode: %w", err)
		}
		pcm = append(pcm, frame...)
	}

	if skip := preSkip * channels; skip < len(pcm) {
		pcm = pcm[skip:]
	} else {
		pcm = nil
	}

	return &Clip{
		Samples:    Int16ToMono(pcm, channels),
		SampleRate: opusSampleRate,
		Channels:   channels,
	}, nil
}

// readOggPackets reassembles the packets of the first logical bitstream in r.
// Packets may span pages; a lacing value of 255 continues the current packet.
func readOggPackets(r io.Reader) ([][]byte, error) {
	var (
		packets [][]byte
		partial []byte
		serial  uint32
		seen    bool
		header  = make([]byte, oggPageHeaderLen)
	)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("audio: read ogg page header: %w", err)
		}
		if !bytes.Equal(header[0:4], []byte("OggS")) {
			return nil, fmt.Errorf("audio: bad ogg capture pattern")
		}

		pageSerial := binary.LittleEndian.Uint32(header[14:18])
		nsegs := int(header[26])
		lacing := make([]byte, nsegs)
		if _, err := io.ReadFull(r, lacing); err != nil {
			return nil, fmt.Errorf("audio: read ogg segment table: %w", err)
		}
		var bodyLen int
		for _, l := range lacing {
			bodyLen += int(l)
		}
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("audio: read ogg page body: %w", err)
		}

		if !seen {
			serial = pageSerial
			seen = true
		}
		if pageSerial != serial {
			continue
		}

		off := 0
		for _, l := range lacing {
			partial = append(partial, body[off:off+int(l)]...)
			off += int(l)
			if l < 255 {
				packets = append(packets, partial)
				partial = nil
			}
		}
	}

	if len(partial) > 0 {
		packets = append(packets, partial)
	}
	return packets, nil
}
