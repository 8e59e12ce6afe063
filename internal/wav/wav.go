// Package wav implements just enough of RIFF/WAVE/PCM to let the cache
// concatenate independently synthesized sentence clips into one reply
// without shelling out to an external tool.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Format describes the fmt-chunk layout of a WAV file: audio format tag,
// channel count, sample rate, byte rate, block align, and bits per sample.
type Format struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Equal reports whether two formats are interchangeable for concatenation
// purposes.
func (f Format) Equal(other Format) bool {
	return f.AudioFormat == other.AudioFormat &&
		f.NumChannels == other.NumChannels &&
		f.SampleRate == other.SampleRate &&
		f.ByteRate == other.ByteRate &&
		f.BlockAlign == other.BlockAlign &&
		f.BitsPerSample == other.BitsPerSample
}

// ParseHeader walks the chunk list of a RIFF/WAVE file and returns its
// format plus the raw PCM payload (the contents of the data chunk). Chunks
// with an odd byte count are followed by one pad byte, per the RIFF spec;
// the walk accounts for it.
func ParseHeader(data []byte) (Format, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, fmt.Errorf("wav: not a RIFF/WAVE file")
	}

	var format Format
	var haveFormat bool
	var payload []byte
	var haveData bool

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		bodyStart := offset + 8
		bodyEnd := bodyStart + int(size)
		if bodyEnd > len(data) {
			break
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, fmt.Errorf("wav: fmt chunk too small (%d bytes)", size)
			}
			body := data[bodyStart:bodyEnd]
			format = Format{
				AudioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				NumChannels:   binary.LittleEndian.Uint16(body[2:4]),
				SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				ByteRate:      binary.LittleEndian.Uint32(body[8:12]),
				BlockAlign:    binary.LittleEndian.Uint16(body[12:14]),
				BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			haveFormat = true
		case "data":
			payload = data[bodyStart:bodyEnd]
			haveData = true
		}

		offset = bodyEnd
		if size%2 == 1 {
			offset++
		}
	}

	if !haveFormat {
		return Format{}, nil, fmt.Errorf("wav: missing fmt chunk")
	}
	if !haveData {
		return Format{}, nil, fmt.Errorf("wav: missing data chunk")
	}
	return format, payload, nil
}

// BuildHeader produces a canonical 44-byte PCM WAV header for the given
// format and payload length, with no extension chunks. AudioFormat,
// ByteRate, and BlockAlign are taken from format as given; callers building
// a fresh clip from raw samples should fill them in (see Build), while
// Concatenate passes a source clip's own parsed values straight through.
func BuildHeader(format Format, dataSize int) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16)) // PCM fmt chunk size
	binary.Write(buf, binary.LittleEndian, format.AudioFormat)
	binary.Write(buf, binary.LittleEndian, format.NumChannels)
	binary.Write(buf, binary.LittleEndian, format.SampleRate)
	binary.Write(buf, binary.LittleEndian, format.ByteRate)
	binary.Write(buf, binary.LittleEndian, format.BlockAlign)
	binary.Write(buf, binary.LittleEndian, format.BitsPerSample)

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	return buf.Bytes()
}

// Build assembles a complete WAV file from a format and raw PCM samples. If
// format.AudioFormat, ByteRate, or BlockAlign are left zero, they're filled
// in for standard PCM before the header is written.
func Build(format Format, pcm []byte) []byte {
	if format.AudioFormat == 0 {
		format.AudioFormat = 1 // PCM
	}
	if format.ByteRate == 0 {
		format.ByteRate = format.SampleRate * uint32(format.NumChannels) * uint32(format.BitsPerSample) / 8
	}
	if format.BlockAlign == 0 {
		format.BlockAlign = format.NumChannels * format.BitsPerSample / 8
	}

	header := BuildHeader(format, len(pcm))
	out := make([]byte, 0, len(header)+len(pcm))
	out = append(out, header...)
	out = append(out, pcm...)
	return out
}

// minClipSize is the smallest buffer ParseHeader could plausibly accept: a
// 44-byte header plus at least one byte of payload.
const minClipSize = 45

// Concatenate joins a sequence of WAV clips into one. Inputs shorter than
// minClipSize are dropped outright (too small to be a real clip). The
// first surviving input's format is treated as authoritative for every
// other input: Concatenate does not verify that the clips actually share a
// format, so a mismatched clip is spliced in under the first clip's
// declared channel/rate/bit-depth, producing audibly wrong output rather
// than an error. If the first clip itself fails to parse, Concatenate
// returns it unchanged as a degraded fallback instead of failing the
// entire reply.
func Concatenate(clips [][]byte) ([]byte, error) {
	var filtered [][]byte
	for _, c := range clips {
		if len(c) >= minClipSize {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return []byte{}, nil
	}
	if len(filtered) == 1 {
		return filtered[0], nil
	}

	format, _, err := ParseHeader(filtered[0])
	if err != nil {
		return filtered[0], nil
	}

	var pcm []byte
	for _, c := range filtered {
		_, payload, err := ParseHeader(c)
		if err != nil {
			continue
		}
		pcm = append(pcm, payload...)
	}

	return Build(format, pcm), nil
}
