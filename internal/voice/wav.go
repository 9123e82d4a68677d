package voice

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BuildWAV wraps raw little-endian PCM in a standard 44-byte RIFF/WAVE
// header. sampleRate is in Hz; bitsPerSample is commonly 16.
func BuildWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

// WAVInfo describes a parsed RIFF/WAVE file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// ParseWAV reads the header produced by BuildWAV (PCM, single fmt chunk
// followed by a data chunk) and returns format info plus the raw samples.
func ParseWAV(b []byte) (*WAVInfo, error) {
	if len(b) < 44 {
		return nil, fmt.Errorf("wav too short: %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}
	if string(b[12:16]) != "fmt " {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	fmtSize := binary.LittleEndian.Uint32(b[16:20])
	audioFormat := binary.LittleEndian.Uint16(b[20:22])
	if audioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format %d (want PCM)", audioFormat)
	}
	info := &WAVInfo{
		Channels:      int(binary.LittleEndian.Uint16(b[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(b[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(b[34:36])),
	}
	// Walk chunks after fmt until we find data; some encoders insert
	// LIST/INFO chunks between fmt and data.
	off := 20 + int(fmtSize)
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		if id == "data" {
			end := off + 8 + size
			if end > len(b) {
				end = len(b)
			}
			info.Data = b[off+8 : end]
			return info, nil
		}
		off += 8 + size
	}
	return nil, fmt.Errorf("missing data chunk")
}

// pcm16Bytes converts int16 samples to little-endian bytes.
func pcm16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// pcm16Samples converts little-endian bytes to int16 samples. A trailing
// odd byte is ignored.
func pcm16Samples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
