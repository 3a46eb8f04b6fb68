package stt

import (
	"bytes"
	"encoding/binary"
)

const bitsPerSample = 16

// Format describes raw PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is what raw, headerless PCM is assumed to be.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond returns the PCM data rate for 16-bit samples.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bitsPerSample / 8
}

// Duration returns the length in seconds of pcm in this format.
func (f Format) Duration(pcm []byte) float64 {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return float64(len(pcm)) / float64(bps)
}

// IsWAV reports whether audio starts with a RIFF/WAVE header.
func IsWAV(audio []byte) bool {
	return len(audio) >= 12 && bytes.Equal(audio[0:4], []byte("RIFF")) && bytes.Equal(audio[8:12], []byte("WAVE"))
}

// DecodeAudio returns the PCM payload and format of audio. WAV files are
// parsed chunk by chunk; anything else is treated as raw PCM in def. ok is
// false for a WAV file that is not 16-bit PCM or has no data chunk.
func DecodeAudio(audio []byte, def Format) (pcm []byte, f Format, ok bool) {
	if !IsWAV(audio) {
		return audio, def, true
	}
	f = def
	gotFmt := false
	for off := 12; off+8 <= len(audio); {
		id := string(audio[off : off+4])
		size := int(binary.LittleEndian.Uint32(audio[off+4 : off+8]))
		body := off + 8
		end := min(len(audio), body+size)
		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, f, false
			}
			if binary.LittleEndian.Uint16(audio[body:]) != 1 || binary.LittleEndian.Uint16(audio[body+14:]) != bitsPerSample {
				return nil, f, false
			}
			f.Channels = int(binary.LittleEndian.Uint16(audio[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(audio[body+4:]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, f, false
			}
			return audio[body:end], f, true
		}
		off = body + size + size%2
	}
	return nil, f, false
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a RIFF/WAV
// container suitable for multipart uploads.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.BytesPerSecond()
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
