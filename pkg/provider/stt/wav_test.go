package stt_test

import (
	"bytes"
	"testing"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/types"
)

func TestDecodeAudio_RoundTrip(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 32000*2) // 2 s of 16 kHz mono
	for i := range pcm {
		pcm[i] = byte(i)
	}
	f := stt.Format{SampleRate: 16000, Channels: 1}
	wav := stt.EncodeWAV(pcm, f)

	if !stt.IsWAV(wav) {
		t.Fatal("IsWAV(EncodeWAV(...)) = false")
	}
	got, gf, ok := stt.DecodeAudio(wav, stt.Format{SampleRate: 8000, Channels: 2})
	if !ok {
		t.Fatal("DecodeAudio: ok = false")
	}
	if gf != f {
		t.Errorf("format = %+v, want %+v", gf, f)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("decoded PCM differs from input")
	}
	if d := gf.Duration(got); d != 2 {
		t.Errorf("Duration = %v, want 2", d)
	}
}

func TestDecodeAudio_RawPCM(t *testing.T) {
	t.Parallel()

	raw := []byte{1, 2, 3, 4}
	got, f, ok := stt.DecodeAudio(raw, stt.DefaultFormat)
	if !ok || !bytes.Equal(got, raw) || f != stt.DefaultFormat {
		t.Errorf("DecodeAudio(raw) = %v, %+v, %v", got, f, ok)
	}
}

func TestDecodeAudio_NotPCM(t *testing.T) {
	t.Parallel()

	wav := stt.EncodeWAV([]byte{0, 0}, stt.DefaultFormat)
	wav[20] = 3 // IEEE float
	if _, _, ok := stt.DecodeAudio(wav, stt.DefaultFormat); ok {
		t.Error("DecodeAudio(float wav): ok = true, want false")
	}
	if _, _, ok := stt.DecodeAudio(wav[:30], stt.DefaultFormat); ok {
		t.Error("DecodeAudio(truncated wav): ok = true, want false")
	}
}

func TestFinish(t *testing.T) {
	t.Parallel()

	got := stt.Finish(types.Transcription{Segments: []types.Segment{
		{Start: 0, End: 1},
		{Start: 1.5, End: 1.2},
	}}, 0)
	if got.Segments[1].End != 1.5 {
		t.Errorf("clamped End = %v, want 1.5", got.Segments[1].End)
	}
	if got.DurationSeconds != 1.5 {
		t.Errorf("DurationSeconds = %v, want 1.5 (last segment end)", got.DurationSeconds)
	}

	got = stt.Finish(types.Transcription{}, 3)
	if got.DurationSeconds != 3 || got.Segments == nil {
		t.Errorf("Finish(empty, 3) = %+v", got)
	}
}
