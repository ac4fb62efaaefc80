package media

import (
	"bytes"
	"errors"
	"testing"
)

func TestVideoPrologue_RoundTrip(t *testing.T) {
	in := &VideoFrame{
		Width:  1920,
		Height: 1080,
		Format: FormatUYVY,
		Flags:  FlagAlpha | FlagHighBitDepth,
	}
	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	payload := make([]byte, VideoPrologueSize+len(body))
	if err := PutVideoPrologue(payload, in); err != nil {
		t.Fatal(err)
	}
	copy(payload[VideoPrologueSize:], body)

	out, gotBody, err := ParseVideoPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != in.Width || out.Height != in.Height || out.Format != in.Format || out.Flags != in.Flags {
		t.Errorf("parsed frame = %+v, want fields of %+v", out, in)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body = %x, want %x", gotBody, body)
	}
	// The body must alias the payload, not copy it.
	if &gotBody[0] != &payload[VideoPrologueSize] {
		t.Error("body does not alias payload")
	}
}

func TestParseVideoPayload_TooShort(t *testing.T) {
	_, _, err := ParseVideoPayload(make([]byte, VideoPrologueSize-1))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestParseVideoPayload_BadPixelFormat(t *testing.T) {
	payload := make([]byte, VideoPrologueSize)
	payload[8] = 200
	_, _, err := ParseVideoPayload(payload)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestPutVideoPrologue_ShortDst(t *testing.T) {
	err := PutVideoPrologue(make([]byte, 3), &VideoFrame{})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestAudioPrologue_RoundTrip(t *testing.T) {
	in := &AudioFrame{SampleRate: 48000, Channels: 2}
	body := bytes.Repeat([]byte{0x11}, 32)

	payload := make([]byte, AudioPrologueSize+len(body))
	if err := PutAudioPrologue(payload, in); err != nil {
		t.Fatal(err)
	}
	copy(payload[AudioPrologueSize:], body)

	out, gotBody, err := ParseAudioPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if out.SampleRate != 48000 || out.Channels != 2 {
		t.Errorf("parsed frame = %+v", out)
	}
	if !bytes.Equal(gotBody, body) {
		t.Error("body mismatch")
	}
}

func TestParseAudioPayload_TooShort(t *testing.T) {
	_, _, err := ParseAudioPayload([]byte{1, 2, 3})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestAudioFrame_SampleCount(t *testing.T) {
	f := &AudioFrame{
		SampleRate: 48000,
		Channels:   2,
		Data:       make([]byte, 2*4*100), // 100 frames, stereo f32
	}
	if got := f.SampleCount(); got != 100 {
		t.Errorf("SampleCount = %d, want 100", got)
	}

	f.Channels = 0
	if got := f.SampleCount(); got != 0 {
		t.Errorf("SampleCount with zero channels = %d, want 0", got)
	}
}

func TestPixelFormat_Valid(t *testing.T) {
	for f := FormatUYVY; f <= FormatPA16; f++ {
		if !f.Valid() {
			t.Errorf("format %d should be valid", f)
		}
	}
	if PixelFormat(7).Valid() {
		t.Error("format 7 should be invalid")
	}
}

func TestTally_RoundTrip(t *testing.T) {
	in := Tally{OnProgram: true, OnPreview: false, Source: "cam1"}

	frame, err := TallyMetadata(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ParseTally(frame.Content)
	if err != nil {
		t.Fatal(err)
	}
	if out.OnProgram != in.OnProgram || out.OnPreview != in.OnPreview || out.Source != in.Source {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestParseTally_Invalid(t *testing.T) {
	if _, err := ParseTally("not xml at all <"); err == nil {
		t.Error("expected parse error")
	}
}
