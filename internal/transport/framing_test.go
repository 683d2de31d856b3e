package transport

import (
	"bytes"
	"testing"
)

func TestSLIPRoundTrip(t *testing.T) {
	f := NewSLIPFramer(0)
	payload := []byte{0x01, slipEnd, 0x02, slipEsc, 0x03}
	encoded := f.Encode(payload)

	frames, err := f.Feed(encoded)
	if err != nil {
		t.Fatalf("unexpected framing error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], payload) {
		t.Fatalf("got %v, want %v", frames[0], payload)
	}
}

func TestSLIPBackToBackENDSilentlySkipped(t *testing.T) {
	f := NewSLIPFramer(0)
	frames, err := f.Feed([]byte{slipEnd, slipEnd, slipEnd})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("got %d frames from empty END-delimited stream, want 0", len(frames))
	}
}

func TestSLIPInvalidEscapeDropsFrameAndResumes(t *testing.T) {
	f := NewSLIPFramer(0)
	// 0x01, ESC, 0x99 (invalid escape target), END, then a clean frame.
	good := f.Encode([]byte{0xAA, 0xBB})
	stream := append([]byte{0x01, slipEsc, 0x99, slipEnd}, good...)

	frames, err := f.Feed(stream)
	if err != ErrFramingEscape {
		t.Fatalf("got err %v, want ErrFramingEscape", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0xAA, 0xBB}) {
		t.Fatalf("expected decoding to resume after the bad frame, got %v", frames)
	}
}

func TestSLIPOversizeFrame(t *testing.T) {
	f := NewSLIPFramer(4)
	_, err := f.Feed([]byte{1, 2, 3, 4, 5, slipEnd})
	if err != ErrFramingOversize {
		t.Fatalf("got %v, want ErrFramingOversize", err)
	}
}

func TestSLIPMultipleFramesInOneFeed(t *testing.T) {
	f := NewSLIPFramer(0)
	var stream []byte
	stream = append(stream, f.Encode([]byte("one"))...)
	stream = append(stream, f.Encode([]byte("two"))...)

	frames, err := f.Feed(stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 || string(frames[0]) != "one" || string(frames[1]) != "two" {
		t.Fatalf("got %v", frames)
	}
}

func TestSLIPLargePayload(t *testing.T) {
	f := NewSLIPFramer(0)
	payload := bytes.Repeat([]byte{'x'}, 1<<15)
	encoded := f.Encode(payload)

	frames, err := f.Feed(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Fatalf("got %d frames, first len %d", len(frames), len(frames[0]))
	}
}

func TestSLIPPayloadContainingEveryFramingByte(t *testing.T) {
	f := NewSLIPFramer(0)
	payload := []byte{slipEnd, slipEsc, slipEscEnd, slipEscEsc}
	encoded := f.Encode(payload)

	frames, err := f.Feed(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Fatalf("got %v, want %v", frames, payload)
	}
}

func TestLengthPrefixRoundTrip(t *testing.T) {
	f := NewLengthPrefixFramer(0)
	payload := []byte("hello osc")
	encoded := f.Encode(payload)

	frames, err := f.Feed(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Fatalf("got %v, want %v", frames, payload)
	}
}

func TestLengthPrefixPartialDelivery(t *testing.T) {
	f := NewLengthPrefixFramer(0)
	encoded := f.Encode([]byte("partial"))

	frames, err := f.Feed(encoded[:3])
	if err != nil || len(frames) != 0 {
		t.Fatalf("expected no frames yet from a partial header, got %v err=%v", frames, err)
	}
	frames, err = f.Feed(encoded[3:])
	if err != nil || len(frames) != 1 || string(frames[0]) != "partial" {
		t.Fatalf("got %v err=%v", frames, err)
	}
}

func TestLengthPrefixOversize(t *testing.T) {
	enc := NewLengthPrefixFramer(0)
	encoded := enc.Encode([]byte("toolong"))

	dec := NewLengthPrefixFramer(4)
	_, err := dec.Feed(encoded)
	if err != ErrFramingOversize {
		t.Fatalf("got %v, want ErrFramingOversize", err)
	}
}
