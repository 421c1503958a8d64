package tokenfeed

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	messages := []message{
		helloMsg{runID: "run-7", identity: "worker-3"},
		getSamplesMsg{br: BatchRange{Start: 17, End: 42}},
		numSequencesMsg{},
		samplesMsg{sequences: [][]int32{{1, 2, 3}, {65535, 0, -2147483648}}},
		lengthMsg{n: 1 << 40},
		rejectMsg{reason: "unauthorized"},
	}
	var buf bytes.Buffer
	for _, m := range messages {
		if err := writeFrame(&buf, m); err != nil {
			t.Fatalf("writeFrame(%T): %v", m, err)
		}
	}
	for _, want := range messages {
		got, err := readFrame(&buf)
		if err != nil {
			t.Fatalf("readFrame(%T): %v", want, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip: got %#v, want %#v", got, want)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes left over", buf.Len())
	}
}

func TestFrameUnknownType(t *testing.T) {
	frame := binary.LittleEndian.AppendUint32(nil, 1)
	frame = append(frame, 0x7f)
	if _, err := readFrame(bytes.NewReader(frame)); !HasKind(err, KindFraming) {
		t.Errorf("expected framing error, got %v", err)
	}
}

func TestFrameOversized(t *testing.T) {
	frame := binary.LittleEndian.AppendUint32(nil, maxFrameSize+1)
	if _, err := readFrame(bytes.NewReader(frame)); !HasKind(err, KindFraming) {
		t.Errorf("expected framing error, got %v", err)
	}
}

func TestFrameTruncatedPayload(t *testing.T) {
	// A hello whose declared string length runs past the frame.
	payload := []byte{byte(msgHello)}
	payload = binary.LittleEndian.AppendUint32(payload, 100)
	payload = append(payload, "short"...)
	frame := binary.LittleEndian.AppendUint32(nil, uint32(len(payload)))
	frame = append(frame, payload...)
	if _, err := readFrame(bytes.NewReader(frame)); !HasKind(err, KindFraming) {
		t.Errorf("expected framing error, got %v", err)
	}
}

func TestFrameTrailingBytes(t *testing.T) {
	payload := []byte{byte(msgNumSequences), 0xde, 0xad}
	frame := binary.LittleEndian.AppendUint32(nil, uint32(len(payload)))
	frame = append(frame, payload...)
	if _, err := readFrame(bytes.NewReader(frame)); !HasKind(err, KindFraming) {
		t.Errorf("expected framing error, got %v", err)
	}
}
