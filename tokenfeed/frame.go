package tokenfeed

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Wire format: every message is one frame, a u32 little-endian payload
// length followed by the payload. The payload starts with a single type
// byte; all integers are little-endian; strings are a u32 length plus
// UTF-8 bytes. Sequences always travel as 4-byte i32 tokens (the
// canonical in-memory form), independent of the provider's storage
// width.

type msgType uint8

const (
	msgHello msgType = iota + 1
	msgGetSamples
	msgNumSequences
	msgSamples
	msgLength
	msgReject
)

// Frames larger than this are rejected before allocation; a sane server
// never produces them and a malformed length prefix must not OOM us.
const maxFrameSize = 1 << 28

type helloMsg struct {
	runID    string
	identity string
}

type getSamplesMsg struct {
	br BatchRange
}

type numSequencesMsg struct{}

type samplesMsg struct {
	sequences [][]int32
}

type lengthMsg struct {
	n uint64
}

type rejectMsg struct {
	reason string
}

type message interface {
	msgType() msgType
	appendPayload(b []byte) []byte
}

func (helloMsg) msgType() msgType        { return msgHello }
func (getSamplesMsg) msgType() msgType   { return msgGetSamples }
func (numSequencesMsg) msgType() msgType { return msgNumSequences }
func (samplesMsg) msgType() msgType      { return msgSamples }
func (lengthMsg) msgType() msgType       { return msgLength }
func (rejectMsg) msgType() msgType       { return msgReject }

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func (m helloMsg) appendPayload(b []byte) []byte {
	b = appendString(b, m.runID)
	return appendString(b, m.identity)
}

func (m getSamplesMsg) appendPayload(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, m.br.Start)
	return binary.LittleEndian.AppendUint64(b, m.br.End)
}

func (numSequencesMsg) appendPayload(b []byte) []byte {
	return b
}

func (m samplesMsg) appendPayload(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(m.sequences)))
	for _, seq := range m.sequences {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(seq)))
		for _, tok := range seq {
			b = binary.LittleEndian.AppendUint32(b, uint32(tok))
		}
	}
	return b
}

func (m lengthMsg) appendPayload(b []byte) []byte {
	return binary.LittleEndian.AppendUint64(b, m.n)
}

func (m rejectMsg) appendPayload(b []byte) []byte {
	return appendString(b, m.reason)
}

func writeFrame(w io.Writer, m message) error {
	payload := m.appendPayload([]byte{byte(m.msgType())})
	frame := binary.LittleEndian.AppendUint32(
		make([]byte, 0, 4+len(payload)),
		uint32(len(payload)),
	)
	frame = append(frame, payload...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// frameReader decodes one payload with bounds checking. Any short or
// malformed read is a framing error.
type frameReader struct {
	buf []byte
	pos int
}

func (fr *frameReader) take(n int) ([]byte, error) {
	if fr.pos+n > len(fr.buf) {
		return nil, errorf(KindFraming, "frame truncated at byte %d", fr.pos)
	}
	b := fr.buf[fr.pos : fr.pos+n]
	fr.pos += n
	return b, nil
}

func (fr *frameReader) readUint32() (uint32, error) {
	b, err := fr.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (fr *frameReader) readUint64() (uint64, error) {
	b, err := fr.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (fr *frameReader) readString() (string, error) {
	n, err := fr.readUint32()
	if err != nil {
		return "", err
	}
	b, err := fr.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (fr *frameReader) done() error {
	if fr.pos != len(fr.buf) {
		return errorf(KindFraming, "%d trailing bytes in frame", len(fr.buf)-fr.pos)
	}
	return nil
}

func readFrame(r io.Reader) (message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	frameLen := binary.LittleEndian.Uint32(lenBuf[:])
	if frameLen == 0 {
		return nil, errorf(KindFraming, "empty frame")
	}
	if frameLen > maxFrameSize {
		return nil, errorf(KindFraming, "frame of %d bytes exceeds limit", frameLen)
	}
	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errorf(KindFraming, "short frame: %v", err)
	}

	fr := &frameReader{buf: payload[1:]}
	var (
		msg message
		err error
	)
	switch msgType(payload[0]) {
	case msgHello:
		var m helloMsg
		if m.runID, err = fr.readString(); err != nil {
			return nil, err
		}
		if m.identity, err = fr.readString(); err != nil {
			return nil, err
		}
		msg = m
	case msgGetSamples:
		var m getSamplesMsg
		if m.br.Start, err = fr.readUint64(); err != nil {
			return nil, err
		}
		if m.br.End, err = fr.readUint64(); err != nil {
			return nil, err
		}
		msg = m
	case msgNumSequences:
		msg = numSequencesMsg{}
	case msgSamples:
		count, err := fr.readUint32()
		if err != nil {
			return nil, err
		}
		sequences := make([][]int32, 0, count)
		for i := uint32(0); i < count; i++ {
			seqLen, err := fr.readUint32()
			if err != nil {
				return nil, err
			}
			raw, err := fr.take(int(seqLen) * 4)
			if err != nil {
				return nil, err
			}
			seq := make([]int32, seqLen)
			for j := range seq {
				seq[j] = int32(binary.LittleEndian.Uint32(raw[j*4:]))
			}
			sequences = append(sequences, seq)
		}
		msg = samplesMsg{sequences: sequences}
	case msgLength:
		var m lengthMsg
		if m.n, err = fr.readUint64(); err != nil {
			return nil, err
		}
		msg = m
	case msgReject:
		var m rejectMsg
		if m.reason, err = fr.readString(); err != nil {
			return nil, err
		}
		msg = m
	default:
		return nil, errorf(KindFraming, "unknown message type 0x%02x", payload[0])
	}

	if err := fr.done(); err != nil {
		return nil, err
	}
	return msg, nil
}
