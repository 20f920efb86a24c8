package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Frame size constants.
const (
	// HeaderSize is the size of the action and procedure bytes.
	HeaderSize = 2

	// ChecksumSize is the size of the trailing checksum.
	ChecksumSize = 2

	// MinFrameSize is the size of a frame with an empty payload.
	MinFrameSize = HeaderSize + ChecksumSize

	// MaxPayloadSize is the largest payload of any defined action.
	MaxPayloadSize = 4

	// MaxFrameSize is the size of the largest defined frame.
	MaxFrameSize = MinFrameSize + MaxPayloadSize
)

// Framing errors. Every decode failure wraps ErrFraming.
var (
	ErrFraming = errors.New("framing error")

	ErrTruncated     = fmt.Errorf("%w: truncated frame", ErrFraming)
	ErrChecksum      = fmt.Errorf("%w: checksum mismatch", ErrFraming)
	ErrUnknownAction = fmt.Errorf("%w: unknown action", ErrFraming)
	ErrPayloadSize   = fmt.Errorf("%w: payload size mismatch", ErrFraming)
)

// Action identifies what a frame asks of (or reports from) the actuator.
type Action uint8

const (
	// ActionApply drives a procedure toward a target value.
	ActionApply Action = 0x01

	// ActionAbort stops a procedure immediately.
	ActionAbort Action = 0x02

	// ActionStatus reports a measured value.
	ActionStatus Action = 0x03

	// ActionAck acknowledges a frame with a status code.
	ActionAck Action = 0x04
)

// Ack status codes.
const (
	AckOK       uint8 = 0x00
	AckRejected uint8 = 0x01
	AckFraming  uint8 = 0x02
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionApply:
		return "APPLY"
	case ActionAbort:
		return "ABORT"
	case ActionStatus:
		return "STATUS"
	case ActionAck:
		return "ACK"
	default:
		return fmt.Sprintf("ACTION(0x%02x)", uint8(a))
	}
}

// PayloadSize returns the payload size for a defined action.
func (a Action) PayloadSize() (int, bool) {
	switch a {
	case ActionApply, ActionStatus:
		return 4, true
	case ActionAbort:
		return 0, true
	case ActionAck:
		return 1, true
	default:
		return 0, false
	}
}

// Message is one decoded frame.
type Message struct {
	Action    Action
	Procedure uint8
	Payload   []byte

	// Checksum is set by Decode. Encode computes its own.
	Checksum uint16
}

// Apply builds an apply message for a procedure and target.
func Apply(procedure uint8, target float64) Message {
	return Message{Action: ActionApply, Procedure: procedure, Payload: float32LE(target)}
}

// Abort builds an abort message for a procedure.
func Abort(procedure uint8) Message {
	return Message{Action: ActionAbort, Procedure: procedure}
}

// Status builds a status report.
func Status(procedure uint8, reading float64) Message {
	return Message{Action: ActionStatus, Procedure: procedure, Payload: float32LE(reading)}
}

// Ack builds an acknowledgement.
func Ack(procedure uint8, code uint8) Message {
	return Message{Action: ActionAck, Procedure: procedure, Payload: []byte{code}}
}

// Value returns the float payload of an Apply or Status message.
func (m Message) Value() (float64, error) {
	if m.Action != ActionApply && m.Action != ActionStatus {
		return 0, fmt.Errorf("protocol: %s carries no value", m.Action)
	}
	if len(m.Payload) != 4 {
		return 0, ErrPayloadSize
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(m.Payload))), nil
}

// Code returns the status code of an Ack message.
func (m Message) Code() (uint8, error) {
	if m.Action != ActionAck {
		return 0, fmt.Errorf("protocol: %s carries no status code", m.Action)
	}
	if len(m.Payload) != 1 {
		return 0, ErrPayloadSize
	}
	return m.Payload[0], nil
}

// String returns a compact representation for logs.
func (m Message) String() string {
	if v, err := m.Value(); err == nil {
		return fmt.Sprintf("%s proc=%d value=%g", m.Action, m.Procedure, v)
	}
	return fmt.Sprintf("%s proc=%d payload=%x", m.Action, m.Procedure, m.Payload)
}

// Checksum returns the 16-bit wrapping sum of b.
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return sum
}

// Encode serializes a message. It rejects undefined actions and payloads
// whose size does not match the action.
func Encode(m Message) ([]byte, error) {
	size, ok := m.Action.PayloadSize()
	if !ok {
		return nil, fmt.Errorf("encode: %w 0x%02x", ErrUnknownAction, uint8(m.Action))
	}
	if len(m.Payload) != size {
		return nil, fmt.Errorf("encode %s: %w: got %d, want %d", m.Action, ErrPayloadSize, len(m.Payload), size)
	}

	frame := make([]byte, 0, MinFrameSize+size)
	frame = append(frame, byte(m.Action), m.Procedure)
	frame = append(frame, m.Payload...)
	frame = binary.LittleEndian.AppendUint16(frame, Checksum(frame))
	return frame, nil
}

// Decode parses exactly one frame. It fails closed: nothing is returned
// unless the whole frame is well formed.
func Decode(frame []byte) (Message, error) {
	if len(frame) < MinFrameSize {
		return Message{}, fmt.Errorf("decode: %w: %d bytes", ErrTruncated, len(frame))
	}

	action := Action(frame[0])
	size, ok := action.PayloadSize()
	if !ok {
		return Message{}, fmt.Errorf("decode: %w 0x%02x", ErrUnknownAction, frame[0])
	}
	if len(frame) != MinFrameSize+size {
		return Message{}, fmt.Errorf("decode %s: %w: frame is %d bytes", action, ErrPayloadSize, len(frame))
	}

	body := frame[:len(frame)-ChecksumSize]
	got := binary.LittleEndian.Uint16(frame[len(frame)-ChecksumSize:])
	if want := Checksum(body); got != want {
		return Message{}, fmt.Errorf("decode: %w: got 0x%04x, want 0x%04x", ErrChecksum, got, want)
	}

	m := Message{
		Action:    action,
		Procedure: frame[1],
		Checksum:  got,
	}
	if size > 0 {
		m.Payload = append([]byte(nil), frame[HeaderSize:HeaderSize+size]...)
	}
	return m, nil
}

func float32LE(v float64) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v)))
}
