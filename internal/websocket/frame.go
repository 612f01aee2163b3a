package websocket

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/voltlabs/volt/internal/stream"
)

// WebSocket frame opcodes
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

const (
	finBit  = 0x80
	maskBit = 0x80

	// MaxFramePayload is the largest payload carried by a single outbound
	// frame. Larger messages are fragmented.
	MaxFramePayload = 524288

	// maxControlPayload is the RFC 6455 limit for control frames.
	maxControlPayload = 125
)

// Frame is a decoded WebSocket frame.
type Frame struct {
	FIN     bool
	RSV1    bool
	RSV2    bool
	RSV3    bool
	Opcode  byte
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	Payload []byte
}

// ReadFrame reads one frame from r, removing the client mask. timeout bounds
// the wait for the first header byte only.
func ReadFrame(r *stream.Reader, timeout time.Duration) (*Frame, error) {
	header, err := r.ReadBytes(2, timeout, nil, nil)
	if err != nil {
		return nil, err
	}

	frame := &Frame{
		FIN:    header[0]&finBit != 0,
		RSV1:   header[0]&0x40 != 0,
		RSV2:   header[0]&0x20 != 0,
		RSV3:   header[0]&0x10 != 0,
		Opcode: header[0] & 0x0F,
		Masked: header[1]&maskBit != 0,
	}

	switch length := uint64(header[1] & 0x7F); length {
	case 126:
		ext, err := r.ReadBytes(2, 0, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read extended length: %w", err)
		}
		frame.Length = uint64(binary.BigEndian.Uint16(ext))
	case 127:
		ext, err := r.ReadBytes(8, 0, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read extended length: %w", err)
		}
		frame.Length = binary.BigEndian.Uint64(ext)
	default:
		frame.Length = length
	}

	if frame.Length > MaxFramePayload {
		return nil, fmt.Errorf("frame payload of %d bytes exceeds %d", frame.Length, MaxFramePayload)
	}

	if frame.Masked {
		key, err := r.ReadBytes(4, 0, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read mask key: %w", err)
		}
		copy(frame.MaskKey[:], key)
	}

	frame.Payload = []byte{}
	if frame.Length > 0 {
		payload, err := r.ReadBytes(int(frame.Length), 0, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		if frame.Masked {
			unmask(payload, frame.MaskKey)
		}
		frame.Payload = payload
	}

	return frame, nil
}

// unmask applies the XOR mask in place.
func unmask(payload []byte, key [4]byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}

// IsControl reports whether the frame is a close, ping or pong frame.
func (f *Frame) IsControl() bool {
	return f.Opcode&0x8 != 0
}

// OpcodeString returns a human-readable opcode name
func (f *Frame) OpcodeString() string {
	return opcodeName(f.Opcode)
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{FIN=%v, Opcode=%s, Masked=%v, Length=%d}",
		f.FIN, f.OpcodeString(), f.Masked, f.Length)
}

func opcodeName(opcode byte) string {
	switch opcode {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", opcode)
	}
}

// EncodeFrames splits payload into unmasked server frames of at most
// MaxFramePayload bytes. The first frame carries the text or binary opcode,
// the rest are continuations, and only the last has FIN set. An empty
// payload yields a single empty final frame.
func EncodeFrames(payload []byte, binaryData bool) [][]byte {
	opcode := byte(OpcodeText)
	if binaryData {
		opcode = OpcodeBinary
	}

	if len(payload) == 0 {
		return [][]byte{encodeFrame(true, opcode, nil)}
	}

	frames := make([][]byte, 0, (len(payload)+MaxFramePayload-1)/MaxFramePayload)
	for offset := 0; offset < len(payload); offset += MaxFramePayload {
		end := min(offset+MaxFramePayload, len(payload))
		op := opcode
		if offset > 0 {
			op = OpcodeContinuation
		}
		frames = append(frames, encodeFrame(end == len(payload), op, payload[offset:end]))
	}
	return frames
}

// encodeFrame builds a single unmasked frame. Lengths below 126 are inline,
// up to 65535 use the 16-bit form and anything larger the 64-bit form.
func encodeFrame(fin bool, opcode byte, payload []byte) []byte {
	n := len(payload)
	b0 := opcode
	if fin {
		b0 |= finBit
	}

	var frame []byte
	switch {
	case n < 126:
		frame = make([]byte, 2+n)
		frame[1] = byte(n)
	case n <= 0xFFFF:
		frame = make([]byte, 4+n)
		frame[1] = 126
		binary.BigEndian.PutUint16(frame[2:4], uint16(n))
	default:
		frame = make([]byte, 10+n)
		frame[1] = 127
		binary.BigEndian.PutUint64(frame[2:10], uint64(n))
	}
	frame[0] = b0
	copy(frame[len(frame)-n:], payload)
	return frame
}
