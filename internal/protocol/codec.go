package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Frame layout: [2-byte big-endian kind][4-byte big-endian payload
// length][payload]. The payload always begins with the shared header
// ([4-byte sender id][8-byte timestamp]) followed by kind-specific
// fields. Variable-length fields are length-prefixed sub-fields,
// never delimiter-based, so arbitrary user text cannot break framing.
const (
	frameHeaderSize   = 6
	messageHeaderSize = 12

	// MaxPayload bounds a single frame's payload. A declared length
	// above this is treated as a transport fault before any allocation
	// happens, so a corrupted or malicious peer cannot force unbounded
	// buffers.
	MaxPayload = 1 << 20
)

var (
	// ErrUnknownKind marks a well-formed frame whose kind is outside
	// the closed enumeration. The frame is dropped; the connection
	// stays alive.
	ErrUnknownKind = errors.New("protocol: unknown message kind")

	// ErrFrameTooLarge marks a declared payload length above
	// MaxPayload. The connection is treated as failed.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds max payload")

	// ErrFrameTooSmall marks a declared payload length too short to
	// hold the message header. The connection is treated as failed.
	ErrFrameTooSmall = errors.New("protocol: frame below minimum payload")
)

// fieldWriter appends payload fields with a sticky error, so encode
// routines stay linear.
type fieldWriter struct {
	buf []byte
	err error
}

func (w *fieldWriter) u8(v uint8)  { w.buf = append(w.buf, v) }
func (w *fieldWriter) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}
func (w *fieldWriter) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}
func (w *fieldWriter) i32(v int32) { w.u32(uint32(v)) }
func (w *fieldWriter) i64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}
func (w *fieldWriter) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *fieldWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// str writes a uint16 length prefix followed by the UTF-8 bytes.
func (w *fieldWriter) str(s string) {
	if len(s) > math.MaxUint16 {
		if w.err == nil {
			w.err = fmt.Errorf("protocol: string field of %d bytes exceeds %d", len(s), math.MaxUint16)
		}
		return
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// blob writes a uint32 length prefix followed by the raw bytes.
func (w *fieldWriter) blob(b []byte) {
	if len(b) > MaxPayload {
		if w.err == nil {
			w.err = fmt.Errorf("protocol: blob field of %d bytes exceeds %d", len(b), MaxPayload)
		}
		return
	}
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *fieldWriter) player(p PlayerInfo) {
	w.i32(p.ID)
	w.str(p.Name)
	w.bool(p.Host)
	w.bool(p.Ready)
}

// fieldReader consumes payload fields with a sticky error. After the
// first failure every read returns a zero value, so decode routines
// stay linear and the caller checks once.
type fieldReader struct {
	buf []byte
	off int
	err error
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("protocol: "+format, args...)
	}
}

func (r *fieldReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("field needs %d bytes, %d available", n, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *fieldReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *fieldReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *fieldReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *fieldReader) i32() int32 { return int32(r.u32()) }

func (r *fieldReader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *fieldReader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *fieldReader) bool() bool { return r.u8() != 0 }

func (r *fieldReader) str() string {
	n := int(r.u16())
	b := r.take(n)
	return string(b)
}

// blob returns a copy of the length-prefixed bytes, so the decoded
// message never aliases the read buffer.
func (r *fieldReader) blob() []byte {
	n := int(r.u32())
	if n > MaxPayload {
		r.fail("blob length %d exceeds %d", n, MaxPayload)
		return nil
	}
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *fieldReader) player() PlayerInfo {
	return PlayerInfo{
		ID:    r.i32(),
		Name:  r.str(),
		Host:  r.bool(),
		Ready: r.bool(),
	}
}

func (r *fieldReader) remaining() int { return len(r.buf) - r.off }

// Encode serializes m into one complete frame.
//
// Precondition: m must be non-nil.
// Postcondition: Returns the frame bytes, or an error if a field
// exceeds its length prefix or the payload exceeds MaxPayload.
func Encode(m Message) ([]byte, error) {
	w := &fieldWriter{buf: make([]byte, frameHeaderSize, 64)}

	h := m.header()
	w.i32(h.SenderID)
	w.i64(h.Timestamp)
	m.appendFields(w)
	if w.err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Kind(), w.err)
	}

	payloadLen := len(w.buf) - frameHeaderSize
	if payloadLen > MaxPayload {
		return nil, fmt.Errorf("encoding %s: %w (%d bytes)", m.Kind(), ErrFrameTooLarge, payloadLen)
	}

	binary.BigEndian.PutUint16(w.buf[0:2], uint16(m.Kind()))
	binary.BigEndian.PutUint32(w.buf[2:6], uint32(payloadLen))
	return w.buf, nil
}

// Decode constructs a fresh message from a frame payload. The payload
// must be consumed exactly: declared sub-field lengths that overrun
// the payload, or trailing garbage after the last field, both fail;
// no partial message is ever returned.
//
// Postcondition: Returns a fully populated Message, or ErrUnknownKind
// for kinds outside the enumeration, or a decode error.
func Decode(k Kind, payload []byte) (Message, error) {
	m := newMessage(k)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(k))
	}
	if len(payload) < messageHeaderSize {
		return nil, fmt.Errorf("decoding %s: %w (%d bytes)", k, ErrFrameTooSmall, len(payload))
	}

	r := &fieldReader{buf: payload}
	h := m.header()
	h.SenderID = r.i32()
	h.Timestamp = r.i64()
	m.readFields(r)
	if r.err != nil {
		return nil, fmt.Errorf("decoding %s: %w", k, r.err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("decoding %s: %d trailing bytes", k, r.remaining())
	}
	return m, nil
}

// Frame is one raw wire frame: the kind plus its undecoded payload.
// The relay routes on Kind alone and forwards Payload verbatim.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Decode decodes the frame payload into a typed message.
func (f Frame) Decode() (Message, error) {
	return Decode(f.Kind, f.Payload)
}

// Encode reassembles the full frame bytes for verbatim forwarding.
func (f Frame) Encode() []byte {
	buf := make([]byte, frameHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(f.Kind))
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(f.Payload)))
	copy(buf[frameHeaderSize:], f.Payload)
	return buf
}

// SenderID extracts the sender id from the payload header without a
// full decode.
func (f Frame) SenderID() int32 {
	if len(f.Payload) < 4 {
		return 0
	}
	return int32(binary.BigEndian.Uint32(f.Payload[0:4]))
}

// ToFrame encodes m into a raw frame without the 6-byte envelope,
// for local loopback delivery through the same dispatch path as
// remote frames.
func ToFrame(m Message) (Frame, error) {
	buf, err := Encode(m)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: m.Kind(), Payload: buf[frameHeaderSize:]}, nil
}

// ReadFrame reads exactly one frame from r, validating the declared
// payload length before allocating. A short read, a zero-byte read,
// or an out-of-bounds length is a transport fault: the caller must
// treat the connection as failed.
//
// Postcondition: Returns a Frame whose Payload length equals the
// declared length, or an error.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	kind := Kind(binary.BigEndian.Uint16(hdr[0:2]))
	payloadLen := binary.BigEndian.Uint32(hdr[2:6])

	if payloadLen > MaxPayload {
		return Frame{}, fmt.Errorf("reading frame kind %d: %w (%d bytes)", uint16(kind), ErrFrameTooLarge, payloadLen)
	}
	if payloadLen < messageHeaderSize {
		return Frame{}, fmt.Errorf("reading frame kind %d: %w (%d bytes)", uint16(kind), ErrFrameTooSmall, payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("reading frame kind %d: incomplete payload: %w", uint16(kind), err)
	}
	return Frame{Kind: kind, Payload: payload}, nil
}

// WriteFrame encodes m and writes the frame to w in one call.
func WriteFrame(w io.Writer, m Message) error {
	buf, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
