package sml

import (
	"bytes"
	"encoding/binary"

	"github.com/sigurn/crc16"
)

var (
	escape     = []byte{0x1b, 0x1b, 0x1b, 0x1b}
	startBlock = []byte{0x01, 0x01, 0x01, 0x01}
	endMarker  = byte(0x1a)
	crcTable   = crc16.MakeTable(crc16.CRC16_X_25)
)

// Frame is one checksum-verified SML transport frame.
type Frame struct {
	raw  []byte
	body []byte
}

// Bytes returns the frame as received, escape sequences included.
func (f *Frame) Bytes() []byte {
	return f.raw
}

// Body returns the unescaped message bytes without padding.
func (f *Frame) Body() []byte {
	return f.body
}

// GetObis returns the value list entries of every GetListResponse. Any message
// that does not follow the 1.04 response layout fails the whole frame with
// ErrStructure.
func (f *Frame) GetObis() ([]ListEntry, error) {
	r := &elementReader{buf: f.body}
	var out []ListEntry
	for r.remaining() > 0 {
		if f.body[r.pos] == 0x00 {
			// fill byte between messages
			r.pos++
			continue
		}
		e, err := r.next()
		if err != nil {
			return nil, structuref("%v", err)
		}
		msg, err := strictMessage(e)
		if err != nil {
			return nil, err
		}
		if res, ok := msg.Body.(*GetListResponse); ok {
			out = append(out, res.ValList...)
		}
	}
	return out, nil
}

// ParseFrame walks the frame and returns every message it can make sense of.
// Elements that cannot be decoded end the walk; what was decoded so far is kept.
func (f *Frame) ParseFrame() ([]Message, error) {
	r := &elementReader{buf: f.body}
	var out []Message
	for r.remaining() > 0 {
		if f.body[r.pos] == 0x00 {
			r.pos++
			continue
		}
		e, err := r.next()
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			break
		}
		if msg, ok := lenientMessage(e); ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// DecodeFrame recovers the first frame in payload. Bytes before the start
// sequence are skipped. It returns ErrIncompleteFrame when no full frame is
// present and a *CrcError when the checksum does not match.
func DecodeFrame(payload []byte) (*Frame, error) {
	frame, _, err := findFrame(payload)
	return frame, err
}

// findFrame also returns the offset just past the consumed bytes.
func findFrame(buf []byte) (*Frame, int, error) {
	start := findStart(buf, 0)
	for start >= 0 {
		frame, end, restart := scanFrame(buf, start)
		switch {
		case frame != nil:
			return frame, end, verify(frame)
		case restart > start:
			start = findStart(buf, restart)
		default:
			return nil, start, ErrIncompleteFrame
		}
	}
	return nil, max(len(buf)-7, 0), ErrIncompleteFrame
}

func findStart(buf []byte, from int) int {
	marker := append(append([]byte{}, escape...), startBlock...)
	idx := bytes.Index(buf[from:], marker)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// scanFrame walks aligned 4 byte blocks after the start sequence. It returns
// the frame when an end sequence is found, or a restart offset when another
// start sequence shows up first.
func scanFrame(buf []byte, start int) (*Frame, int, int) {
	var body []byte
	pos := start + 8
	for pos+4 <= len(buf) {
		block := buf[pos : pos+4]
		if !bytes.Equal(block, escape) {
			body = append(body, block...)
			pos += 4
			continue
		}
		if pos+8 > len(buf) {
			return nil, 0, 0
		}
		next := buf[pos+4 : pos+8]
		switch {
		case bytes.Equal(next, escape):
			body = append(body, escape...)
			pos += 8
		case bytes.Equal(next, startBlock):
			return nil, 0, pos
		case next[0] == endMarker:
			pad := int(next[1])
			if pad > len(body) || pad > 3 {
				// not a real end sequence, resync on the next start
				return nil, 0, pos + 8
			}
			end := pos + 8
			return &Frame{
				raw:  append([]byte{}, buf[start:end]...),
				body: body[:len(body)-pad],
			}, end, 0
		default:
			// unknown escape command
			return nil, 0, pos + 8
		}
	}
	return nil, 0, 0
}

func verify(f *Frame) error {
	n := len(f.raw)
	expected := binary.LittleEndian.Uint16(f.raw[n-2:])
	actual := crc16.Checksum(f.raw[:n-2], crcTable)
	if expected != actual {
		return &CrcError{Expected: expected, Actual: actual}
	}
	return nil
}

// StreamReader accumulates bytes from a serial line or socket and yields frames
// as they complete.
type StreamReader struct {
	buf []byte
}

func NewStreamReader() *StreamReader {
	return &StreamReader{}
}

func (s *StreamReader) Add(data []byte) {
	s.buf = append(s.buf, data...)
}

func (s *StreamReader) Len() int {
	return len(s.buf)
}

func (s *StreamReader) Clear() {
	s.buf = s.buf[:0]
}

// GetFrame returns the next complete frame, consuming its bytes. A frame with a
// bad checksum is consumed too and returned alongside its *CrcError.
// ErrIncompleteFrame means more data is needed.
func (s *StreamReader) GetFrame() (*Frame, error) {
	frame, consumed, err := findFrame(s.buf)
	if frame == nil {
		// keep a possible partial start sequence
		s.buf = append(s.buf[:0], s.buf[consumed:]...)
		return nil, err
	}
	s.buf = append(s.buf[:0], s.buf[consumed:]...)
	return frame, err
}
