package sml

import (
	"fmt"
)

type kind uint8

const (
	kindOctets kind = iota
	kindBool
	kindInt
	kindUint
	kindList
	kindOptional
	kindEndOfMsg
)

func (k kind) String() string {
	switch k {
	case kindOctets:
		return "octet string"
	case kindBool:
		return "boolean"
	case kindInt:
		return "integer"
	case kindUint:
		return "unsigned"
	case kindList:
		return "list"
	case kindOptional:
		return "optional"
	case kindEndOfMsg:
		return "end of message"
	}
	return "unknown"
}

// element is one decoded TLV node.
type element struct {
	kind   kind
	octets []byte
	b      bool
	i      int64
	u      uint64
	list   []element
}

// SML type-length fields carry at most 16 bits of length, one nibble per byte.
const (
	maxTLBytes = 4
	maxDepth   = 16
)

type elementReader struct {
	buf   []byte
	pos   int
	depth int
}

func (r *elementReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *elementReader) next() (element, error) {
	if r.remaining() < 1 {
		return element{}, ErrTruncated
	}
	start := r.pos
	first := r.buf[r.pos]
	r.pos++
	if first == 0x00 {
		return element{kind: kindEndOfMsg}, nil
	}

	typ := first & 0x70
	length := int(first & 0x0f)
	tlLen := 1
	for b := first; b&0x80 != 0; {
		if tlLen == maxTLBytes {
			return element{}, fmt.Errorf("sml: type-length field longer than %d bytes at offset %d", maxTLBytes, start)
		}
		if r.remaining() < 1 {
			return element{}, ErrTruncated
		}
		b = r.buf[r.pos]
		r.pos++
		length = length<<4 | int(b&0x0f)
		tlLen++
	}

	if typ == 0x70 {
		// every child takes at least one byte
		if length > r.remaining() {
			return element{}, ErrTruncated
		}
		if r.depth == maxDepth {
			return element{}, fmt.Errorf("sml: lists nested deeper than %d at offset %d", maxDepth, start)
		}
		r.depth++
		defer func() { r.depth-- }()
		var list []element
		for i := 0; i < length; i++ {
			child, err := r.next()
			if err != nil {
				return element{}, err
			}
			list = append(list, child)
		}
		return element{kind: kindList, list: list}, nil
	}

	dataLen := length - tlLen
	if dataLen < 0 {
		return element{}, fmt.Errorf("sml: bad length %d at offset %d", length, start)
	}
	if r.remaining() < dataLen {
		return element{}, ErrTruncated
	}
	data := r.buf[r.pos : r.pos+dataLen]
	r.pos += dataLen

	switch typ {
	case 0x00:
		if dataLen == 0 {
			return element{kind: kindOptional}, nil
		}
		return element{kind: kindOctets, octets: data}, nil
	case 0x40:
		if dataLen != 1 {
			return element{}, fmt.Errorf("sml: boolean of %d bytes at offset %d", dataLen, start)
		}
		return element{kind: kindBool, b: data[0] != 0}, nil
	case 0x50:
		if dataLen == 0 || dataLen > 8 {
			return element{}, fmt.Errorf("sml: integer of %d bytes at offset %d", dataLen, start)
		}
		var v int64
		if data[0]&0x80 != 0 {
			v = -1
		}
		for _, b := range data {
			v = v<<8 | int64(b)
		}
		return element{kind: kindInt, i: v}, nil
	case 0x60:
		if dataLen == 0 || dataLen > 8 {
			return element{}, fmt.Errorf("sml: unsigned of %d bytes at offset %d", dataLen, start)
		}
		var v uint64
		for _, b := range data {
			v = v<<8 | uint64(b)
		}
		return element{kind: kindUint, u: v}, nil
	}
	return element{}, fmt.Errorf("sml: unknown type 0x%02x at offset %d", typ, start)
}

// scalar returns the Go value carried by a non-list element.
func (e element) scalar() any {
	switch e.kind {
	case kindOctets:
		return e.octets
	case kindBool:
		return e.b
	case kindInt:
		return e.i
	case kindUint:
		return e.u
	}
	return nil
}

func (e element) isNumber() bool {
	return e.kind == kindInt || e.kind == kindUint
}

func (e element) asUint() (uint64, bool) {
	switch e.kind {
	case kindUint:
		return e.u, true
	case kindInt:
		if e.i >= 0 {
			return uint64(e.i), true
		}
	}
	return 0, false
}

func (e element) asInt() (int64, bool) {
	switch e.kind {
	case kindInt:
		return e.i, true
	case kindUint:
		return int64(e.u), true
	}
	return 0, false
}
