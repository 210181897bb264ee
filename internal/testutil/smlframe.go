// Package testutil builds wire payloads for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/sigurn/crc16"
)

// SmlEntry describes one SML_ListEntry. Text, when set, is sent as an octet
// string instead of the integer Value.
type SmlEntry struct {
	Obis   string
	Unit   uint8
	Scaler int8
	Value  int64
	Text   []byte
	Status *uint64
}

// SmlFrame assembles an OpenResponse, a GetListResponse carrying entries and a
// CloseResponse into one transport frame.
func SmlFrame(entries ...SmlEntry) []byte {
	return Frame(SmlMessages(false, entries...))
}

// QuirkySmlFrame carries the same values but closes with a CloseResponse that
// has a trailing vendor field. Strict decoders reject it.
func QuirkySmlFrame(entries ...SmlEntry) []byte {
	return Frame(SmlMessages(true, entries...))
}

// CorruptCrc flips a bit of the frame checksum.
func CorruptCrc(frame []byte) []byte {
	out := append([]byte{}, frame...)
	out[len(out)-1] ^= 0x01
	return out
}

// SmlMessages encodes the unframed message sequence.
func SmlMessages(quirk bool, entries ...SmlEntry) []byte {
	var buf bytes.Buffer
	serverID := []byte{0x0a, 0x01, 0x45, 0x4d, 0x48, 0x00, 0x00, 0x7f, 0x33, 0x21}

	// OpenResponse
	buf.WriteByte(0x76)
	writeOctets(&buf, []byte{0x01})
	buf.Write([]byte{0x62, 0x00, 0x62, 0x00})
	buf.Write([]byte{0x72, 0x63, 0x01, 0x01})
	buf.WriteByte(0x76)
	buf.WriteByte(0x01)
	buf.WriteByte(0x01)
	writeOctets(&buf, []byte{0x01, 0x02, 0x03})
	writeOctets(&buf, serverID)
	buf.WriteByte(0x01)
	buf.WriteByte(0x01)
	buf.Write([]byte{0x63, 0x00, 0x00, 0x00})

	// GetListResponse
	buf.WriteByte(0x76)
	writeOctets(&buf, []byte{0x02})
	buf.Write([]byte{0x62, 0x00, 0x62, 0x00})
	buf.Write([]byte{0x72, 0x63, 0x07, 0x01})
	buf.WriteByte(0x77)
	buf.WriteByte(0x01)
	writeOctets(&buf, serverID)
	buf.WriteByte(0x01)
	buf.Write([]byte{0x72, 0x62, 0x01, 0x65, 0x00, 0x01, 0x02, 0x03})
	writeListHeader(&buf, len(entries))
	for _, e := range entries {
		writeEntry(&buf, e)
	}
	buf.WriteByte(0x01)
	buf.WriteByte(0x01)
	buf.Write([]byte{0x63, 0x00, 0x00, 0x00})

	// CloseResponse
	buf.WriteByte(0x76)
	writeOctets(&buf, []byte{0x03})
	buf.Write([]byte{0x62, 0x00, 0x62, 0x00})
	buf.Write([]byte{0x72, 0x63, 0x02, 0x01})
	if quirk {
		buf.Write([]byte{0x72, 0x01, 0x62, 0x2a})
	} else {
		buf.Write([]byte{0x71, 0x01})
	}
	buf.Write([]byte{0x63, 0x00, 0x00, 0x00})
	return buf.Bytes()
}

// Frame wraps message bytes in SML transport v1 escape sequences, padding
// and a CRC-16/X-25 checksum.
func Frame(messages []byte) []byte {
	pad := (4 - len(messages)%4) % 4
	body := append(append([]byte{}, messages...), make([]byte, pad)...)

	escape := []byte{0x1b, 0x1b, 0x1b, 0x1b}
	var buf bytes.Buffer
	buf.Write(escape)
	buf.Write([]byte{0x01, 0x01, 0x01, 0x01})
	for i := 0; i < len(body); i += 4 {
		block := body[i : i+4]
		buf.Write(block)
		if bytes.Equal(block, escape) {
			buf.Write(escape)
		}
	}
	buf.Write(escape)
	buf.Write([]byte{0x1a, byte(pad)})
	crc := crc16.Checksum(buf.Bytes(), crc16.MakeTable(crc16.CRC16_X_25))
	var tail [2]byte
	binary.LittleEndian.PutUint16(tail[:], crc)
	buf.Write(tail[:])
	return buf.Bytes()
}

func writeEntry(buf *bytes.Buffer, e SmlEntry) {
	code, err := hex.DecodeString(e.Obis)
	if err != nil || len(code) != 6 {
		panic("testutil: bad obis " + e.Obis)
	}
	buf.WriteByte(0x77)
	writeOctets(buf, code)
	if e.Status != nil {
		buf.WriteByte(0x69)
		_ = binary.Write(buf, binary.BigEndian, *e.Status)
	} else {
		buf.WriteByte(0x01)
	}
	buf.WriteByte(0x01)
	if e.Text != nil {
		buf.WriteByte(0x01)
		buf.WriteByte(0x01)
		writeOctets(buf, e.Text)
	} else {
		buf.Write([]byte{0x62, e.Unit})
		buf.Write([]byte{0x52, byte(e.Scaler)})
		buf.WriteByte(0x59)
		_ = binary.Write(buf, binary.BigEndian, e.Value)
	}
	buf.WriteByte(0x01)
}

func writeOctets(buf *bytes.Buffer, data []byte) {
	total := len(data) + 1
	if total <= 0x0f {
		buf.WriteByte(byte(total))
		buf.Write(data)
		return
	}
	total++
	buf.WriteByte(0x80 | byte(total>>4))
	buf.WriteByte(byte(total & 0x0f))
	buf.Write(data)
}

func writeListHeader(buf *bytes.Buffer, n int) {
	if n <= 0x0f {
		buf.WriteByte(0x70 | byte(n))
		return
	}
	buf.WriteByte(0xf0 | byte(n>>4))
	buf.WriteByte(byte(n & 0x0f))
}
