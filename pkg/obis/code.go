// Package obis holds the keyed measurement model shared by every wire decoder:
// OBIS identifiers, decoded entries and the snapshot store readers consume.
package obis

import (
	"encoding/hex"
	"fmt"
)

// Code is a 6 byte OBIS identifier (A-B:C.D.E*F).
type Code [6]byte

// FromFields builds a code from the six integer groups of a plaintext line.
func FromFields(a, b, c, d, e, f int) (Code, error) {
	var code Code
	for i, v := range [6]int{a, b, c, d, e, f} {
		if v < 0 || v > 0xff {
			return Code{}, fmt.Errorf("obis group %d out of range: %d", i, v)
		}
		code[i] = byte(v)
	}
	return code, nil
}

// FromBytes copies an already encoded identifier as delivered by the SML codec.
func FromBytes(raw []byte) (Code, error) {
	var code Code
	if len(raw) != len(code) {
		return Code{}, fmt.Errorf("obis code must be 6 bytes, got %d", len(raw))
	}
	copy(code[:], raw)
	return code, nil
}

func ParseHex(s string) (Code, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Code{}, fmt.Errorf("invalid obis hex %q: %w", s, err)
	}
	return FromBytes(raw)
}

// MustParseHex is for literals only.
func MustParseHex(s string) Code {
	code, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return code
}

// String renders the 12 lowercase hex characters used as lookup key.
func (c Code) String() string {
	return hex.EncodeToString(c[:])
}

func (c Code) Format() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", c[0], c[1], c[2], c[3], c[4], c[5])
}

// Short is the C.D.E secondary key.
func (c Code) Short() string {
	return fmt.Sprintf("%d.%d.%d", c[2], c[3], c[4])
}

func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Code) UnmarshalText(text []byte) error {
	code, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}
