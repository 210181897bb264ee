package port_reader

import (
	"io"

	"go.uber.org/zap"
)

// Framing selects how payload boundaries are found on the serial line.
type Framing int

const (
	FramingSML Framing = iota
	FramingPlaintext
)

func (f Framing) String() string {
	if f == FramingPlaintext {
		return "plaintext"
	}
	return "sml"
}

type SerialReader struct {
	port     string
	baudrate uint
	framing  Framing
	log      *zap.Logger

	open      func() (io.ReadWriteCloser, error)
	maxErrors int
}
