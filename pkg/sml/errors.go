package sml

import (
	"errors"
	"fmt"
)

var (
	ErrIncompleteFrame = errors.New("sml: no complete frame in payload")
	ErrStructure       = errors.New("sml: unexpected frame structure")
	ErrTruncated       = errors.New("sml: element truncated")
)

// CrcError reports a recovered frame whose transport checksum does not match.
type CrcError struct {
	Expected uint16
	Actual   uint16
}

func (e *CrcError) Error() string {
	return fmt.Sprintf("sml: crc mismatch, frame says %04x, computed %04x", e.Expected, e.Actual)
}

func structuref(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}
