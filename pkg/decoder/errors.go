package decoder

import (
	"errors"
)

var (
	// ErrNoEntries means a payload was read but produced nothing to store.
	ErrNoEntries = errors.New("no entries decoded")
	// ErrFrameIntegrity covers truncated frames and checksum mismatches.
	ErrFrameIntegrity = errors.New("frame integrity check failed")
	// ErrStructural is returned when a frame decodes but its layout is not understood.
	ErrStructural = errors.New("unexpected frame structure")
	// ErrSemanticParse marks a single malformed line or value.
	ErrSemanticParse = errors.New("malformed value")
)

// Retryable reports whether a fresh fetch could plausibly succeed where err failed.
func Retryable(err error) bool {
	return errors.Is(err, ErrNoEntries) || errors.Is(err, ErrFrameIntegrity)
}

// Decoder turns one payload into store entries and returns how many were stored.
type Decoder interface {
	Decode(payload []byte) (int, error)
}
