package obis

import (
	"strconv"

	"github.com/NotCoffee418/pulse_bridge/pkg/esmutils"
)

// Value is either a number or an opaque string (serials, raw hex blobs).
type Value struct {
	number float64
	text   string
	isText bool
}

func Number(v float64) Value {
	return Value{number: v}
}

func Text(s string) Value {
	return Value{text: s, isText: true}
}

func (v Value) IsText() bool {
	return v.isText
}

// Float returns the numeric value; ok is false for text values.
func (v Value) Float() (float64, bool) {
	if v.isText {
		return 0, false
	}
	return v.number, true
}

func (v Value) String() string {
	if v.isText {
		return v.text
	}
	return strconv.FormatFloat(v.number, 'f', -1, 64)
}

// Entry is one decoded measurement. Unit is UnitNone when the wire carried none
// and a missing scaler is stored as 0.
type Entry struct {
	Code   Code
	Value  Value
	Unit   Unit
	Scaler int8
	Status *uint64
}

// Scaled returns value * 10^scaler / divisor for numeric entries.
func (e Entry) Scaled(divisor float64) (float64, bool) {
	v, ok := e.Value.Float()
	if !ok {
		return 0, false
	}
	if divisor == 0 {
		divisor = 1
	}
	return esmutils.ApplyScaler(v, e.Scaler) / divisor, true
}

// ShortString is the compact form used in debug logs.
func (e Entry) ShortString() string {
	prefix := e.Code.Short() + " (" + e.Code.String() + "): "
	if e.Unit != UnitNone {
		if scaled, ok := e.Scaled(1); ok {
			return prefix + strconv.FormatFloat(scaled, 'f', -1, 64) + e.Unit.Name()
		}
	}
	return prefix + e.Value.String()
}
