package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
)

func newPlaintext(t *testing.T) (*Plaintext, *obis.Store) {
	t.Helper()
	store := obis.NewStore()
	return NewPlaintext(store, Options{}), store
}

func TestPlaintextKiloConversion(t *testing.T) {
	p, store := newPlaintext(t)

	n, err := p.Decode([]byte("1-0:1.8.0*255(123.45*kWh)\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, ok := store.Get(obis.ImportTotal)
	require.True(t, ok)
	assert.Equal(t, obis.UnitWattHour, entry.Unit)
	scaled, ok := entry.Scaled(1)
	require.True(t, ok)
	assert.InDelta(t, 123450, scaled, 1e-6)
}

func TestPlaintextTelegram(t *testing.T) {
	p, store := newPlaintext(t)
	telegram := "/EBZ5DD3BZ06ETA_107\r\n" +
		"\r\n" +
		"1-0:0.0.0*255(1EBZ0100507409)\r\n" +
		"1-0:96.1.0*255(1EBZ0100507409)\r\n" +
		"1-0:1.8.0*255(000125.85826871*kWh)\r\n" +
		"1-0:16.7.0*255(000000.00*W)\r\n" +
		"1-0:32.7.0*255(232.8*V)\r\n" +
		"1-0:14.7.0*255(49.9*Hz)\r\n" +
		"!\r\n" +
		"1-0:2.8.0*255(000001.0*kWh)\r\n"

	n, err := p.Decode([]byte(telegram))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	raw, ok := store.GetRaw(obis.MustParseHex("0100600100ff"))
	require.True(t, ok)
	assert.Equal(t, "1EBZ0100507409", raw)

	volts, ok := store.GetScaled(1, obis.PotentialL1)
	require.True(t, ok)
	assert.InDelta(t, 232.8, volts, 1e-9)

	_, ok = store.Get(obis.ExportTotal)
	assert.False(t, ok, "lines after ! are ignored")
}

func TestPlaintextSpaceSeparated(t *testing.T) {
	p, store := newPlaintext(t)

	_, err := p.Decode([]byte("1-0:1.8.0*255(10.5*kWh) 1-0:2.8.0*255(2*kWh)"))
	require.NoError(t, err)

	imp, ok := store.GetScaled(1, obis.ImportTotal)
	require.True(t, ok)
	assert.InDelta(t, 10500, imp, 1e-9)
	exp, ok := store.GetScaled(1, obis.ExportTotal)
	require.True(t, ok)
	assert.InDelta(t, 2000, exp, 1e-9)
}

func TestPlaintextHeuristics(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"missing sub index", "1-0:1.8(00123)", "1-0:1.8.0(00123)"},
		{"missing medium group", "1.8.0*255(00123*kWh)", "1-0:1.8.0*255(00123*kWh)"},
		{"complete line untouched", "1-0:1.8.0*255(00123*kWh)", "1-0:1.8.0*255(00123*kWh)"},
		{"header untouched", "/ESY5Q3DA1004 V3.04", "/ESY5Q3DA1004 V3.04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeLine(tt.line))
		})
	}
}

func TestPlaintextMissingSubIndexStillParses(t *testing.T) {
	p, store := newPlaintext(t)

	_, err := p.Decode([]byte("1-0:1.8(00123)\r\n"))
	require.NoError(t, err)

	raw, ok := store.GetRaw(obis.MustParseHex("0100010800ff"))
	require.True(t, ok)
	assert.Equal(t, "00123", raw)
}

func TestPlaintextSkipsBadLines(t *testing.T) {
	p, store := newPlaintext(t)
	payload := "1-0:1.8.x*255(1*kWh)\r\n" +
		"1-0:1.8.0*255(abc*kWh)\r\n" +
		"1-0:1.8.0*999(1*kWh)\r\n" +
		"garbage\r\n" +
		"1-0:16.7.0*255(42*W)\r\n"

	n, err := p.Decode([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestPlaintextEmptyKeepsStore(t *testing.T) {
	p, store := newPlaintext(t)
	_, err := p.Decode([]byte("1-0:16.7.0*255(42*W)\r\n"))
	require.NoError(t, err)
	before := store.Snapshot()

	_, err = p.Decode([]byte("/HEADER\r\n!\r\n"))
	assert.ErrorIs(t, err, ErrNoEntries)
	assert.True(t, Retryable(err))
	assert.Same(t, before, store.Snapshot())
}

func TestPlaintextUnits(t *testing.T) {
	tests := []struct {
		raw   string
		value float64
		unit  obis.Unit
	}{
		{"232.8*V", 232.8, obis.UnitVolt},
		{"1.5*kW", 1500, obis.UnitWatt},
		{"10*A", 10, obis.UnitAmpere},
		{"50*Hz", 50, obis.UnitHertz},
		{"7*furlong", 7, obis.UnitNone},
		{"3*", 3, obis.UnitNone},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			value, unit, err := parseValue(tt.raw)
			require.NoError(t, err)
			f, ok := value.Float()
			require.True(t, ok)
			assert.InDelta(t, tt.value, f, 1e-9)
			assert.Equal(t, tt.unit, unit)
		})
	}
}
