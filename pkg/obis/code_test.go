package obis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFields(t *testing.T) {
	code, err := FromFields(1, 0, 1, 8, 0, 255)
	require.NoError(t, err)
	assert.Equal(t, "0100010800ff", code.String())
	assert.Equal(t, "1-0:1.8.0*255", code.Format())
	assert.Equal(t, "1.8.0", code.Short())

	_, err = FromFields(1, 0, 256, 8, 0, 255)
	assert.Error(t, err)
}

func TestFromBytes(t *testing.T) {
	code, err := FromBytes([]byte{0x01, 0x00, 0x10, 0x07, 0x00, 0xff})
	require.NoError(t, err)
	assert.Equal(t, PowerActual, code)

	_, err = FromBytes([]byte{0x01, 0x00})
	assert.Error(t, err)
}

func TestParseHex(t *testing.T) {
	code, err := ParseHex("01004c0700ff")
	require.NoError(t, err)
	assert.Equal(t, "76.7.0", code.Short())

	_, err = ParseHex("zz")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParseHex("0100") })
}

func TestUnits(t *testing.T) {
	u, ok := ResolveUnit("Wh")
	require.True(t, ok)
	assert.Equal(t, UnitWattHour, u)

	u, ok = ResolveUnit("m³")
	require.True(t, ok)
	assert.Equal(t, Unit(13), u)

	_, ok = ResolveUnit("m3")
	assert.False(t, ok)

	assert.Equal(t, "W", UnitWatt.Name())
	assert.Equal(t, "", UnitNone.Name())
}
