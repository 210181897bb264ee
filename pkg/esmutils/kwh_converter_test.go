package esmutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKiloToBase(t *testing.T) {
	assert.Equal(t, 500.0, KiloToBase(0.5))
	assert.Equal(t, -1500.0, KiloToBase(-1.5))
	assert.Equal(t, 0.5, BaseToKilo(500))
}

func TestApplyScaler(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		scaler   int8
		expected float64
	}{
		{name: "no scaler", value: 511, scaler: 0, expected: 511},
		{name: "tenths", value: 2390, scaler: -1, expected: 239},
		{name: "hundredths", value: 215, scaler: -2, expected: 2.15},
		{name: "positive", value: 12, scaler: 3, expected: 12000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ApplyScaler(tt.value, tt.scaler), 1e-9)
		})
	}
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 123.45, RoundTo(123.4500000001, 3))
	assert.Equal(t, 2.0, RoundTo(1.99999, 2))
}
