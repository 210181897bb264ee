package netcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostOnly(t *testing.T) {
	tests := map[string]string{
		"192.168.1.20":        "192.168.1.20",
		"192.168.1.20:8080":   "192.168.1.20",
		"http://tibber-host/": "tibber-host",
		"https://bridge:443":  "bridge",
		"[fe80::1]:80":        "fe80::1",
	}
	for in, want := range tests {
		assert.Equal(t, want, hostOnly(in), in)
	}
}
