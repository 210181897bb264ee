// Package netcheck tells whether the bridge host answers at all, so a dead
// network is not reported as a decode failure.
package netcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

var ErrNoResponse = errors.New("no response")

const defaultTimeout = 2 * time.Second

// Ping sends count echo requests to host. Unprivileged (UDP) mode is used so no
// root is needed. It returns the average round trip.
func Ping(ctx context.Context, host string, count int) (time.Duration, error) {
	pinger, err := probing.NewPinger(hostOnly(host))
	if err != nil {
		return 0, err
	}

	if count < 1 {
		count = 1
	}
	pinger.Count = count
	pinger.Timeout = defaultTimeout * time.Duration(count)
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("ping %s: %w", host, ErrNoResponse)
	}
	return stats.AvgRtt, nil
}

// hostOnly strips a port or scheme from the configured bridge address.
func hostOnly(host string) string {
	host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
	host = strings.TrimSuffix(host, "/")
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
