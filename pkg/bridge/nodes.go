package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type nodeInfo struct {
	NodeID json.RawMessage `json:"node_id"`
	EUI    string          `json:"eui"`
}

func (n nodeInfo) id() (int, bool) {
	raw := strings.Trim(string(n.NodeID), `"`)
	id, err := strconv.Atoi(raw)
	return id, err == nil
}

// ResolveNodeDeviceID looks up the EUI of the configured node in nodes.json.
// Streamed frames from other devices on the same bridge are dropped afterwards.
func (b *Bridge) ResolveNodeDeviceID(ctx context.Context) (string, error) {
	body, err := b.get(ctx, "/nodes.json", nil)
	if err != nil {
		return "", err
	}
	var nodes []nodeInfo
	if err := json.Unmarshal(body, &nodes); err != nil {
		return "", fmt.Errorf("%w: nodes.json: %v", ErrTransport, err)
	}
	for _, node := range nodes {
		if id, ok := node.id(); ok && id == b.opts.NodeNumber {
			eui := strings.ToLower(node.EUI)
			b.modeMu.Lock()
			b.nodeDeviceID = eui
			b.modeMu.Unlock()
			b.log.Debug("resolved node device id", zap.Int("node", id), zap.String("eui", eui))
			return eui, nil
		}
	}
	return "", fmt.Errorf("node %d not listed by bridge", b.opts.NodeNumber)
}
