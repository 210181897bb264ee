package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const meterModeParamID = 27

// {"param_id": 27, "name": "meter_mode", "size": 1, "type": "uint8", "value": [3]}
type nodeParam struct {
	ParamID *int   `json:"param_id"`
	Name    string `json:"name"`
	Value   []any  `json:"value"`
}

// DetectComMode asks the node for its meter mode and probes the implemented
// decoders when the answer is missing or ambiguous. On success the bridge
// switches to the detected mode.
func (b *Bridge) DetectComMode(ctx context.Context) (mode CommunicationMode, err error) {
	if !b.pollMu.TryLock() {
		return ModeUnknown, ErrPollInFlight
	}
	defer b.pollMu.Unlock()

	span, ctx := tracer.StartSpanFromContext(ctx, "bridge.detect_mode")
	defer func() {
		span.SetTag("mode", mode.String())
		span.Finish(tracer.WithError(err))
	}()

	mode = b.modeHint(ctx)
	b.log.Debug("meter mode hint", zap.String("mode", mode.String()))

	switch mode {
	case ModeUnknown:
		mode = b.probe(ctx, mode, ModePlaintext, ModeSML)
	case ModeAutoScan:
		mode = b.probe(ctx, mode, ModeSML, ModePlaintext)
	case ModeIEC62056:
		// legacy IEC mode nodes deliver plaintext
		mode = b.probe(ctx, mode, ModePlaintext, ModeSML)
	}

	if !mode.Implemented() {
		return mode, fmt.Errorf("%w: %s", ErrModeNotImplemented, mode)
	}
	b.setMode(mode)
	b.log.Info("communication mode detected", zap.String("mode", mode.String()))
	return mode, nil
}

// modeHint reads the meter_mode node parameter. Failures yield ModeUnknown.
func (b *Bridge) modeHint(ctx context.Context) CommunicationMode {
	body, err := b.get(ctx, "/node_params.json", b.nodeQuery())
	if err != nil {
		b.log.Warn("reading node params failed", zap.Error(err))
		return ModeUnknown
	}
	var params []nodeParam
	if err := json.Unmarshal(body, &params); err != nil {
		b.log.Warn("node params are not a parameter list", zap.Error(err))
		return ModeUnknown
	}
	for _, p := range params {
		if (p.ParamID == nil || *p.ParamID != meterModeParamID) && p.Name != "meter_mode" {
			continue
		}
		if len(p.Value) == 0 {
			return ModeUnknown
		}
		v, ok := p.Value[0].(float64)
		if !ok || v != float64(int(v)) {
			return ModeUnknown
		}
		return modeFromHint(int(v))
	}
	return ModeUnknown
}

// probe tries each candidate once without retries and returns the first that
// stored entries, or current when none did.
func (b *Bridge) probe(ctx context.Context, current CommunicationMode, candidates ...CommunicationMode) CommunicationMode {
	for _, candidate := range candidates {
		err := b.readWithRetry(ctx, decodeAttempt{mode: candidate, logPayload: true}, 0)
		if err == nil {
			return candidate
		}
		b.log.Debug("mode probe failed", zap.String("mode", candidate.String()), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return current
}
