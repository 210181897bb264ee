package bridge

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var plaintextTelegram = []byte("/EBZ5DD3BZ06ETA_107\r\n1-0:1.8.0*255(000125.85826871*kWh)\r\n1-0:16.7.0*255(000123.45*W)\r\n!\r\n")

func TestDetectComMode(t *testing.T) {
	tests := []struct {
		name      string
		params    string
		data      []byte
		want      CommunicationMode
		wantErr   error
		dataCalls int
	}{
		{
			name:      "sml reported",
			params:    `[{"param_id":27,"name":"meter_mode","size":1,"type":"uint8","value":[3]}]`,
			want:      ModeSML,
			dataCalls: 0,
		},
		{
			name:      "matched by name",
			params:    `[{"param_id":12,"value":[1]},{"name":"meter_mode","value":[3]}]`,
			want:      ModeSML,
			dataCalls: 0,
		},
		{
			name:      "no params, plaintext probe wins",
			data:      plaintextTelegram,
			want:      ModePlaintext,
			dataCalls: 1,
		},
		{
			name:      "unknown value, sml probe after plaintext",
			params:    `[{"param_id":27,"value":[42]}]`,
			data:      meterFrame,
			want:      ModeSML,
			dataCalls: 2,
		},
		{
			name:      "auto scan tries sml first",
			params:    `[{"param_id":27,"value":[0]}]`,
			data:      meterFrame,
			want:      ModeSML,
			dataCalls: 1,
		},
		{
			name:      "auto scan falls back to plaintext",
			params:    `[{"param_id":27,"value":[0]}]`,
			data:      plaintextTelegram,
			want:      ModePlaintext,
			dataCalls: 2,
		},
		{
			name:      "iec is probed as plaintext",
			params:    `[{"param_id":27,"value":[1]}]`,
			data:      plaintextTelegram,
			want:      ModePlaintext,
			dataCalls: 1,
		},
		{
			name:      "impressions not implemented",
			params:    `[{"param_id":27,"value":[10]}]`,
			want:      ModeImpressionsAmbient,
			wantErr:   ErrModeNotImplemented,
			dataCalls: 0,
		},
		{
			name:      "nothing decodes",
			params:    `not json`,
			data:      []byte("garbage"),
			want:      ModeUnknown,
			wantErr:   ErrModeNotImplemented,
			dataCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBridge(t)
			fb.params = tt.params
			if tt.data != nil {
				fb.data = always(http.StatusOK, tt.data)
			}
			b, rec := newTestBridge(t, fb, ModeUnknown)

			mode, err := b.DetectComMode(context.Background())
			assert.Equal(t, tt.want, mode)
			assert.Equal(t, tt.dataCalls, fb.calls())
			assert.Empty(t, rec.delays, "probes are not retried")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, ModeUnknown, b.Mode())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Mode())
		})
	}
}
