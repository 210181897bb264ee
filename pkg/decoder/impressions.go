package decoder

import (
	"encoding/json"
	"fmt"

	"github.com/NotCoffee418/pulse_bridge/pkg/esmutils"
	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
)

const impressionsType = "imp_data"

// {"$type": "imp_data", "timestamp_ms": 2122625, "delta_ms": 9879, "kw": 0.364409, "kwh": 0.004}
type impressionsPayload struct {
	Type string   `json:"$type"`
	Kw   *float64 `json:"kw"`
	Kwh  *float64 `json:"kwh"`
}

// Impressions decodes the small JSON object that pulse counting reading heads
// report into power and energy entries.
type Impressions struct {
	store *obis.Store
	diag  diagnostics
}

func NewImpressions(store *obis.Store, opts Options) *Impressions {
	return &Impressions{store: store, diag: newDiagnostics(opts)}
}

func (d *Impressions) Decode(payload []byte) (int, error) {
	var data impressionsPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return 0, fmt.Errorf("impressions: %w: %v", ErrSemanticParse, err)
	}

	var entries []obis.Entry
	if data.Type == impressionsType {
		if data.Kw != nil {
			entries = append(entries, obis.Entry{
				Code:  obis.PowerActual,
				Value: obis.Number(esmutils.KiloToBase(*data.Kw)),
				Unit:  obis.UnitWatt,
			})
		}
		if data.Kwh != nil {
			entries = append(entries, obis.Entry{
				Code:  obis.ImportTotal,
				Value: obis.Number(esmutils.KiloToBase(*data.Kwh)),
				Unit:  obis.UnitWattHour,
			})
		}
	}

	if !d.store.ReplaceAll(entries) {
		d.diag.debug("impressions payload carried no readings")
		return 0, fmt.Errorf("impressions: %w", ErrNoEntries)
	}
	return len(entries), nil
}
