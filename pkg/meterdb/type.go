package meterdb

// MeterDbSnapshot is one decoded batch as stored.
type MeterDbSnapshot struct {
	ID         int64  `db:"id" json:"id"`
	Timestamp  int64  `db:"timestamp" json:"timestamp"`
	Mode       string `db:"mode" json:"mode"`
	EntryCount int    `db:"entry_count" json:"entry_count"`
}

// MeterDbReading is one OBIS entry of a snapshot. Value is nil for text entries.
type MeterDbReading struct {
	SnapshotID int64    `db:"snapshot_id" json:"snapshot_id"`
	Timestamp  int64    `db:"timestamp" json:"timestamp"`
	Obis       string   `db:"obis" json:"obis"`
	Value      *float64 `db:"value" json:"value"`
	TextValue  *string  `db:"text_value" json:"text_value"`
	Unit       string   `db:"unit" json:"unit"`
	Scaler     int8     `db:"scaler" json:"scaler"`
	Status     *int64   `db:"status" json:"status"`
}
