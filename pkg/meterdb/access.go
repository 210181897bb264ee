package meterdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
	"go.uber.org/zap"
)

// Record stores every entry of snap under one snapshot row. Empty snapshots are skipped.
func (r *Recorder) Record(ctx context.Context, mode string, snap *obis.Snapshot) error {
	if snap.Len() == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (timestamp, mode, entry_count) VALUES (?, ?, ?)",
		snap.DecodedAt().Unix(),
		mode,
		snap.Len(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	snapshotID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO readings (snapshot_id, obis, value, text_value, unit, scaler, status) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range snap.Entries() {
		var value, text, status any
		if f, ok := entry.Value.Float(); ok {
			value = f
		} else {
			text = entry.Value.String()
		}
		if entry.Status != nil {
			status = int64(*entry.Status)
		}
		if _, err := stmt.ExecContext(ctx,
			snapshotID,
			entry.Code.String(),
			value,
			text,
			entry.Unit.Name(),
			entry.Scaler,
			status,
		); err != nil {
			return fmt.Errorf("insert reading %s: %w", entry.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.log.Debug("snapshot recorded", zap.Int64("id", snapshotID), zap.Int("entries", snap.Len()))
	return nil
}

// LatestSnapshot returns the newest snapshot row, or nil when nothing was recorded.
func (r *Recorder) LatestSnapshot(ctx context.Context) (*MeterDbSnapshot, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, timestamp, mode, entry_count FROM snapshots ORDER BY id DESC LIMIT 1")
	var snap MeterDbSnapshot
	err := row.Scan(&snap.ID, &snap.Timestamp, &snap.Mode, &snap.EntryCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// History returns the readings of code recorded at or after since, oldest first.
func (r *Recorder) History(ctx context.Context, code obis.Code, since time.Time) ([]MeterDbReading, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT r.snapshot_id, s.timestamp, r.obis, r.value, r.text_value, r.unit, r.scaler, r.status "+
			"FROM readings r JOIN snapshots s ON s.id = r.snapshot_id "+
			"WHERE r.obis = ? AND s.timestamp >= ? ORDER BY s.id",
		code.String(),
		since.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeterDbReading
	for rows.Next() {
		var reading MeterDbReading
		if err := rows.Scan(
			&reading.SnapshotID,
			&reading.Timestamp,
			&reading.Obis,
			&reading.Value,
			&reading.TextValue,
			&reading.Unit,
			&reading.Scaler,
			&reading.Status,
		); err != nil {
			return nil, err
		}
		out = append(out, reading)
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than before and returns how many went.
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM readings WHERE snapshot_id IN (SELECT id FROM snapshots WHERE timestamp < ?)",
		before.Unix(),
	); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE timestamp < ?", before.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
