package obis

import (
	"encoding/json"
	"sync"
	"time"
)

// Snapshot is one decoded batch. Both indexes are built from the same entries
// and never change after construction.
type Snapshot struct {
	byCode    map[Code]Entry
	byShort   map[string]Entry
	order     []Code
	decodedAt time.Time
}

func newSnapshot(entries []Entry, at time.Time) *Snapshot {
	snap := &Snapshot{
		byCode:    make(map[Code]Entry, len(entries)),
		byShort:   make(map[string]Entry, len(entries)),
		decodedAt: at,
	}
	for _, entry := range entries {
		if _, seen := snap.byCode[entry.Code]; !seen {
			snap.order = append(snap.order, entry.Code)
		}
		snap.byCode[entry.Code] = entry
		// last writer wins on short code collisions
		snap.byShort[entry.Code.Short()] = entry
	}
	return snap
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byCode)
}

func (s *Snapshot) DecodedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.decodedAt
}

func (s *Snapshot) Get(code Code) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	entry, ok := s.byCode[code]
	return entry, ok
}

func (s *Snapshot) GetShort(short string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	entry, ok := s.byShort[short]
	return entry, ok
}

// Entries returns the entries in wire order.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, s.byCode[code])
	}
	return out
}

// ShortList renders every entry for debug logging.
func (s *Snapshot) ShortList() []string {
	entries := s.Entries()
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.ShortString())
	}
	return out
}

type jsonEntry struct {
	Obis     string   `json:"obis"`
	Value    any      `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	UnitCode uint8    `json:"unit_code,omitempty"`
	Scaler   int8     `json:"scaler"`
	Scaled   *float64 `json:"scaled,omitempty"`
	Status   *uint64  `json:"status,omitempty"`
}

type jsonSnapshot struct {
	Timestamp string               `json:"timestamp"`
	Entries   map[string]jsonEntry `json:"entries"`
}

// ToJsonBytes serializes the snapshot for API clients, keyed by hex code.
func (s *Snapshot) ToJsonBytes() []byte {
	out := jsonSnapshot{
		Timestamp: s.DecodedAt().Format(time.RFC3339),
		Entries:   make(map[string]jsonEntry, s.Len()),
	}
	for _, entry := range s.Entries() {
		je := jsonEntry{
			Obis:     entry.Code.Format(),
			Unit:     entry.Unit.Name(),
			UnitCode: uint8(entry.Unit),
			Scaler:   entry.Scaler,
			Status:   entry.Status,
		}
		if f, ok := entry.Value.Float(); ok {
			je.Value = f
			scaled, _ := entry.Scaled(1)
			je.Scaled = &scaled
		} else {
			je.Value = entry.Value.String()
		}
		out.Entries[entry.Code.String()] = je
	}
	data, err := json.Marshal(out)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// Store is the value store every decoder populates. It only ever swaps whole
// snapshots, so readers never observe a partially written batch.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{snap: newSnapshot(nil, time.Time{}), now: time.Now}
}

// ReplaceAll swaps in a snapshot built from entries. An empty batch is a
// decode failure, not "no data": the previous snapshot stays and false is returned.
func (s *Store) ReplaceAll(entries []Entry) bool {
	if len(entries) == 0 {
		return false
	}
	snap := newSnapshot(entries, s.now())
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return true
}

// Snapshot returns the current batch; callers may keep it, it never mutates.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Store) Len() int {
	return s.Snapshot().Len()
}

func (s *Store) Get(code Code) (Entry, bool) {
	return s.Snapshot().Get(code)
}

func (s *Store) GetShort(short string) (Entry, bool) {
	return s.Snapshot().GetShort(short)
}

// GetScaled returns the scaled value of the first present code. Vendors disagree
// on which variant of a reading they emit, so callers pass alias lists.
func (s *Store) GetScaled(divisor float64, codes ...Code) (float64, bool) {
	snap := s.Snapshot()
	for _, code := range codes {
		if entry, ok := snap.Get(code); ok {
			return entry.Scaled(divisor)
		}
	}
	return 0, false
}

// GetRaw returns the unscaled value as string, used for text entries.
func (s *Store) GetRaw(code Code) (string, bool) {
	entry, ok := s.Get(code)
	if !ok {
		return "", false
	}
	return entry.Value.String(), true
}
