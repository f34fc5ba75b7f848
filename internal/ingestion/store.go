package ingestion

import (
	"sync/atomic"
	"time"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// snapshotSet is the atomically-swapped pair the Data Ingestion
// component exclusively owns (§3 ownership). Every other component
// reads through Store's narrow accessors and never sees a partial
// structure mid-publish.
type snapshotSet struct {
	stocks map[string]domain.StockSnapshot
	macro  domain.MacroSnapshot
}

// Store fronts the current stock-snapshot map and macro snapshot with
// atomic pointer swap publication.
type Store struct {
	current atomic.Pointer[snapshotSet]
}

// NewStore returns an empty store with a neutral macro snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&snapshotSet{
		stocks: map[string]domain.StockSnapshot{},
		macro:  domain.NeutralMacroSnapshot(time.Time{}),
	})
	return s
}

// Publish atomically replaces the entire snapshot set. Readers always
// observe either the complete old set or the complete new one.
func (s *Store) Publish(stocks map[string]domain.StockSnapshot, macro domain.MacroSnapshot) {
	s.current.Store(&snapshotSet{stocks: stocks, macro: macro})
}

// Snapshot returns one symbol's stock snapshot, if present.
func (s *Store) Snapshot(symbol string) (domain.StockSnapshot, bool) {
	set := s.current.Load()
	snap, ok := set.stocks[symbol]
	return snap, ok
}

// All returns every currently published stock snapshot.
func (s *Store) All() map[string]domain.StockSnapshot {
	set := s.current.Load()
	out := make(map[string]domain.StockSnapshot, len(set.stocks))
	for k, v := range set.stocks {
		out[k] = v
	}
	return out
}

// Macro returns the current macro snapshot.
func (s *Store) Macro() domain.MacroSnapshot {
	return s.current.Load().macro
}
