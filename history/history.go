// Package history defines the persistent log of per-block mempool snapshots
// (mempool.Block records) that the pool identifier and tx-rate estimator
// read their training windows from.
package history

import "github.com/bitcoinfees/feesim/mempool"

// HistoryMissingError is returned by Read when no record exists for the
// requested height; callers should log and skip rather than treat this as
// fatal.
type HistoryMissingError struct {
	Height int64
}

func (e HistoryMissingError) Error() string {
	return "history: no MemBlock recorded at height"
}

// DB is the persistent log of per-block mempool snapshots.
type DB interface {
	// Write appends b to the log, then prunes all records with Height below
	// b.Height - retention + 1, in the same transaction.
	Write(b *mempool.Block, retention int64) error

	// Read returns the record at height, or a HistoryMissingError if none
	// exists.
	Read(height int64) (*mempool.Block, error)

	// ListHeights returns all recorded heights in [start, end], ascending.
	ListHeights(start, end int64) ([]int64, error)

	Close() error
}
