// Package docstore defines the document store that holds room documents.
//
// A store keeps one opaque document per id, runs optimistic read-modify-write
// transactions against a single document and pushes snapshots of a document
// to subscribers whenever it is written.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAbort may be returned by a TxFunc to finish the transaction without writing.
	ErrAbort = errors.New("transaction aborted")
	// ErrConflict is returned when a transaction lost every retry to concurrent writers.
	ErrConflict = errors.New("transaction conflict")
)

// DefaultMaxAttempts bounds how often a conflicting transaction body is re-run.
const DefaultMaxAttempts = 25

// TxFunc computes the next document from the current one. It may run more than
// once against newer snapshots and must not have side effects.
type TxFunc func(current []byte) ([]byte, error)

// Change is one notification delivered to a subscriber. Exists is false when
// the document is absent. Err reports a subscription failure.
type Change struct {
	Doc    []byte
	Exists bool
	Err    error
}

// Store is implemented by every backend.
type Store interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	// Set writes the document unconditionally.
	Set(ctx context.Context, id string, doc []byte) error
	// RunTransaction reads the document, applies fn and writes the result
	// atomically, retrying fn on conflicting writes. It returns ErrNotFound
	// without calling fn when the document is absent. When fn returns ErrAbort
	// nothing is written and RunTransaction returns nil.
	RunTransaction(ctx context.Context, id string, fn TxFunc) error
	// Subscribe delivers the current document followed by one Change per write.
	// Rapid writes may be coalesced. The channel is closed once ctx is done.
	Subscribe(ctx context.Context, id string) (<-chan Change, error)
}

// Apply runs fn and sorts its result into a write decision. write is false when
// fn aborted.
func Apply(fn TxFunc, current []byte) (next []byte, write bool, err error) {
	next, err = fn(current)
	if errors.Is(err, ErrAbort) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// Offer sends c on ch without blocking. When ch is full the oldest pending
// change is dropped, which keeps the newest snapshot for slow subscribers.
func Offer(ch chan Change, c Change) {
	for {
		select {
		case ch <- c:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
