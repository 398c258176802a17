// Package store persists the two bill-entry lists and the participant roster.
//
// Every mutation bumps a revision counter. A State returned by Snapshot is a
// consistent copy of both lists at one revision, which is what the ledger
// pipeline consumes.
package store

import (
	"context"
	"errors"

	"billbuddy/internal/core"
)

// Fixed identifiers the persisted lists are keyed by.
const (
	KeyEqualEntries    = "billItems"
	KeyItemizedEntries = "itemizedBillItems"
	KeyParticipants    = "allPeople"
)

var (
	ErrNotFound       = errors.New("entry not found")
	ErrDuplicateID    = errors.New("entry id already exists")
	ErrAlreadySharing = errors.New("person already shares this entry")
)

// State is a consistent copy of everything the store holds.
type State struct {
	Equal    []core.EqualSplitEntry    `json:"billItems"`
	Itemized []core.ItemizedSplitEntry `json:"itemizedBillItems"`
	People   []string                  `json:"allPeople"`
	Revision int64                     `json:"revision"`
}

// Store is implemented by every persistence backend. Mutations return the
// revision they produced.
type Store interface {
	Snapshot(ctx context.Context) (State, error)
	Participants(ctx context.Context) ([]string, error)

	AddEqual(ctx context.Context, e core.EqualSplitEntry) (int64, error)
	AddItemized(ctx context.Context, e core.ItemizedSplitEntry) (int64, error)
	DeleteEqual(ctx context.Context, id string) (int64, error)
	DeleteItemized(ctx context.Context, id string) (int64, error)

	// AddSharer appends name to an equal-split entry's sharers and to the
	// roster. It fails with ErrAlreadySharing when name is the payer or is
	// already listed.
	AddSharer(ctx context.Context, entryID, name string) (int64, error)
	// RemoveSharer drops every occurrence of name from the entry's sharers.
	// The roster is left untouched.
	RemoveSharer(ctx context.Context, entryID, name string) (int64, error)

	Close() error
}

// MergePeople appends names not yet present in roster, keeping first-seen
// order.
func MergePeople(roster []string, names ...string) []string {
	seen := make(map[string]struct{}, len(roster))
	for _, n := range roster {
		seen[n] = struct{}{}
	}
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		roster = append(roster, n)
	}
	return roster
}

// CanShare reports whether name may be added to e's sharers.
func CanShare(e core.EqualSplitEntry, name string) bool {
	if name == e.Payer {
		return false
	}
	for _, s := range e.SharedWith {
		if s == name {
			return false
		}
	}
	return true
}

// WithoutName returns names with every occurrence of name removed.
func WithoutName(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
