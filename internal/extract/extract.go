// Package extract turns a spoken bill description into a bill-entry draft.
//
// A Draft is never stored as-is: callers show it for confirmation and then
// submit it as a regular entry.
package extract

import (
	"context"
	"errors"
	"fmt"

	"billbuddy/internal/core"
)

// Mode selects which kind of entry a recording is expected to describe.
type Mode string

const (
	ModeEqual    Mode = "equal"
	ModeItemized Mode = "itemized"
)

var ErrUnknownMode = errors.New("unknown split mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEqual, "":
		return ModeEqual, nil
	case ModeItemized:
		return ModeItemized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Audio is one uploaded recording.
type Audio struct {
	Data     []byte
	MimeType string
}

// Extractor is implemented by every extraction provider.
type Extractor interface {
	Extract(ctx context.Context, audio Audio, mode Mode) (Draft, error)
}

// Draft is an unconfirmed entry as returned by the provider.
type Draft struct {
	Mode       Mode                `json:"mode"`
	Label      string              `json:"item"`
	Amount     float64             `json:"amount"`
	Payer      string              `json:"paidBy"`
	SharedWith []string            `json:"sharedWith"`
	Costs      []core.ItemizedCost `json:"itemizedCosts"`
	EqualSplit bool                `json:"isEqualSplit"`
}

func (d Draft) ToEqual(id string) core.EqualSplitEntry {
	return core.EqualSplitEntry{
		ID:         id,
		Label:      d.Label,
		Amount:     d.Amount,
		Payer:      d.Payer,
		SharedWith: append([]string{}, d.SharedWith...),
	}
}

func (d Draft) ToItemized(id string) core.ItemizedSplitEntry {
	return core.ItemizedSplitEntry{
		ID:     id,
		Label:  d.Label,
		Amount: d.Amount,
		Payer:  d.Payer,
		Costs:  append([]core.ItemizedCost{}, d.Costs...),
	}
}

// Fallback is the placeholder draft shown when a response could not be
// understood.
func Fallback(mode Mode) Draft {
	return Draft{
		Mode:       mode,
		Label:      "Unknown Item",
		Amount:     0,
		Payer:      "Unknown",
		SharedWith: []string{},
		Costs:      []core.ItemizedCost{},
		EqualSplit: true,
	}
}

// Kind classifies extraction failures.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindAPI        Kind = "api"
	KindParse      Kind = "parse"
	KindValidation Kind = "validation"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of an extraction error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
