package core

import (
	"errors"
	"math"
	"strings"
)

// MaxAmount bounds a single entry amount or itemized cost. Far below the
// range where summing many entries could overflow float64.
const MaxAmount = 1e12

const (
	KindPaid TransactionKind = "paid"
	KindOwes TransactionKind = "owes"
)

type (
	TransactionKind string

	// EqualSplitEntry is a bill line divided evenly between the payer and
	// every co-sharer.
	EqualSplitEntry struct {
		ID         string   `json:"id"`
		Label      string   `json:"item"`
		Amount     float64  `json:"amount"`
		Payer      string   `json:"paidBy"`
		SharedWith []string `json:"sharedWith"`
	}

	// ItemizedCost attributes one sub-item of an itemized entry to a person.
	ItemizedCost struct {
		Person string  `json:"person"`
		Label  string  `json:"item"`
		Cost   float64 `json:"cost"`
	}

	// ItemizedSplitEntry is a bill line whose owed amounts come from its
	// itemized costs. The sum of Costs is not required to match Amount.
	ItemizedSplitEntry struct {
		ID     string         `json:"id"`
		Label  string         `json:"item"`
		Amount float64        `json:"amount"`
		Payer  string         `json:"paidBy"`
		Costs  []ItemizedCost `json:"itemizedCosts"`
	}

	Transaction struct {
		Label  string          `json:"item"`
		Amount float64         `json:"amount"`
		Kind   TransactionKind `json:"type"`
	}

	LedgerRecord struct {
		TotalPaid    float64       `json:"totalPaid"`
		TotalOwed    float64       `json:"totalOwed"`
		Transactions []Transaction `json:"transactions"`
	}

	Balance struct {
		Name   string  `json:"name"`
		Amount float64 `json:"balance"`
	}

	Settlement struct {
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidCost   = errors.New("invalid itemized cost")
	ErrEmptyLabel    = errors.New("empty item label")
	ErrEmptyPayer    = errors.New("empty payer")
	ErrEmptyPerson   = errors.New("empty person name")
)

// Net returns paid minus owed. Positive means the person is owed money.
func (r *LedgerRecord) Net() float64 {
	return r.TotalPaid - r.TotalOwed
}

// People returns the payer followed by every co-sharer.
func (e EqualSplitEntry) People() []string {
	return append([]string{e.Payer}, e.SharedWith...)
}

// People returns the payer followed by every itemized-cost person.
func (e ItemizedSplitEntry) People() []string {
	out := make([]string, 0, len(e.Costs)+1)
	out = append(out, e.Payer)
	for _, c := range e.Costs {
		out = append(out, c.Person)
	}
	return out
}

// Validate rejects entries that would produce misleading ledger rows.
// Aggregate never calls it; it runs before entries are stored.
func (e EqualSplitEntry) Validate() error {
	if strings.TrimSpace(e.Label) == "" {
		return ErrEmptyLabel
	}
	if !validAmount(e.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Payer) == "" {
		return ErrEmptyPayer
	}
	for _, name := range e.SharedWith {
		if strings.TrimSpace(name) == "" {
			return ErrEmptyPerson
		}
	}
	return nil
}

func (e ItemizedSplitEntry) Validate() error {
	if strings.TrimSpace(e.Label) == "" {
		return ErrEmptyLabel
	}
	if !validAmount(e.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Payer) == "" {
		return ErrEmptyPayer
	}
	for _, c := range e.Costs {
		if strings.TrimSpace(c.Person) == "" {
			return ErrEmptyPerson
		}
		if math.IsNaN(c.Cost) || c.Cost < 0 || c.Cost > MaxAmount {
			return ErrInvalidCost
		}
	}
	return nil
}

// validAmount accepts finite amounts in (0, MaxAmount]. NaN fails every
// comparison, so it is rejected by the range check.
func validAmount(v float64) bool {
	return v > 0 && v <= MaxAmount
}
