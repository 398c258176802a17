package core

import "encoding/json"

// Ledger maps person names to their records and remembers the order in
// which names were first seen. Keys match exactly: "Bob" and "bob" are two
// different people.
type Ledger struct {
	order   []string
	records map[string]*LedgerRecord
}

func newLedger() *Ledger {
	return &Ledger{records: make(map[string]*LedgerRecord)}
}

func (l *Ledger) ensure(name string) *LedgerRecord {
	if rec, ok := l.records[name]; ok {
		return rec
	}
	rec := &LedgerRecord{Transactions: []Transaction{}}
	l.records[name] = rec
	l.order = append(l.order, name)
	return rec
}

// Len returns the number of distinct people in the ledger.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

// Names returns person names in first-seen order.
func (l *Ledger) Names() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.order...)
}

// Get returns the record for name.
func (l *Ledger) Get(name string) (*LedgerRecord, bool) {
	if l == nil {
		return nil, false
	}
	rec, ok := l.records[name]
	return rec, ok
}

// Balances returns paid minus owed for every person, in ledger order.
func (l *Ledger) Balances() []Balance {
	out := make([]Balance, 0, l.Len())
	for _, name := range l.Names() {
		out = append(out, Balance{Name: name, Amount: l.records[name].Net()})
	}
	return out
}

// PersonRecord is a ledger row with its owner's name, used when the ledger
// leaves the process as an ordered list.
type PersonRecord struct {
	Name string `json:"name"`
	LedgerRecord
	NetBalance float64 `json:"netBalance"`
}

// Rows returns the ledger as a list in first-seen order.
func (l *Ledger) Rows() []PersonRecord {
	out := make([]PersonRecord, 0, l.Len())
	for _, name := range l.Names() {
		rec := l.records[name]
		out = append(out, PersonRecord{Name: name, LedgerRecord: *rec, NetBalance: rec.Net()})
	}
	return out
}

// MarshalJSON encodes the ledger as an ordered list so first-seen order
// survives the round trip to clients.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Rows())
}
