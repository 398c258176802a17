// Package core folds bill entries into a per-person ledger and computes the
// transfers that settle it.
//
// Everything here is a pure function of its inputs. Callers recompute the
// whole ledger whenever the entry lists change rather than patching an
// earlier result.
package core

// Aggregate builds a fresh ledger from the two entry lists.
//
// People are registered in the order they first appear: equal-split entries
// before itemized ones, the payer of each entry before its sharers or cost
// persons. For an itemized entry the payer is credited with the entry's total
// amount, while owed totals come only from the itemized costs, so the two can
// diverge when the costs do not add up to the total.
func Aggregate(equal []EqualSplitEntry, itemized []ItemizedSplitEntry) *Ledger {
	l := newLedger()

	for _, e := range equal {
		for _, name := range e.People() {
			l.ensure(name)
		}
	}
	for _, e := range itemized {
		for _, name := range e.People() {
			l.ensure(name)
		}
	}

	for _, e := range equal {
		// shares is at least 1, the payer always holds a share.
		shares := float64(len(e.SharedWith) + 1)
		perPerson := e.Amount / shares

		payer := l.records[e.Payer]
		payer.TotalPaid += e.Amount
		payer.TotalOwed += perPerson
		payer.Transactions = append(payer.Transactions, Transaction{Label: e.Label, Amount: e.Amount, Kind: KindPaid})

		for _, name := range e.SharedWith {
			rec := l.records[name]
			rec.TotalOwed += perPerson
			rec.Transactions = append(rec.Transactions, Transaction{Label: e.Label, Amount: perPerson, Kind: KindOwes})
		}
	}

	for _, e := range itemized {
		payer := l.records[e.Payer]
		payer.TotalPaid += e.Amount
		payer.Transactions = append(payer.Transactions, Transaction{Label: e.Label, Amount: e.Amount, Kind: KindPaid})

		for _, c := range e.Costs {
			rec := l.records[c.Person]
			rec.TotalOwed += c.Cost
			rec.Transactions = append(rec.Transactions, Transaction{Label: c.Label, Amount: c.Cost, Kind: KindOwes})
		}
	}

	return l
}
