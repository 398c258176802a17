package core

import (
	"math"
	"sort"
)

// Epsilon is the smallest balance the solver treats as non-zero. Transfers at
// or below it are floating-point dust and are never emitted.
const Epsilon = 0.01

// Settle returns the transfers that bring every balance in the ledger to zero.
func Settle(l *Ledger) []Settlement {
	return SettleBalances(l.Balances())
}

// SettleBalances matches debtors to creditors greedily, largest first.
//
// Creditors are walked in descending order of balance and debtors from the
// most negative up. Each step transfers the smaller of the two outstanding
// amounts. People with equal balances keep their input order. The result is
// deterministic but not guaranteed to use the fewest possible transfers.
func SettleBalances(balances []Balance) []Settlement {
	var creditors, debtors []Balance
	for _, b := range balances {
		switch {
		case math.IsNaN(b.Amount) || math.IsInf(b.Amount, 0):
			// Unsettleable; validated entries never produce these.
			continue
		case b.Amount > 0:
			creditors = append(creditors, b)
		case b.Amount < 0:
			debtors = append(debtors, b)
		}
	}
	sort.SliceStable(creditors, func(a, b int) bool { return creditors[a].Amount > creditors[b].Amount })
	sort.SliceStable(debtors, func(a, b int) bool { return debtors[a].Amount < debtors[b].Amount })

	settlements := []Settlement{}
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		c, d := &creditors[i], &debtors[j]

		amount := math.Min(c.Amount, math.Abs(d.Amount))
		if amount > Epsilon {
			settlements = append(settlements, Settlement{From: d.Name, To: c.Name, Amount: amount})
		}

		c.Amount -= amount
		d.Amount += amount

		if c.Amount < Epsilon {
			i++
		}
		if math.Abs(d.Amount) < Epsilon {
			j++
		}
	}

	return settlements
}
