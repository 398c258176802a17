package core

import "github.com/shopspring/decimal"

// Summary holds the headline numbers shown above the per-person breakdown.
type Summary struct {
	TotalAmount      float64 `json:"totalAmount"`
	EntryCount       int     `json:"entryCount"`
	ParticipantCount int     `json:"participantCount"`
}

// Summarize sums every entry amount as-is, counts entries of both kinds and
// takes the participant count from the ledger.
func Summarize(equal []EqualSplitEntry, itemized []ItemizedSplitEntry, l *Ledger) Summary {
	var total float64
	for _, e := range equal {
		total += e.Amount
	}
	for _, e := range itemized {
		total += e.Amount
	}
	return Summary{
		TotalAmount:      total,
		EntryCount:       len(equal) + len(itemized),
		ParticipantCount: l.Len(),
	}
}

// Report is the full output of one pipeline run over a snapshot of entries.
type Report struct {
	Ledger      *Ledger      `json:"ledger"`
	Balances    []Balance    `json:"balances"`
	Settlements []Settlement `json:"settlements"`
	Summary     Summary      `json:"summary"`
}

// BuildReport runs aggregation, settlement and projection over one pair of
// entry lists.
func BuildReport(equal []EqualSplitEntry, itemized []ItemizedSplitEntry) Report {
	l := Aggregate(equal, itemized)
	return Report{
		Ledger:      l,
		Balances:    l.Balances(),
		Settlements: Settle(l),
		Summary:     Summarize(equal, itemized, l),
	}
}

// FormatAmount renders an amount with two decimals, rounding half away from
// zero.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
