package extract

import (
	"encoding/json"
	"strings"

	"billbuddy/internal/core"

	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromFloat(core.MaxAmount)

type rawCost struct {
	Person string          `json:"person"`
	Item   string          `json:"item"`
	Cost   decimal.Decimal `json:"cost"`
}

type rawDraft struct {
	Item          string              `json:"item"`
	Amount        decimal.NullDecimal `json:"amount"`
	PaidBy        string              `json:"paidBy"`
	SharedWith    []string            `json:"sharedWith"`
	IsEqualSplit  *bool               `json:"isEqualSplit"`
	ItemizedCosts []rawCost           `json:"itemizedCosts"`
}

// ParseDraft reads the model's reply. The reply may wrap the JSON object in
// prose or markdown fences; everything from the first '{' to the last '}' is
// decoded. Amounts may be JSON numbers or numeric strings.
func ParseDraft(text string, mode Mode) (Draft, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Draft{}, newError(KindParse, "no JSON object in response")
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Draft{}, newError(KindParse, "decode response: %w", err)
	}

	if strings.TrimSpace(raw.Item) == "" {
		return Draft{}, newError(KindValidation, "missing item")
	}
	if !raw.Amount.Valid || raw.Amount.Decimal.IsZero() {
		return Draft{}, newError(KindValidation, "missing amount")
	}
	if !raw.Amount.Decimal.IsPositive() || raw.Amount.Decimal.GreaterThan(maxAmount) {
		return Draft{}, newError(KindValidation, "amount %s out of range", raw.Amount.Decimal)
	}
	if strings.TrimSpace(raw.PaidBy) == "" {
		return Draft{}, newError(KindValidation, "missing paidBy")
	}

	d := Draft{
		Mode:       mode,
		Label:      raw.Item,
		Amount:     raw.Amount.Decimal.InexactFloat64(),
		Payer:      raw.PaidBy,
		SharedWith: []string{},
		Costs:      []core.ItemizedCost{},
		EqualSplit: raw.IsEqualSplit == nil || *raw.IsEqualSplit,
	}
	if raw.SharedWith != nil {
		d.SharedWith = raw.SharedWith
	}
	for _, c := range raw.ItemizedCosts {
		if c.Cost.IsNegative() || c.Cost.GreaterThan(maxAmount) {
			return Draft{}, newError(KindValidation, "cost %s for %q out of range", c.Cost, c.Person)
		}
		d.Costs = append(d.Costs, core.ItemizedCost{
			Person: c.Person,
			Label:  c.Item,
			Cost:   c.Cost.InexactFloat64(),
		})
	}
	return d, nil
}
