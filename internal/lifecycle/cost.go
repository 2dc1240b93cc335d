package lifecycle

import (
	"github.com/tidwall/gjson"

	"github.com/meshcompute/inference-marketplace/internal/money"
)

// parseCost converts the results JSON's metrics.costUsd field to a
// money.Amount. The field is typically a JSON number; gjson.Result.Raw
// preserves its original decimal text so we parse it as a decimal rather
// than round-tripping through float64, falling back to a float cast only
// when the raw text does not parse as a decimal.
func parseCost(r gjson.Result) (money.Amount, error) {
	if r.Type == gjson.String {
		return money.FromUSD(r.String())
	}
	if a, err := money.FromUSD(r.Raw); err == nil {
		return a, nil
	}
	return money.FromFloat(r.Float()), nil
}
