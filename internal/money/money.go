// Package money represents monetary amounts as a fixed-point integer count of
// minor units rather than a float, following the smallest-unit convention the
// rest of the stack already uses for balance arithmetic.
package money

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// UnitsPerUSD is the number of minor units in one US dollar. The ledger,
// Earning, Withdrawal, and balance fields all store amounts in these units so
// settlement arithmetic never touches a float.
const UnitsPerUSD int64 = 100_000_000

// Amount is a signed count of minor units (1 / 100,000,000 USD).
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// FromUSD builds an Amount from a whole-and-fractional dollar value supplied
// as a decimal string, e.g. "0.25" or "-1.2".
func FromUSD(decimal string) (Amount, error) {
	r, ok := new(big.Rat).SetString(decimal)
	if !ok {
		return 0, fmt.Errorf("money: invalid decimal %q", decimal)
	}
	r.Mul(r, big.NewRat(UnitsPerUSD, 1))
	if !r.IsInt() {
		// Round to nearest minor unit rather than reject sub-unit precision.
		num := new(big.Int).Abs(r.Num())
		den := r.Denom()
		half := new(big.Int).Rsh(den, 1)
		num.Add(num, half)
		q := new(big.Int).Quo(num, den)
		if r.Sign() < 0 {
			q.Neg(q)
		}
		return Amount(q.Int64()), nil
	}
	return Amount(r.Num().Int64()), nil
}

// MustFromUSD is FromUSD for literals known at compile time to be valid.
func MustFromUSD(decimal string) Amount {
	a, err := FromUSD(decimal)
	if err != nil {
		panic(err)
	}
	return a
}

// FromFloat converts a float64 dollar amount, for interop with results JSON
// payloads that report cost as a number. Prefer FromUSD wherever the source
// is textual.
func FromFloat(usd float64) Amount {
	return Amount(int64(usd*float64(UnitsPerUSD) + signOf(usd)*0.5))
}

func signOf(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// Mul scales an Amount by a ratio expressed as a decimal string (e.g. the
// requestor margin ratio "1.20"), rounding to the nearest minor unit.
func (a Amount) Mul(ratio string) (Amount, error) {
	r, ok := new(big.Rat).SetString(ratio)
	if !ok {
		return 0, fmt.Errorf("money: invalid ratio %q", ratio)
	}
	r.Mul(r, big.NewRat(int64(a), 1))
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	neg := num.Sign() < 0
	if neg {
		num.Neg(num)
	}
	half := new(big.Int).Rsh(den, 1)
	num.Add(num, half)
	q := new(big.Int).Quo(num, den)
	out := q.Int64()
	if neg {
		out = -out
	}
	return Amount(out), nil
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// Neg returns -a.
func (a Amount) Neg() Amount { return -a }

// IsZero reports whether a is exactly zero.
func (a Amount) IsZero() bool { return a == 0 }

// String renders the amount as a fixed-point decimal dollar string.
func (a Amount) String() string {
	neg := a < 0
	v := int64(a)
	if neg {
		v = -v
	}
	whole := v / UnitsPerUSD
	frac := v % UnitsPerUSD
	s := fmt.Sprintf("%d.%08d", whole, frac)
	if neg {
		s = "-" + s
	}
	return s
}

// MarshalJSON encodes the amount as a decimal string, never a JSON number,
// so no consumer round-trips it through a float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a plain JSON number, the
// latter for interop with external results payloads that emit costUsd as a
// number rather than a string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := FromUSD(s)
		if err != nil {
			return err
		}
		*a = v
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("money: cannot unmarshal %s", data)
	}
	*a = FromFloat(f)
	return nil
}
