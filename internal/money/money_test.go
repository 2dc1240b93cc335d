package money

import "testing"

func TestFromUSD(t *testing.T) {
	a, err := FromUSD("0.25")
	if err != nil {
		t.Fatalf("FromUSD: %v", err)
	}
	if a != 25_000_000 {
		t.Fatalf("got %d, want 25000000", a)
	}
	if a.String() != "0.25000000" {
		t.Fatalf("String() = %q", a.String())
	}
}

func TestMulMargin(t *testing.T) {
	cost := MustFromUSD("0.25")
	debit, err := cost.Mul("1.20")
	if err != nil {
		t.Fatalf("Mul: %v", err)
	}
	if debit != MustFromUSD("0.30") {
		t.Fatalf("got %s, want 0.30", debit)
	}
}

func TestAddSub(t *testing.T) {
	start := MustFromUSD("100")
	after := start.Sub(MustFromUSD("0.30"))
	if after != MustFromUSD("99.70") {
		t.Fatalf("got %s, want 99.70", after)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustFromUSD("1.23")
	b, err := a.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var got Amount
	if err := got.UnmarshalJSON(b); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if got != a {
		t.Fatalf("got %s, want %s", got, a)
	}
}

func TestUnmarshalNumber(t *testing.T) {
	var got Amount
	if err := got.UnmarshalJSON([]byte("0.25")); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if got != MustFromUSD("0.25") {
		t.Fatalf("got %s, want 0.25", got)
	}
}
