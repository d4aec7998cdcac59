package common

import "math/big"

const (
	// Decimals is the number of implied decimals of every ledger amount.
	Decimals = 8
	// BpsDenominator is the basis point denominator.
	BpsDenominator = 10_000
	// SecondsPerYear is the day-count basis for annual rates.
	SecondsPerYear = 365 * 24 * 60 * 60
)

var (
	// Scale is 10^Decimals.
	Scale = big.NewInt(100_000_000)

	bpsDenominator = big.NewInt(BpsDenominator)
)

// Clone copies v, mapping nil to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// MulDiv returns floor(a*b/c). A zero divisor yields zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// MulDivUp returns ceil(a*b/c) for non-negative operands.
func MulDivUp(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(num, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// ApplyBps returns floor(amount*bps/10000).
func ApplyBps(amount *big.Int, bps uint32) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(uint64(bps)), bpsDenominator)
}

// ScaleBps returns floor(amount*(10000+delta)/10000) where delta may be
// negative.
func ScaleBps(amount *big.Int, delta int64) *big.Int {
	return MulDiv(amount, big.NewInt(BpsDenominator+delta), bpsDenominator)
}

// Value returns floor(amount*price/Scale): the cash value of a token amount.
func Value(amount, price *big.Int) *big.Int {
	return MulDiv(amount, price, Scale)
}

// Units returns floor(cash*Scale/price): the token amount cash buys.
func Units(cash, price *big.Int) *big.Int {
	return MulDiv(cash, Scale, price)
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// Positive reports whether v is non-nil and strictly positive.
func Positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// Cash is the ledger symbol of the settlement currency.
const Cash = "TND"
