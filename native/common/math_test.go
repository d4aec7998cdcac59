package common

import (
	"math/big"
	"testing"
)

func TestMulDivFloorsAndCeils(t *testing.T) {
	a, b, c := big.NewInt(7), big.NewInt(3), big.NewInt(2)
	if got := MulDiv(a, b, c); got.Int64() != 10 {
		t.Fatalf("floor: got %s", got)
	}
	if got := MulDivUp(a, b, c); got.Int64() != 11 {
		t.Fatalf("ceil: got %s", got)
	}
	if got := MulDivUp(big.NewInt(4), b, c); got.Int64() != 6 {
		t.Fatalf("exact ceil: got %s", got)
	}
	if MulDiv(a, b, big.NewInt(0)).Sign() != 0 {
		t.Fatalf("zero divisor must yield zero")
	}
}

func TestApplyBpsAndScale(t *testing.T) {
	nav := big.NewInt(12_550_000_000)
	if got := ScaleBps(nav, 20); got.Int64() != 12_575_100_000 {
		t.Fatalf("buy price: got %s", got)
	}
	if got := ScaleBps(nav, -20); got.Int64() != 12_524_900_000 {
		t.Fatalf("sell price: got %s", got)
	}
	if got := ApplyBps(big.NewInt(101_190_000_000), 100); got.Int64() != 1_011_900_000 {
		t.Fatalf("fee: got %s", got)
	}
	if got := Value(big.NewInt(200_000_000), nav); got.Int64() != 25_100_000_000 {
		t.Fatalf("value: got %s", got)
	}
	if got := Units(big.NewInt(25_100_000_000), nav); got.Int64() != 200_000_000 {
		t.Fatalf("units: got %s", got)
	}
}
