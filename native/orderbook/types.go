package orderbook

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"fundcore/crypto"
	"fundcore/native/fees"
)

// Side is the direction of an order.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side an order matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSide, v)
}

// Status tracks an order through the book.
type Status uint8

const (
	StatusPending Status = iota
	// StatusMatched is part of the order model only. Fills settle in the
	// unit that matches them, so a committed order is Pending or Settled.
	StatusMatched
	StatusSettled
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusMatched:
		return "matched"
	case StatusSettled:
		return "settled"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Open reports whether the order can still trade.
func (s Status) Open() bool { return s == StatusPending || s == StatusMatched }

// Order is a resting or completed P2P order. Locked is what the book still
// holds in escrow for the order: tokens for a sell, cash for a buy.
type Order struct {
	ID                string
	Seq               uint64
	Maker             crypto.Address
	Side              Side
	Token             string
	Amount            *big.Int
	Price             *big.Int
	Nonce             uint64
	Deadline          uint64
	CreatedAt         uint64
	Filled            *big.Int
	Locked            *big.Int
	Status            Status
	Fallback          bool
	FallbackAttempted bool
	FallbackSuccess   bool
	FallbackError     string
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	out.Amount = cloneInt(o.Amount)
	out.Price = cloneInt(o.Price)
	out.Filled = cloneInt(o.Filled)
	out.Locked = cloneInt(o.Locked)
	return &out
}

// Remaining is the unfilled amount.
func (o *Order) Remaining() *big.Int {
	rem := new(big.Int).Sub(o.Amount, o.Filled)
	if rem.Sign() < 0 {
		return big.NewInt(0)
	}
	return rem
}

// Live reports whether the order is open and not past its deadline at now.
func (o *Order) Live(now uint64) bool {
	return o.Status.Open() && now <= o.Deadline
}

// OrderID derives the identifier of maker's order with nonce.
func OrderID(maker crypto.Address, nonce uint64) string {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	id := crypto.Hash32([]byte("orderbook"), maker[:], n[:])
	return hex.EncodeToString(id[:])
}

// Trade records one execution between a buy and a sell order.
type Trade struct {
	Token     string
	BuyOrder  string
	SellOrder string
	Buyer     crypto.Address
	Seller    crypto.Address
	Amount    *big.Int
	Price     *big.Int
	Notional  *big.Int
	Fee       fees.Breakdown
	At        uint64
}

// Snapshot is the live book of one token. Bids and asks are in time
// priority.
type Snapshot struct {
	Token string
	Bids  []*Order
	Asks  []*Order
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
