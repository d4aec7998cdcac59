package common

import (
	"math"
	"math/big"

	coreerrors "fundcore/core/errors"
)

var (
	ErrQuotaRequestsExceeded = coreerrors.New(coreerrors.KindResourceState, "quota requests exceeded")
	ErrQuotaNotionalExceeded = coreerrors.New(coreerrors.KindResourceState, "quota notional cap exceeded")
	ErrQuotaCounterOverflow  = coreerrors.New(coreerrors.KindFatal, "quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount     uint32
	NotionalUsed *big.Int
	WindowID     uint64
}

// Quota defines the limits enforced for a module interaction per address.
// Zero values disable the respective limit.
type Quota struct {
	MaxRequestsPerWindow uint32
	MaxNotionalPerWindow *big.Int
	WindowSeconds        uint32
}

// Window maps a unix timestamp to the quota window it falls in.
func (q Quota) Window(now uint64) uint64 {
	if q.WindowSeconds == 0 {
		return 0
	}
	return now / uint64(q.WindowSeconds)
}

// CheckQuota verifies whether the additional request and notional usage fit
// within the configured quota. The returned QuotaNow reflects the updated
// counters when the quota is not exceeded.
func CheckQuota(q Quota, window uint64, prev QuotaNow, addReq uint32, addNotional *big.Int) (QuotaNow, error) {
	next := QuotaNow{ReqCount: prev.ReqCount, NotionalUsed: Clone(prev.NotionalUsed), WindowID: prev.WindowID}
	if prev.WindowID != window {
		next = QuotaNow{NotionalUsed: big.NewInt(0), WindowID: window}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerWindow > 0 && next.ReqCount > q.MaxRequestsPerWindow {
		return prev, ErrQuotaRequestsExceeded
	}

	if addNotional != nil && addNotional.Sign() > 0 {
		next.NotionalUsed.Add(next.NotionalUsed, addNotional)
	}
	if Positive(q.MaxNotionalPerWindow) && next.NotionalUsed.Cmp(q.MaxNotionalPerWindow) > 0 {
		return prev, ErrQuotaNotionalExceeded
	}

	return next, nil
}
