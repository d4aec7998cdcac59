package state

import "fundcore/crypto"

var (
	tokenPrefix       = []byte("token/meta/")
	tokenListKey      = []byte("token/list")
	balancePrefix     = []byte("balance/")
	supplyPrefix      = []byte("supply/")
	rolePrefix        = []byte("role/member/")
	roleIndexPrefix   = []byte("role/index/")
	callerPrefix      = []byte("caller/member/")
	callerIndexPrefix = []byte("caller/index/")
	sequencePrefix    = []byte("seq/")
)

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, p...)
	}
	return buf
}

func tokenMetadataKey(symbol string) []byte { return joinKey(tokenPrefix, []byte(symbol)) }

func balanceKey(addr crypto.Address, symbol string) []byte {
	return joinKey(balancePrefix, []byte(symbol), addr[:])
}

func supplyKey(symbol string) []byte { return joinKey(supplyPrefix, []byte(symbol)) }

func roleKey(role string, addr crypto.Address) []byte {
	return joinKey(rolePrefix, []byte(role), addr[:])
}

func roleIndexKey(role string) []byte { return joinKey(roleIndexPrefix, []byte(role)) }

func callerKey(component string, addr crypto.Address) []byte {
	return joinKey(callerPrefix, []byte(component), addr[:])
}

func callerIndexKey(component string) []byte { return joinKey(callerIndexPrefix, []byte(component)) }
