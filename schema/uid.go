package schema

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// DeriveUID computes the schema registry UID: keccak256 over the packed definition
// string, resolver address and revocable flag.
func DeriveUID(definition, resolver string, revocable bool) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(definition))
	h.Write(common.HexToAddress(resolver).Bytes())
	if revocable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return hexutil.Encode(h.Sum(nil))
}

// SameUID compares two 0x-prefixed UIDs case-insensitively.
func SameUID(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
