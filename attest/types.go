package attest

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DelegatedSignature is the client-signed delegated attestation request. It is checked
// and forwarded, never stored.
type DelegatedSignature struct {
	Signature      string `json:"signature"`
	Deadline       uint64 `json:"deadline"`
	Attester       string `json:"attester"`
	Recipient      string `json:"recipient"`
	SchemaUID      string `json:"schemaUid"`
	Data           string `json:"data"`
	ExpirationTime uint64 `json:"expirationTime"`
	Revocable      bool   `json:"revocable"`
	RefUID         string `json:"refUID"`
	ChainID        int64  `json:"chainId"`
	Network        string `json:"network"`
}

// TargetRef names the row that receives the attestation UID.
type TargetRef struct {
	Kind          string
	ID            string
	UserProfileID string
}

// Request is one commit call.
type Request struct {
	Signature       *DelegatedSignature
	SchemaKey       string
	Network         string
	GracefulDegrade bool
	// WalletAddress is the caller's verified wallet; the signature recipient must match it.
	WalletAddress string
	Target        TargetRef
	// Expect pins decoded schema fields to server-known values, e.g. walletAddress or
	// xpGained. Fields absent from the schema definition are ignored.
	Expect map[string]any
}

// Result is the commit outcome. Skipped means graceful mode found no schema and the
// attestation was not attempted; UID is nil in that case.
type Result struct {
	Success bool    `json:"success"`
	UID     *string `json:"uid"`
	TxHash  string  `json:"txHash,omitempty"`
	Skipped bool    `json:"skipped,omitempty"`
	Reused  bool    `json:"reused,omitempty"`
}

func sameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func hash32(s string) (common.Hash, error) {
	if strings.TrimSpace(s) == "" {
		return common.Hash{}, nil
	}
	b, err := decodeHex(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("want %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func strPtr(s string) *string { return &s }
