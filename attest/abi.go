package attest

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// parseDefinition turns an EAS schema string ("address walletAddress,uint256 xpGained")
// into ABI arguments. Tuple fields are not supported.
func parseDefinition(def string) (abi.Arguments, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return nil, errors.New("empty schema definition")
	}
	parts := strings.Split(def, ",")
	args := make(abi.Arguments, 0, len(parts))
	for _, p := range parts {
		f := strings.Fields(p)
		if len(f) != 2 {
			return nil, fmt.Errorf("malformed schema field %q", strings.TrimSpace(p))
		}
		if strings.HasPrefix(f[0], "(") || strings.HasPrefix(f[0], "tuple") {
			return nil, fmt.Errorf("tuple field %q not supported", f[1])
		}
		t, err := abi.NewType(f[0], "", nil)
		if err != nil {
			return nil, fmt.Errorf("schema field %q: %w", f[1], err)
		}
		args = append(args, abi.Argument{Name: f[1], Type: t})
	}
	return args, nil
}

// verifyData checks that data is the canonical encoding of def and that every expected
// field present in def decodes to the expected value.
func verifyData(def string, data []byte, expect map[string]any) error {
	args, err := parseDefinition(def)
	if err != nil {
		return newErr(KindConfig, CodeSchemaDrift, err)
	}

	values, err := args.Unpack(data)
	if err != nil {
		return newErr(KindValidation, CodeDataMismatch, fmt.Errorf("data does not decode against schema: %w", err))
	}
	repacked, err := args.Pack(values...)
	if err != nil || !bytes.Equal(repacked, data) {
		return validation(CodeDataMismatch, "data was not encoded with the current schema definition")
	}

	for i, a := range args {
		want, ok := expect[a.Name]
		if !ok {
			continue
		}
		if !valueEquals(values[i], want) {
			return validation(CodeDataMismatch, fmt.Sprintf("field %s does not match the server value", a.Name))
		}
	}
	return nil
}

func valueEquals(got, want any) bool {
	switch g := got.(type) {
	case common.Address:
		ws, ok := want.(string)
		return ok && sameAddress(g.Hex(), ws)
	case string:
		ws, ok := want.(string)
		return ok && g == ws
	case bool:
		wb, ok := want.(bool)
		return ok && g == wb
	case [32]byte:
		ws, ok := want.(string)
		if !ok {
			return false
		}
		h, err := hash32(ws)
		return err == nil && h == common.Hash(g)
	case *big.Int:
		wb, ok := toBig(want)
		return ok && g.Cmp(wb) == 0
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		gb, _ := new(big.Int).SetString(fmt.Sprint(g), 10)
		wb, ok := toBig(want)
		return ok && gb.Cmp(wb) == 0
	default:
		return fmt.Sprint(got) == fmt.Sprint(want)
	}
}

func toBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, n != nil
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case float64:
		if n != float64(int64(n)) {
			return nil, false
		}
		return big.NewInt(int64(n)), true
	case string:
		return new(big.Int).SetString(strings.TrimSpace(n), 0)
	default:
		return nil, false
	}
}
