package attest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/p2einferno/inferno-checkin/config"
)

// ErrRelayerNotConfigured is returned when no relayer key is available.
var ErrRelayerNotConfigured = errors.New("attestation relayer not configured")

// Submission is a verified delegated attestation ready to be sent on-chain.
type Submission struct {
	Network        string
	Schema         common.Hash
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         common.Hash
	Data           []byte
	V              uint8
	R              [32]byte
	S              [32]byte
	Attester       common.Address
	Deadline       uint64
}

// Relayer sends delegated attestations and extracts the resulting UID.
type Relayer interface {
	Submit(ctx context.Context, sub Submission) (txHash string, err error)
	Wait(ctx context.Context, network, txHash string) (uid string, err error)
}

const easABIJSON = `[
{"type":"function","name":"attestByDelegation","stateMutability":"payable",
 "inputs":[{"name":"delegatedRequest","type":"tuple","components":[
   {"name":"schema","type":"bytes32"},
   {"name":"data","type":"tuple","components":[
     {"name":"recipient","type":"address"},
     {"name":"expirationTime","type":"uint64"},
     {"name":"revocable","type":"bool"},
     {"name":"refUID","type":"bytes32"},
     {"name":"data","type":"bytes"},
     {"name":"value","type":"uint256"}]},
   {"name":"signature","type":"tuple","components":[
     {"name":"v","type":"uint8"},
     {"name":"r","type":"bytes32"},
     {"name":"s","type":"bytes32"}]},
   {"name":"attester","type":"address"},
   {"name":"deadline","type":"uint64"}]}],
 "outputs":[{"name":"","type":"bytes32"}]},
{"type":"event","name":"Attested","anonymous":false,
 "inputs":[
   {"name":"recipient","type":"address","indexed":true},
   {"name":"attester","type":"address","indexed":true},
   {"name":"uid","type":"bytes32","indexed":false},
   {"name":"schemaUID","type":"bytes32","indexed":true}]}
]`

var easABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(easABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

type attestationRequestData struct {
	Recipient      common.Address `abi:"recipient"`
	ExpirationTime uint64         `abi:"expirationTime"`
	Revocable      bool           `abi:"revocable"`
	RefUID         [32]byte       `abi:"refUID"`
	Data           []byte         `abi:"data"`
	Value          *big.Int       `abi:"value"`
}

type eip712Signature struct {
	V uint8    `abi:"v"`
	R [32]byte `abi:"r"`
	S [32]byte `abi:"s"`
}

type delegatedAttestationRequest struct {
	Schema    [32]byte               `abi:"schema"`
	Data      attestationRequestData `abi:"data"`
	Signature eip712Signature        `abi:"signature"`
	Attester  common.Address         `abi:"attester"`
	Deadline  uint64                 `abi:"deadline"`
}

// EthRelayer submits attestByDelegation transactions with a server-held key.
type EthRelayer struct {
	key          *ecdsa.PrivateKey
	networks     map[string]config.NetworkConfig
	pollInterval time.Duration
	log          *zap.Logger

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewEthRelayer parses the hex relayer key. An empty key yields ErrRelayerNotConfigured.
func NewEthRelayer(privateKeyHex string, networks map[string]config.NetworkConfig, log *zap.Logger) (*EthRelayer, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, ErrRelayerNotConfigured
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse relayer key: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EthRelayer{
		key:          key,
		networks:     networks,
		pollInterval: 2 * time.Second,
		log:          log,
		clients:      make(map[string]*ethclient.Client),
	}, nil
}

// Address is the relayer's sending address.
func (r *EthRelayer) Address() common.Address {
	return crypto.PubkeyToAddress(r.key.PublicKey)
}

func (r *EthRelayer) client(ctx context.Context, network string) (*ethclient.Client, config.NetworkConfig, error) {
	nc, ok := r.networks[network]
	if !ok || nc.RPCURL == "" || !common.IsHexAddress(nc.EASAddress) {
		return nil, nc, fmt.Errorf("network %q not configured", network)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[network]; ok {
		return c, nc, nil
	}
	c, err := ethclient.DialContext(ctx, nc.RPCURL)
	if err != nil {
		return nil, nc, fmt.Errorf("dial %s: %w", network, err)
	}
	r.clients[network] = c
	return c, nc, nil
}

func (r *EthRelayer) Submit(ctx context.Context, sub Submission) (string, error) {
	c, nc, err := r.client(ctx, sub.Network)
	if err != nil {
		return "", err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(r.key, big.NewInt(nc.ChainID))
	if err != nil {
		return "", err
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(common.HexToAddress(nc.EASAddress), easABI, c, c, c)
	req := delegatedAttestationRequest{
		Schema: sub.Schema,
		Data: attestationRequestData{
			Recipient:      sub.Recipient,
			ExpirationTime: sub.ExpirationTime,
			Revocable:      sub.Revocable,
			RefUID:         sub.RefUID,
			Data:           sub.Data,
			Value:          big.NewInt(0),
		},
		Signature: eip712Signature{V: sub.V, R: sub.R, S: sub.S},
		Attester:  sub.Attester,
		Deadline:  sub.Deadline,
	}
	tx, err := contract.Transact(opts, "attestByDelegation", req)
	if err != nil {
		return "", fmt.Errorf("attestByDelegation: %w", err)
	}
	r.log.Info("attestation submitted",
		zap.String("network", sub.Network),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("recipient", sub.Recipient.Hex()),
	)
	return tx.Hash().Hex(), nil
}

// Wait polls for the receipt until ctx ends and returns the UID from the Attested event.
func (r *EthRelayer) Wait(ctx context.Context, network, txHash string) (string, error) {
	c, nc, err := r.client(ctx, network)
	if err != nil {
		return "", err
	}
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return "", fmt.Errorf("transaction %s reverted", txHash)
			}
			return attestedUID(receipt, common.HexToAddress(nc.EASAddress))
		}
		if !errors.Is(err, ethereum.NotFound) {
			r.log.Warn("receipt lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func attestedUID(receipt *types.Receipt, eas common.Address) (string, error) {
	event := easABI.Events["Attested"]
	for _, lg := range receipt.Logs {
		if lg.Address != eas || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		out, err := easABI.Unpack("Attested", lg.Data)
		if err != nil || len(out) != 1 {
			continue
		}
		if uid, ok := out[0].([32]byte); ok {
			return common.Hash(uid).Hex(), nil
		}
	}
	return "", errors.New("no Attested event in receipt")
}

// splitSignature splits a 65-byte r||s||v signature, normalising v to 27/28.
func splitSignature(sig []byte) (v uint8, r, s [32]byte, err error) {
	if len(sig) != crypto.SignatureLength {
		return 0, r, s, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

type noRelayer struct{}

// NoRelayer returns a Relayer that always fails with ErrRelayerNotConfigured.
func NoRelayer() Relayer { return noRelayer{} }

func (noRelayer) Submit(context.Context, Submission) (string, error) {
	return "", ErrRelayerNotConfigured
}

func (noRelayer) Wait(context.Context, string, string) (string, error) {
	return "", ErrRelayerNotConfigured
}
