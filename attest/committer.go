package attest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/p2einferno/inferno-checkin/schema"
)

// SchemaSource resolves the current schema version for a key on a network.
type SchemaSource interface {
	ResolveEntry(ctx context.Context, key, network string) (schema.Entry, bool, error)
}

// Committer verifies delegated attestation requests, submits them through a Relayer and
// records the UID on the target row. A target that already holds a UID is never
// submitted again.
type Committer struct {
	schemas  SchemaSource
	relayer  Relayer
	targets  *TargetStore
	guard    Guard
	chainIDs map[string]int64
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// Option customizes a Committer.
type Option func(*Committer)

func WithGuard(g Guard) Option { return func(c *Committer) { c.guard = g } }

func WithClock(now func() time.Time) Option { return func(c *Committer) { c.now = now } }

func WithLogger(l *zap.Logger) Option { return func(c *Committer) { c.log = l } }

// WithTimeout bounds submission plus receipt wait.
func WithTimeout(d time.Duration) Option { return func(c *Committer) { c.timeout = d } }

// WithChainIDs sets the expected chain id per network name.
func WithChainIDs(ids map[string]int64) Option { return func(c *Committer) { c.chainIDs = ids } }

func NewCommitter(schemas SchemaSource, relayer Relayer, targets *TargetStore, opts ...Option) *Committer {
	c := &Committer{
		schemas: schemas,
		relayer: relayer,
		targets: targets,
		guard:   NewMemoryGuard(),
		timeout: 45 * time.Second,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.relayer == nil {
		c.relayer = NoRelayer()
	}
	return c
}

// Commit runs the delegated attestation flow for req. Failures are returned as *Error;
// in graceful mode a missing schema yields a skipped success instead.
func (c *Committer) Commit(ctx context.Context, req Request) (*Result, error) {
	if err := checkRequired(req); err != nil {
		return nil, err
	}
	sig := req.Signature
	log := c.log.With(
		zap.String("schema_key", req.SchemaKey),
		zap.String("network", req.Network),
		zap.String("target", req.Target.Kind),
		zap.String("target_id", req.Target.ID),
	)

	if !sameAddress(sig.Recipient, req.WalletAddress) {
		log.Warn("attestation recipient mismatch", zap.String("recipient", sig.Recipient))
		return nil, validation(CodeRecipientMismatch, "signature recipient does not match the authenticated wallet")
	}

	if existing, err := c.current(ctx, req.Target); err != nil {
		return nil, err
	} else if existing != nil {
		return &Result{Success: true, UID: existing, Reused: true}, nil
	}

	entry, ok, err := c.schemas.ResolveEntry(ctx, req.SchemaKey, req.Network)
	if err != nil {
		return nil, newErr(KindTransient, CodeLookupFailed, err)
	}
	if !ok {
		if req.GracefulDegrade {
			log.Warn("schema not configured, attestation skipped")
			return &Result{Success: true, Skipped: true}, nil
		}
		return nil, newErr(KindConfig, CodeSchemaNotConfigured,
			fmt.Errorf("schema %q not configured on %s", req.SchemaKey, req.Network))
	}

	sub, err := c.verify(req, entry)
	if err != nil {
		return nil, err
	}

	release, acquired, err := c.guard.Acquire(ctx, req.Target.Kind+":"+req.Target.ID, c.timeout+10*time.Second)
	if err != nil {
		return nil, newErr(KindTransient, CodeLookupFailed, err)
	}
	if !acquired {
		return nil, newErr(KindConflict, CodeInFlight, errors.New("an attestation for this record is already being submitted"))
	}
	defer release()

	// another request may have finished between the first lookup and the guard
	if existing, err := c.current(ctx, req.Target); err != nil {
		return nil, err
	} else if existing != nil {
		return &Result{Success: true, UID: existing, Reused: true}, nil
	}

	chainCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	txHash, err := c.relayer.Submit(chainCtx, sub)
	if err != nil {
		return nil, c.chainErr(err)
	}
	uid, err := c.relayer.Wait(chainCtx, req.Network, txHash)
	if err != nil {
		log.Error("attestation receipt failed", zap.String("tx_hash", txHash), zap.Error(err))
		return &Result{TxHash: txHash}, c.chainErr(err)
	}
	uid = strings.ToLower(uid)

	stored, err := c.targets.Persist(ctx, req.Target, uid)
	if err != nil {
		log.Error("attestation uid not persisted", zap.String("uid", uid), zap.String("tx_hash", txHash), zap.Error(err))
		return &Result{UID: strPtr(uid), TxHash: txHash}, newErr(KindTransient, CodePersistFailed, err)
	}
	if stored != uid {
		log.Warn("target already held a different attestation", zap.String("stored", stored), zap.String("submitted", uid))
	}
	log.Info("attestation committed", zap.String("uid", stored), zap.String("tx_hash", txHash))
	return &Result{Success: true, UID: strPtr(stored), TxHash: txHash}, nil
}

func checkRequired(req Request) error {
	var missing []string
	if req.Signature == nil {
		missing = append(missing, "signature")
	}
	if strings.TrimSpace(req.SchemaKey) == "" {
		missing = append(missing, "schemaKey")
	}
	if strings.TrimSpace(req.Network) == "" {
		missing = append(missing, "network")
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		missing = append(missing, "walletAddress")
	}
	if req.Target.Kind == "" || req.Target.ID == "" || req.Target.UserProfileID == "" {
		missing = append(missing, "target")
	}
	if len(missing) > 0 {
		return newErr(KindInternal, CodeMissingField, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	if !KnownTarget(req.Target.Kind) {
		return validation(CodeUnknownTarget, fmt.Sprintf("unknown attestation target %q", req.Target.Kind))
	}
	return nil
}

func (c *Committer) current(ctx context.Context, ref TargetRef) (*string, error) {
	uid, err := c.targets.Current(ctx, ref)
	if errors.Is(err, ErrTargetNotFound) {
		return nil, newErr(KindValidation, CodeTargetNotFound, err)
	}
	if err != nil {
		return nil, newErr(KindTransient, CodeLookupFailed, err)
	}
	return uid, nil
}

// verify runs every local check and builds the submission. Nothing here touches the chain.
func (c *Committer) verify(req Request, entry schema.Entry) (Submission, error) {
	sig := req.Signature

	if !schema.SameUID(sig.SchemaUID, entry.UID) {
		return Submission{}, validation(CodeSchemaUIDMismatch, "signature was made for a different schema version")
	}
	if derived := schema.DeriveUID(entry.Definition, entry.Resolver, entry.Revocable); !schema.SameUID(derived, entry.UID) {
		return Submission{}, newErr(KindConfig, CodeSchemaDrift,
			fmt.Errorf("stored definition for %s derives %s, row says %s", req.SchemaKey, derived, entry.UID))
	}

	if sig.Deadline <= uint64(c.now().Unix()) {
		return Submission{}, validation(CodeDeadlineExpired, "signature deadline has passed")
	}

	if sig.Network != "" && sig.Network != req.Network {
		return Submission{}, validation(CodeNetworkMismatch, "signature network does not match request network")
	}
	if c.chainIDs != nil {
		want, ok := c.chainIDs[req.Network]
		if !ok {
			return Submission{}, newErr(KindConfig, CodeNetworkUnknown, fmt.Errorf("network %q not configured", req.Network))
		}
		if sig.ChainID != 0 && sig.ChainID != want {
			return Submission{}, validation(CodeNetworkMismatch, "signature chain id does not match network")
		}
	}

	if sig.Revocable && !entry.Revocable {
		return Submission{}, validation(CodeRevocableMismatch, "schema is not revocable")
	}

	data, err := decodeHex(sig.Data)
	if err != nil {
		return Submission{}, validation(CodeDataMismatch, "data is not valid hex")
	}
	if err := verifyData(entry.Definition, data, req.Expect); err != nil {
		return Submission{}, err
	}

	rawSig, err := decodeHex(sig.Signature)
	if err != nil {
		return Submission{}, validation(CodeBadSignature, "signature is not valid hex")
	}
	v, r, s, err := splitSignature(rawSig)
	if err != nil {
		return Submission{}, validation(CodeBadSignature, err.Error())
	}
	if !common.IsHexAddress(sig.Attester) {
		return Submission{}, validation(CodeBadSignature, "attester is not an address")
	}
	refUID, err := hash32(sig.RefUID)
	if err != nil {
		return Submission{}, validation(CodeBadSignature, "refUID is not a 32-byte hex value")
	}

	return Submission{
		Network:        req.Network,
		Schema:         common.HexToHash(entry.UID),
		Recipient:      common.HexToAddress(sig.Recipient),
		ExpirationTime: sig.ExpirationTime,
		Revocable:      sig.Revocable,
		RefUID:         refUID,
		Data:           data,
		V:              v,
		R:              r,
		S:              s,
		Attester:       common.HexToAddress(sig.Attester),
		Deadline:       sig.Deadline,
	}, nil
}

func (c *Committer) chainErr(err error) error {
	if errors.Is(err, ErrRelayerNotConfigured) {
		return newErr(KindConfig, CodeRelayerMissing, err)
	}
	return newErr(KindTransient, CodeChainUnavailable, err)
}
