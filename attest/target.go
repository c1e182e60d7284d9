package attest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
)

// Target kinds accepted by the committer.
const (
	TargetCheckin        = "checkin"
	TargetMilestoneClaim = "milestone_claim"
)

var ErrTargetNotFound = errors.New("attestation target not found")

type targetTable struct {
	name      string
	numericID bool
}

// targetTables maps a target kind to its table. Only listed tables are ever written.
var targetTables = map[string]targetTable{
	TargetCheckin:        {name: "user_activities"},
	TargetMilestoneClaim: {name: "milestone_claims", numericID: true},
}

func lookupTarget(ref TargetRef) (string, any, error) {
	t, ok := targetTables[ref.Kind]
	if !ok {
		return "", nil, fmt.Errorf("unknown target %q", ref.Kind)
	}
	if !t.numericID {
		return t.name, ref.ID, nil
	}
	id, err := strconv.ParseUint(ref.ID, 10, 64)
	if err != nil {
		return "", nil, ErrTargetNotFound
	}
	return t.name, id, nil
}

type targetRow struct {
	AttestationUID *string
}

// TargetStore reads and writes the attestation_uid column of owned rows.
type TargetStore struct {
	db *gorm.DB
}

func NewTargetStore(db *gorm.DB) *TargetStore {
	return &TargetStore{db: db}
}

// KnownTarget reports whether kind names an attestable table.
func KnownTarget(kind string) bool {
	_, ok := targetTables[kind]
	return ok
}

// Current returns the stored UID (nil when none). Rows not owned by ref.UserProfileID
// are reported as ErrTargetNotFound.
func (s *TargetStore) Current(ctx context.Context, ref TargetRef) (*string, error) {
	table, id, err := lookupTarget(ref)
	if err != nil {
		return nil, err
	}
	var row targetRow
	err = s.db.WithContext(ctx).
		Table(table).
		Select("attestation_uid").
		Where("id = ? AND user_profile_id = ?", id, ref.UserProfileID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.AttestationUID != nil && *row.AttestationUID == "" {
		return nil, nil
	}
	return row.AttestationUID, nil
}

// Persist stores uid only if the row has none yet and returns whatever UID the row
// holds afterwards.
func (s *TargetStore) Persist(ctx context.Context, ref TargetRef, uid string) (string, error) {
	table, id, err := lookupTarget(ref)
	if err != nil {
		return "", err
	}
	res := s.db.WithContext(ctx).
		Table(table).
		Where("id = ? AND user_profile_id = ? AND (attestation_uid IS NULL OR attestation_uid = '')", id, ref.UserProfileID).
		Update("attestation_uid", uid)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 1 {
		return uid, nil
	}
	existing, err := s.Current(ctx, ref)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return "", ErrTargetNotFound
	}
	return *existing, nil
}
