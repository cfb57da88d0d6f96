// Package staff keeps the gate staff roster.
package staff

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-admission/internal/checkin"
	"ms-admission/internal/models"
)

type Roster struct {
	Bun *bun.DB
}

// AddStaff registers identity as active gate staff, reactivating it if it
// was deactivated.
func (r *Roster) AddStaff(ctx context.Context, identity, name string) (*models.GateStaff, error) {
	id, err := checkin.ParseIdentity(identity)
	if err != nil {
		return nil, err
	}
	member := &models.GateStaff{
		Identity:  id.String(),
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.Bun.NewInsert().
		Model(member).
		On("CONFLICT (identity) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("active = EXCLUDED.active").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (r *Roster) Deactivate(ctx context.Context, identity string) error {
	id, err := checkin.ParseIdentity(identity)
	if err != nil {
		return err
	}
	_, err = r.Bun.NewUpdate().
		Model((*models.GateStaff)(nil)).
		Set("active = ?", false).
		Where("identity = ?", id.String()).
		Exec(ctx)
	return err
}

// IsAuthorizedGateStaff reports whether identity is an active staff member.
// Malformed identities are simply not staff.
func (r *Roster) IsAuthorizedGateStaff(ctx context.Context, identity string) (bool, error) {
	id, err := checkin.ParseIdentity(identity)
	if err != nil {
		return false, nil
	}
	var member models.GateStaff
	err = r.Bun.NewSelect().
		Model(&member).
		Where("identity = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Active, nil
}

func (r *Roster) List(ctx context.Context) ([]models.GateStaff, error) {
	var members []models.GateStaff
	err := r.Bun.NewSelect().Model(&members).Order("name ASC").Scan(ctx)
	return members, err
}
