// Package shows is the show catalog and schedule.
package shows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-admission/internal/models"
)

type Store struct {
	Bun *bun.DB
}

func (s *Store) CreateShow(ctx context.Context, show *models.Show) error {
	if show.Status == "" {
		show.Status = models.ShowStatusUnscheduled
	}
	if show.CreatedAt.IsZero() {
		show.CreatedAt = time.Now().UTC()
	}
	_, err := s.Bun.NewInsert().Model(show).Exec(ctx)
	return err
}

func (s *Store) GetShow(ctx context.Context, showID uint64) (*models.Show, error) {
	var show models.Show
	err := s.Bun.NewSelect().Model(&show).Where("id = ?", showID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrShowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &show, nil
}

// AddSeatType adds a tier to a show that has not been scheduled yet.
// Capacity is fixed from here on.
func (s *Store) AddSeatType(ctx context.Context, seatType *models.SeatType) error {
	show, err := s.GetShow(ctx, seatType.ShowID)
	if err != nil {
		return err
	}
	if show.Status != models.ShowStatusUnscheduled {
		return fmt.Errorf("%w: show %d is %s", models.ErrInvalidTransition, show.ID, show.Status)
	}
	seatType.Sold = 0
	_, err = s.Bun.NewInsert().Model(seatType).Exec(ctx)
	return err
}

func (s *Store) Schedule(ctx context.Context, showID uint64) error {
	return s.transition(ctx, showID, models.ShowStatusScheduled)
}

func (s *Store) Cancel(ctx context.Context, showID uint64) error {
	return s.transition(ctx, showID, models.ShowStatusCancelled)
}

func (s *Store) transition(ctx context.Context, showID uint64, next models.ShowStatus) error {
	var from []models.ShowStatus
	for _, st := range []models.ShowStatus{models.ShowStatusUnscheduled, models.ShowStatusScheduled} {
		if st.CanTransition(next) {
			from = append(from, st)
		}
	}

	res, err := s.Bun.NewUpdate().
		Model((*models.Show)(nil)).
		Set("status = ?", next).
		Where("id = ?", showID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, show.Status, next)
}

func (s *Store) IsScheduled(ctx context.Context, showID uint64) (bool, error) {
	show, err := s.GetShow(ctx, showID)
	if err != nil {
		return false, err
	}
	return show.Status == models.ShowStatusScheduled, nil
}

func (s *Store) GetSeatType(ctx context.Context, showID, seatTypeID uint64) (*models.SeatType, error) {
	var seatType models.SeatType
	err := s.Bun.NewSelect().
		Model(&seatType).
		Where("show_id = ?", showID).
		Where("id = ?", seatTypeID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSeatTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &seatType, nil
}

func (s *Store) ListSeatTypes(ctx context.Context, showID uint64) ([]models.SeatType, error) {
	var seatTypes []models.SeatType
	err := s.Bun.NewSelect().
		Model(&seatTypes).
		Where("show_id = ?", showID).
		Order("id ASC").
		Scan(ctx)
	return seatTypes, err
}
