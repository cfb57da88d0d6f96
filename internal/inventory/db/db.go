package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-admission/internal/inventory"
	"ms-admission/internal/models"
)

// DB keeps allocations in seat_allocations, whose unique index on
// (show_id, seat_type_id, seat_num) is the check-and-set. The sold counter
// lives on seat_types and is bumped in the same transaction.
type DB struct {
	Bun *bun.DB
}

func (d *DB) Name() string { return "sql" }

func (d *DB) Allocate(ctx context.Context, seat inventory.Seat, capacity uint32, holder string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		alloc := &models.SeatAllocation{
			ShowID:     seat.ShowID,
			SeatTypeID: seat.SeatTypeID,
			SeatNum:    seat.Num,
			Holder:     holder,
			ReservedAt: time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(alloc).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: seat %s already taken", models.ErrSeatUnavailable, seat)
			}
			return fmt.Errorf("failed to insert allocation: %w", err)
		}

		res, err := tx.NewUpdate().
			Model((*models.SeatType)(nil)).
			Set("sold = sold + 1").
			Where("show_id = ?", seat.ShowID).
			Where("id = ?", seat.SeatTypeID).
			Where("sold < capacity").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update sold count: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: seat type %d:%d has %d seats", models.ErrCapacityExceeded, seat.ShowID, seat.SeatTypeID, capacity)
		}
		return nil
	})
}

func (d *DB) Free(ctx context.Context, seat inventory.Seat) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.SeatAllocation)(nil)).
			Where("show_id = ?", seat.ShowID).
			Where("seat_type_id = ?", seat.SeatTypeID).
			Where("seat_num = ?", seat.Num).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil // already free
		}
		_, err = tx.NewUpdate().
			Model((*models.SeatType)(nil)).
			Set("sold = sold - 1").
			Where("show_id = ?", seat.ShowID).
			Where("id = ?", seat.SeatTypeID).
			Where("sold > 0").
			Exec(ctx)
		return err
	})
}

func (d *DB) Sold(ctx context.Context, showID, seatTypeID uint64) (uint32, error) {
	var seatType models.SeatType
	err := d.Bun.NewSelect().
		Model(&seatType).
		Column("sold").
		Where("show_id = ?", showID).
		Where("id = ?", seatTypeID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrSeatTypeNotFound
	}
	if err != nil {
		return 0, err
	}
	return seatType.Sold, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
