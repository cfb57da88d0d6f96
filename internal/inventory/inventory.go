// Package inventory allocates seat numbers within a show's seat types.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"ms-admission/internal/logger"
	"ms-admission/internal/metrics"
	"ms-admission/internal/models"
)

// Seat identifies one seat number within a show's seat type.
type Seat struct {
	ShowID     uint64
	SeatTypeID uint64
	Num        uint32
}

func (s Seat) String() string {
	return fmt.Sprintf("%d:%d:%d", s.ShowID, s.SeatTypeID, s.Num)
}

// Catalog is the show/schedule collaborator.
type Catalog interface {
	IsScheduled(ctx context.Context, showID uint64) (bool, error)
	GetSeatType(ctx context.Context, showID, seatTypeID uint64) (*models.SeatType, error)
}

// SeatLedger stores allocations. Allocate must be a single atomic
// check-and-set: of any number of concurrent calls for the same seat,
// exactly one succeeds and the others get models.ErrSeatUnavailable.
type SeatLedger interface {
	Name() string
	Allocate(ctx context.Context, seat Seat, capacity uint32, holder string) error
	Free(ctx context.Context, seat Seat) error
	Sold(ctx context.Context, showID, seatTypeID uint64) (uint32, error)
}

type Inventory struct {
	Catalog Catalog
	Seats   SeatLedger
	Logger  *logger.Logger
}

func New(catalog Catalog, seats SeatLedger, log *logger.Logger) *Inventory {
	return &Inventory{Catalog: catalog, Seats: seats, Logger: log}
}

// Reserve claims seatNum for holder and returns it.
func (inv *Inventory) Reserve(ctx context.Context, showID, seatTypeID uint64, seatNum uint32, holder string) (uint32, error) {
	seat := Seat{ShowID: showID, SeatTypeID: seatTypeID, Num: seatNum}
	err := inv.reserve(ctx, seat, holder)
	metrics.Reservations.WithLabelValues(inv.Seats.Name(), reservationResult(err)).Inc()
	if err != nil {
		inv.Logger.LogInventory("RESERVE_FAILED", seat.String(), err.Error())
		return 0, err
	}
	inv.Logger.LogInventory("RESERVED", seat.String(), "seat reserved for "+holder)
	return seatNum, nil
}

func (inv *Inventory) reserve(ctx context.Context, seat Seat, holder string) error {
	scheduled, err := inv.Catalog.IsScheduled(ctx, seat.ShowID)
	if err != nil {
		return err
	}
	if !scheduled {
		return fmt.Errorf("%w: show %d", models.ErrShowNotSchedulable, seat.ShowID)
	}

	seatType, err := inv.Catalog.GetSeatType(ctx, seat.ShowID, seat.SeatTypeID)
	if err != nil {
		return err
	}
	if seat.Num < 1 || seat.Num > seatType.Capacity {
		return fmt.Errorf("%w: seat %d outside 1..%d", models.ErrSeatUnavailable, seat.Num, seatType.Capacity)
	}

	return inv.Seats.Allocate(ctx, seat, seatType.Capacity, holder)
}

// Release frees a previously reserved seat. Releasing a free seat is a no-op.
func (inv *Inventory) Release(ctx context.Context, showID, seatTypeID uint64, seatNum uint32) error {
	seat := Seat{ShowID: showID, SeatTypeID: seatTypeID, Num: seatNum}
	if err := inv.Seats.Free(ctx, seat); err != nil {
		inv.Logger.LogInventory("RELEASE_FAILED", seat.String(), err.Error())
		return err
	}
	inv.Logger.LogInventory("RELEASED", seat.String(), "seat returned to inventory")
	return nil
}

func (inv *Inventory) Sold(ctx context.Context, showID, seatTypeID uint64) (uint32, error) {
	if _, err := inv.Catalog.GetSeatType(ctx, showID, seatTypeID); err != nil {
		return 0, err
	}
	return inv.Seats.Sold(ctx, showID, seatTypeID)
}

func reservationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrSeatUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, models.ErrShowNotSchedulable):
		return "not_schedulable"
	case errors.Is(err, models.ErrShowNotFound), errors.Is(err, models.ErrSeatTypeNotFound):
		return "not_found"
	default:
		return "error"
	}
}
