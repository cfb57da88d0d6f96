package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ShowStatus string

const (
	ShowStatusUnscheduled ShowStatus = "unscheduled"
	ShowStatusScheduled   ShowStatus = "scheduled"
	ShowStatusCancelled   ShowStatus = "cancelled"
)

// CanTransition reports whether a show may move from s to next.
// Unscheduled -> Scheduled, and either of those -> Cancelled.
func (s ShowStatus) CanTransition(next ShowStatus) bool {
	switch next {
	case ShowStatusScheduled:
		return s == ShowStatusUnscheduled
	case ShowStatusCancelled:
		return s == ShowStatusUnscheduled || s == ShowStatusScheduled
	}
	return false
}

type Show struct {
	bun.BaseModel `bun:"table:shows"`

	ID        uint64     `bun:"id,pk" json:"id"`
	Name      string     `bun:"name,notnull" json:"name"`
	Status    ShowStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// SeatType is a price/capacity tier within a show. Capacity never changes
// after creation and Sold never exceeds it.
type SeatType struct {
	bun.BaseModel `bun:"table:seat_types"`

	ShowID   uint64 `bun:"show_id,pk" json:"show_id"`
	ID       uint64 `bun:"id,pk" json:"id"`
	Name     string `bun:"name,notnull" json:"name"`
	Price    uint64 `bun:"price,notnull" json:"price"`
	Capacity uint32 `bun:"capacity,notnull" json:"capacity"`
	Sold     uint32 `bun:"sold,notnull" json:"sold"`
}

// SeatAllocation records the single successful reservation of a seat.
type SeatAllocation struct {
	bun.BaseModel `bun:"table:seat_allocations"`

	ID         int64     `bun:"id,pk,autoincrement"`
	ShowID     uint64    `bun:"show_id,notnull,unique:seat_key"`
	SeatTypeID uint64    `bun:"seat_type_id,notnull,unique:seat_key"`
	SeatNum    uint32    `bun:"seat_num,notnull,unique:seat_key"`
	Holder     string    `bun:"holder,notnull"`
	ReservedAt time.Time `bun:"reserved_at,notnull"`
}
