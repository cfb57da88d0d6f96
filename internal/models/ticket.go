package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusCheckedIn TicketStatus = "checked_in"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Ticket is created once at purchase time. Everything except Status and the
// audit timestamps is immutable; ownership is fixed at issuance.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            uint64       `bun:"id,pk,autoincrement" json:"id"`
	ShowID        uint64       `bun:"show_id,notnull" json:"show_id"`
	SeatTypeID    uint64       `bun:"seat_type_id,notnull" json:"seat_type_id"`
	SeatNum       uint32       `bun:"seat_num,notnull" json:"seat_num"`
	SeatName      string       `bun:"seat_name,notnull" json:"seat_name"`
	BuyerIdentity string       `bun:"buyer_identity,notnull" json:"buyer_identity"`
	BuyerName     string       `bun:"buyer_name,notnull" json:"buyer_name"`
	PricePaid     uint64       `bun:"price_paid,notnull" json:"price_paid"`
	Status        TicketStatus `bun:"status,notnull" json:"status"`
	IssuedAt      time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	CheckedInAt   time.Time    `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`
	CheckedInBy   string       `bun:"checked_in_by,nullzero" json:"checked_in_by,omitempty"`
	CancelledAt   time.Time    `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
}

// IssueRequest carries the purchase facts handed to the ledger after a
// successful reservation and price check.
type IssueRequest struct {
	ShowID        uint64
	SeatTypeID    uint64
	SeatNum       uint32
	SeatName      string
	BuyerIdentity string
	BuyerName     string
	PricePaid     uint64
}

type PurchaseRequest struct {
	ShowID        uint64 `json:"-"`
	SeatTypeID    uint64 `json:"-"`
	SeatNum       uint32 `json:"seat_num"`
	SeatName      string `json:"seat_name"`
	BuyerIdentity string `json:"buyer_identity"`
	BuyerName     string `json:"buyer_name"`
	PricePaid     uint64 `json:"price_paid"`
}

// TicketStatusCount is one row of a per-show status breakdown.
type TicketStatusCount struct {
	Status TicketStatus `bun:"status" json:"status"`
	Count  int          `bun:"count" json:"count"`
}
