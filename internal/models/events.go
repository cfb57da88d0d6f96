package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketEvent is the payload published for every ticket state change.
type TicketEvent struct {
	EventID       uuid.UUID    `json:"event_id"`
	Type          string       `json:"type"`
	TicketID      uint64       `json:"ticket_id"`
	ShowID        uint64       `json:"show_id"`
	SeatTypeID    uint64       `json:"seat_type_id"`
	SeatNum       uint32       `json:"seat_num"`
	BuyerIdentity string       `json:"buyer_identity"`
	Status        TicketStatus `json:"status"`
	Actor         string       `json:"actor,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

func NewTicketEvent(eventType string, ticket Ticket) TicketEvent {
	return TicketEvent{
		EventID:       uuid.New(),
		Type:          eventType,
		TicketID:      ticket.ID,
		ShowID:        ticket.ShowID,
		SeatTypeID:    ticket.SeatTypeID,
		SeatNum:       ticket.SeatNum,
		BuyerIdentity: ticket.BuyerIdentity,
		Status:        ticket.Status,
		OccurredAt:    time.Now().UTC(),
	}
}

// RefundCompleted is consumed from the refund bookkeeping service; a
// completed refund cancels the ticket.
type RefundCompleted struct {
	RefundID string `json:"refund_id"`
	TicketID uint64 `json:"ticket_id"`
	Reason   string `json:"reason"`
}
