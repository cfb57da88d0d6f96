// Package admission verifies check-in codes at the gate and admits the
// ticket holder.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-admission/internal/checkin"
	"ms-admission/internal/kafka"
	"ms-admission/internal/logger"
	"ms-admission/internal/metrics"
	"ms-admission/internal/models"
)

type TicketLedger interface {
	GetTicket(ctx context.Context, id uint64) (*models.Ticket, error)
	MarkCheckedIn(ctx context.Context, id uint64, staff string) (*models.Ticket, error)
}

type StaffRoster interface {
	IsAuthorizedGateStaff(ctx context.Context, identity string) (bool, error)
}

type NonceGuard interface {
	Check(nonce string) error
}

type AdmitRequest struct {
	StaffIdentity string `json:"-"`
	TicketID      uint64 `json:"ticket_id"`
	Nonce         string `json:"nonce"`
	Signature     string `json:"signature"`
}

type Result struct {
	TicketID      uint64    `json:"ticket_id"`
	ShowID        uint64    `json:"show_id"`
	SeatTypeID    uint64    `json:"seat_type_id"`
	SeatNum       uint32    `json:"seat_num"`
	SeatName      string    `json:"seat_name"`
	BuyerName     string    `json:"buyer_name"`
	BuyerIdentity string    `json:"buyer_identity"`
	Staff         string    `json:"staff"`
	CheckedInAt   time.Time `json:"checked_in_at"`
}

type Verifier struct {
	Ledger        TicketLedger
	Staff         StaffRoster
	Nonces        NonceGuard
	Protocol      checkin.Protocol
	Producer      kafka.Publisher
	RejectedTopic string
	Logger        *logger.Logger
}

// Admit checks a presented code against the stored ticket and, if the
// ticket's buyer signed it, marks the ticket checked in. Only the final
// step writes; every earlier failure leaves the ticket untouched.
func (v *Verifier) Admit(ctx context.Context, req AdmitRequest) (*Result, error) {
	result, err := v.admit(ctx, req)
	metrics.AdmissionAttempts.WithLabelValues(outcome(err)).Inc()
	return result, err
}

func (v *Verifier) admit(ctx context.Context, req AdmitRequest) (*Result, error) {
	authorized, err := v.Staff.IsAuthorizedGateStaff(ctx, req.StaffIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to check staff: %w", err)
	}
	if !authorized {
		v.Logger.LogSecurity("UNAUTHORIZED_STAFF", fmt.Sprintf("%q attempted to admit ticket %d", req.StaffIdentity, req.TicketID))
		return nil, fmt.Errorf("%w: %s", models.ErrUnauthorizedStaff, req.StaffIdentity)
	}

	ticket, err := v.Ledger.GetTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	switch ticket.Status {
	case models.TicketStatusCheckedIn:
		v.Logger.LogAdmission(ticket.ID, "double admission attempt, checked in by "+ticket.CheckedInBy)
		return nil, fmt.Errorf("%w: ticket %d", models.ErrAlreadyCheckedIn, ticket.ID)
	case models.TicketStatusCancelled:
		v.Logger.LogAdmission(ticket.ID, "cancelled ticket presented")
		return nil, fmt.Errorf("%w: ticket %d", models.ErrTicketCancelled, ticket.ID)
	}

	if err := v.Nonces.Check(req.Nonce); err != nil {
		v.reject(ctx, *ticket, req.StaffIdentity, err)
		return nil, err
	}

	sig, err := checkin.ParseSignature(req.Signature)
	if err != nil {
		v.Logger.LogProtocol(checkin.ReasonEncoding, fmt.Sprintf("ticket %d: %v", ticket.ID, err))
		v.reject(ctx, *ticket, req.StaffIdentity, err)
		return nil, err
	}

	rec := v.Protocol.Recover(checkin.FieldsFromTicket(*ticket), req.Nonce, sig)
	if rec.Kind == checkin.Malformed {
		v.Logger.LogProtocol(rec.Reason, fmt.Sprintf("ticket %d: %s", ticket.ID, rec.Detail))
		v.reject(ctx, *ticket, req.StaffIdentity, rec.Err())
		return nil, rec.Err()
	}

	if !rec.Identity.Equal(ticket.BuyerIdentity) {
		err := fmt.Errorf("%w: ticket %d signed by %s", models.ErrBuyerMismatch, ticket.ID, rec.Identity)
		v.Logger.LogSecurity("BUYER_MISMATCH", fmt.Sprintf("ticket %d owned by %s presented with code signed by %s", ticket.ID, ticket.BuyerIdentity, rec.Identity))
		v.reject(ctx, *ticket, req.StaffIdentity, err)
		return nil, err
	}

	checked, err := v.Ledger.MarkCheckedIn(ctx, ticket.ID, req.StaffIdentity)
	if err != nil {
		return nil, err
	}

	v.Logger.LogAdmission(checked.ID, fmt.Sprintf("admitted %s by %s", rec.Identity, req.StaffIdentity))
	return &Result{
		TicketID:      checked.ID,
		ShowID:        checked.ShowID,
		SeatTypeID:    checked.SeatTypeID,
		SeatNum:       checked.SeatNum,
		SeatName:      checked.SeatName,
		BuyerName:     checked.BuyerName,
		BuyerIdentity: rec.Identity.String(),
		Staff:         req.StaffIdentity,
		CheckedInAt:   checked.CheckedInAt,
	}, nil
}

func (v *Verifier) reject(ctx context.Context, ticket models.Ticket, staff string, cause error) {
	event := models.NewTicketEvent("checkin.rejected", ticket)
	event.Actor = staff
	event.Reason = cause.Error()
	if err := v.Producer.Publish(ctx, v.RejectedTopic, strconv.FormatUint(ticket.ID, 10), event); err != nil {
		v.Logger.Error("KAFKA", fmt.Sprintf("Rejection for ticket %d not published: %v", ticket.ID, err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, models.ErrBuyerMismatch):
		return "buyer_mismatch"
	case errors.Is(err, checkin.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, checkin.ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, models.ErrNonceRejected):
		return "nonce_rejected"
	case errors.Is(err, models.ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, models.ErrTicketCancelled):
		return "cancelled"
	case errors.Is(err, models.ErrTicketNotFound):
		return "not_found"
	case errors.Is(err, models.ErrUnauthorizedStaff):
		return "unauthorized_staff"
	default:
		return "error"
	}
}
