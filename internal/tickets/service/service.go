package tickets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-admission/internal/checkin"
	"ms-admission/internal/config"
	"ms-admission/internal/kafka"
	"ms-admission/internal/logger"
	"ms-admission/internal/metrics"
	"ms-admission/internal/models"
)

type TicketDBLayer interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByID(ctx context.Context, id uint64) (*models.Ticket, error)
	TransitionTicket(ctx context.Context, id uint64, status models.TicketStatus, actor string, at time.Time) (bool, error)
	GetTicketsByBuyer(ctx context.Context, identity string) ([]models.Ticket, error)
	CountByStatus(ctx context.Context, showID uint64) ([]models.TicketStatusCount, error)
}

// SeatInventory is the part of the inventory the ledger drives.
type SeatInventory interface {
	Reserve(ctx context.Context, showID, seatTypeID uint64, seatNum uint32, holder string) (uint32, error)
	Release(ctx context.Context, showID, seatTypeID uint64, seatNum uint32) error
}

// PriceCatalog supplies the price a purchase must match.
type PriceCatalog interface {
	GetSeatType(ctx context.Context, showID, seatTypeID uint64) (*models.SeatType, error)
}

type TicketService struct {
	DB        TicketDBLayer
	Inventory SeatInventory
	Catalog   PriceCatalog
	Producer  kafka.Publisher
	Topics    config.TopicConfig
	Logger    *logger.Logger

	// ReclaimOnCancel returns a cancelled ticket's seat to inventory. When
	// false the seat stays bound to the cancelled ticket.
	ReclaimOnCancel bool

	now func() time.Time
}

func NewTicketService(db TicketDBLayer, inv SeatInventory, catalog PriceCatalog, producer kafka.Publisher, topics config.TopicConfig, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:        db,
		Inventory: inv,
		Catalog:   catalog,
		Producer:  producer,
		Topics:    topics,
		Logger:    log,
		now:       time.Now,
	}
}

// Purchase checks the price, reserves the seat and issues the ticket. If
// issuance fails the reservation is released again.
func (s *TicketService) Purchase(ctx context.Context, req models.PurchaseRequest) (*models.Ticket, error) {
	identity, err := checkin.ParseIdentity(req.BuyerIdentity)
	if err != nil {
		return nil, err
	}
	req.BuyerIdentity = identity.String()

	seatType, err := s.Catalog.GetSeatType(ctx, req.ShowID, req.SeatTypeID)
	if err != nil {
		return nil, err
	}
	if req.PricePaid != seatType.Price {
		return nil, fmt.Errorf("%w: paid %d, seat type %q costs %d", models.ErrPriceMismatch, req.PricePaid, seatType.Name, seatType.Price)
	}

	issue := models.IssueRequest{
		ShowID:        req.ShowID,
		SeatTypeID:    req.SeatTypeID,
		SeatNum:       req.SeatNum,
		SeatName:      req.SeatName,
		BuyerIdentity: req.BuyerIdentity,
		BuyerName:     req.BuyerName,
		PricePaid:     req.PricePaid,
	}
	if err := issueFields(issue).Validate(); err != nil {
		return nil, err
	}

	if _, err := s.Inventory.Reserve(ctx, req.ShowID, req.SeatTypeID, req.SeatNum, req.BuyerIdentity); err != nil {
		return nil, err
	}

	ticket, err := s.issue(ctx, issue)
	if err != nil {
		if relErr := s.Inventory.Release(ctx, req.ShowID, req.SeatTypeID, req.SeatNum); relErr != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("Seat %d:%d:%d stuck after failed issuance: %v", req.ShowID, req.SeatTypeID, req.SeatNum, relErr))
		}
		return nil, err
	}
	return ticket, nil
}

// Issue stores a new valid ticket. The caller must already hold the seat
// reservation and have checked the price.
func (s *TicketService) Issue(ctx context.Context, req models.IssueRequest) (uint64, error) {
	if err := issueFields(req).Validate(); err != nil {
		return 0, err
	}
	ticket, err := s.issue(ctx, req)
	if err != nil {
		return 0, err
	}
	return ticket.ID, nil
}

func (s *TicketService) issue(ctx context.Context, req models.IssueRequest) (*models.Ticket, error) {
	ticket := &models.Ticket{
		ShowID:        req.ShowID,
		SeatTypeID:    req.SeatTypeID,
		SeatNum:       req.SeatNum,
		SeatName:      req.SeatName,
		BuyerIdentity: req.BuyerIdentity,
		BuyerName:     req.BuyerName,
		PricePaid:     req.PricePaid,
		Status:        models.TicketStatusValid,
		IssuedAt:      s.now().UTC(),
	}
	if err := s.DB.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	metrics.TicketTransitions.WithLabelValues(string(models.TicketStatusValid)).Inc()
	s.Logger.LogTicket("ISSUED", ticket.ID, fmt.Sprintf("seat %d:%d:%d to %s", ticket.ShowID, ticket.SeatTypeID, ticket.SeatNum, ticket.BuyerIdentity))
	s.publish(ctx, s.Topics.TicketIssued, models.NewTicketEvent("ticket.issued", *ticket))
	return ticket, nil
}

func (s *TicketService) GetTicket(ctx context.Context, id uint64) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, id)
}

// MarkCheckedIn moves a valid ticket to checked in. A second call fails
// with ErrAlreadyCheckedIn instead of succeeding again.
func (s *TicketService) MarkCheckedIn(ctx context.Context, id uint64, staff string) (*models.Ticket, error) {
	ticket, err := s.transition(ctx, id, models.TicketStatusCheckedIn, staff)
	if err != nil {
		return nil, err
	}

	event := models.NewTicketEvent("ticket.checked_in", *ticket)
	event.Actor = staff
	s.publish(ctx, s.Topics.TicketCheckedIn, event)
	return ticket, nil
}

// Cancel moves a valid ticket to cancelled and, with ReclaimOnCancel,
// frees its seat.
func (s *TicketService) Cancel(ctx context.Context, id uint64, reason string) (*models.Ticket, error) {
	ticket, err := s.transition(ctx, id, models.TicketStatusCancelled, "")
	if err != nil {
		return nil, err
	}

	if s.ReclaimOnCancel {
		if err := s.Inventory.Release(ctx, ticket.ShowID, ticket.SeatTypeID, ticket.SeatNum); err != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("Ticket %d cancelled but seat not reclaimed: %v", id, err))
		}
	}

	event := models.NewTicketEvent("ticket.cancelled", *ticket)
	event.Reason = reason
	s.publish(ctx, s.Topics.TicketCancelled, event)
	return ticket, nil
}

// HandleRefund cancels the refunded ticket. Redelivered refunds for an
// already cancelled ticket are ignored.
func (s *TicketService) HandleRefund(ctx context.Context, refund models.RefundCompleted) error {
	_, err := s.Cancel(ctx, refund.TicketID, "refund "+refund.RefundID)
	if errors.Is(err, models.ErrTicketCancelled) {
		return nil
	}
	return err
}

func (s *TicketService) GetTicketsByBuyer(ctx context.Context, identity string) ([]models.Ticket, error) {
	tickets, err := s.DB.GetTicketsByBuyer(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for %s: %w", identity, err)
	}
	return tickets, nil
}

func (s *TicketService) CountByStatus(ctx context.Context, showID uint64) ([]models.TicketStatusCount, error) {
	return s.DB.CountByStatus(ctx, showID)
}

func (s *TicketService) transition(ctx context.Context, id uint64, status models.TicketStatus, actor string) (*models.Ticket, error) {
	ok, err := s.DB.TransitionTicket(ctx, id, status, actor, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket %d: %w", id, err)
	}

	ticket, err := s.DB.GetTicketByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, statusError(ticket)
	}

	metrics.TicketTransitions.WithLabelValues(string(status)).Inc()
	s.Logger.LogTicket(string(status), id, "status changed from valid")
	return ticket, nil
}

func statusError(ticket *models.Ticket) error {
	switch ticket.Status {
	case models.TicketStatusCheckedIn:
		return fmt.Errorf("%w: ticket %d at %s", models.ErrAlreadyCheckedIn, ticket.ID, ticket.CheckedInAt.Format(time.RFC3339))
	case models.TicketStatusCancelled:
		return fmt.Errorf("%w: ticket %d", models.ErrTicketCancelled, ticket.ID)
	}
	return fmt.Errorf("ticket %d in unexpected status %q", ticket.ID, ticket.Status)
}

func (s *TicketService) publish(ctx context.Context, topic string, event models.TicketEvent) {
	if err := s.Producer.Publish(ctx, topic, strconv.FormatUint(event.TicketID, 10), event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Event %s for ticket %d not published: %v", event.Type, event.TicketID, err))
	}
}

func issueFields(req models.IssueRequest) checkin.Fields {
	return checkin.Fields{
		ShowID:        req.ShowID,
		SeatTypeID:    req.SeatTypeID,
		SeatNum:       req.SeatNum,
		SeatName:      req.SeatName,
		BuyerName:     req.BuyerName,
		BuyerIdentity: req.BuyerIdentity,
	}
}
