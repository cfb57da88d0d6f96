package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-admission/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateTicket inserts ticket and fills in its database-assigned id.
func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, id uint64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// TransitionTicket moves a valid ticket to status in one conditional update.
// It returns false when the ticket was not valid (or does not exist); the
// caller re-reads to find out which.
func (d *DB) TransitionTicket(ctx context.Context, id uint64, status models.TicketStatus, actor string, at time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Where("status = ?", models.TicketStatusValid)

	switch status {
	case models.TicketStatusCheckedIn:
		q = q.Set("checked_in_at = ?", at).Set("checked_in_by = ?", actor)
	case models.TicketStatusCancelled:
		q = q.Set("cancelled_at = ?", at)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetTicketsByBuyer matches identities case-insensitively.
func (d *DB) GetTicketsByBuyer(ctx context.Context, identity string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("LOWER(buyer_identity) = LOWER(?)", identity).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) CountByStatus(ctx context.Context, showID uint64) ([]models.TicketStatusCount, error) {
	var counts []models.TicketStatusCount
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Where("show_id = ?", showID).
		Group("status").
		Order("status").
		Scan(ctx, &counts)
	if err != nil {
		return nil, err
	}
	return counts, nil
}
