package ticket_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-admission/internal/admission"
	"ms-admission/internal/auth"
	"ms-admission/internal/checkin"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	tickets "ms-admission/internal/tickets/service"
	"ms-admission/internal/utils"
)

type SoldCounter interface {
	Sold(ctx context.Context, showID, seatTypeID uint64) (uint32, error)
}

type NonceSource interface {
	Current() (string, error)
}

type Handler struct {
	TicketService *tickets.TicketService
	Inventory     SoldCounter
	Verifier      *admission.Verifier
	Staff         StaffDirectory
	Shows         ShowCatalog
	Nonces        NonceSource
	Protocol      checkin.Protocol
	Logger        *logger.Logger
}

// PurchaseTicket reserves the requested seat and issues a ticket.
// Expected POST body: {"seat_num":3,"seat_name":"A3","buyer_identity":"0x…","buyer_name":"John Doe","price_paid":100}
func (h *Handler) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	showID, seatTypeID, ok := h.seatTypeParams(w, r)
	if !ok {
		return
	}

	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	req.ShowID = showID
	req.SeatTypeID = seatTypeID

	ticket, err := h.TicketService.Purchase(r.Context(), req)
	if err != nil {
		h.fail(w, "Purchase failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket issued", ticket))
}

func (h *Handler) GetSold(w http.ResponseWriter, r *http.Request) {
	showID, seatTypeID, ok := h.seatTypeParams(w, r)
	if !ok {
		return
	}
	sold, err := h.Inventory.Sold(r.Context(), showID, seatTypeID)
	if err != nil {
		h.fail(w, "Could not read sold count", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Sold count", map[string]uint32{"sold": sold}))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := h.uintParam(w, r, "ticketId")
	if !ok {
		return
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.fail(w, "Ticket lookup failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket", ticket))
}

func (h *Handler) ListTicketsByBuyer(w http.ResponseWriter, r *http.Request) {
	identity, err := checkin.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		h.fail(w, "Invalid buyer identity", err)
		return
	}
	list, err := h.TicketService.GetTicketsByBuyer(r.Context(), identity.String())
	if err != nil {
		h.fail(w, "Ticket lookup failed", err)
		return
	}
	if list == nil {
		list = []models.Ticket{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tickets", list))
}

// CheckinMessage returns the unsigned message and hash the buyer signs for
// the given nonce.
func (h *Handler) CheckinMessage(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := h.uintParam(w, r, "ticketId")
	if !ok {
		return
	}
	nonce := r.URL.Query().Get("nonce")
	if nonce == "" {
		h.badRequest(w, "nonce query parameter is required")
		return
	}

	ticket, err := h.TicketService.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.fail(w, "Ticket lookup failed", err)
		return
	}
	code, _, err := h.Protocol.Unsigned(checkin.FieldsFromTicket(*ticket), nonce)
	if err != nil {
		h.fail(w, "Could not build check-in message", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Check-in message", code))
}

// CurrentNonce returns the nonce gate staff display to buyers.
func (h *Handler) CurrentNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := h.Nonces.Current()
	if err != nil {
		h.fail(w, "Could not produce nonce", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Gate nonce", map[string]string{"nonce": nonce}))
}

// CheckinTicket verifies a presented code and admits the ticket holder.
// Expected POST body: {"ticket_id":1,"nonce":"4821","signature":"0x…"}
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	var req admission.AdmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if req.Signature == "" || req.Nonce == "" {
		h.badRequest(w, "nonce and signature are required")
		return
	}
	req.StaffIdentity = auth.StaffIdentity(r.Context())

	result, err := h.Verifier.Admit(r.Context(), req)
	if err != nil {
		h.fail(w, "Check-in rejected", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checkin successful", result))
}

// CancelTicket cancels a valid ticket on behalf of the organizer.
// Expected POST body (optional): {"reason":"..."}
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := h.uintParam(w, r, "ticketId")
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.badRequest(w, "Invalid request body: "+err.Error())
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "cancelled by " + auth.StaffIdentity(r.Context())
	}

	ticket, err := h.TicketService.Cancel(r.Context(), ticketID, body.Reason)
	if err != nil {
		h.fail(w, "Cancellation failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket cancelled", ticket))
}

// ShowCheckins returns ticket counts per status for a show.
func (h *Handler) ShowCheckins(w http.ResponseWriter, r *http.Request) {
	showID, ok := h.uintParam(w, r, "showId")
	if !ok {
		return
	}
	counts, err := h.TicketService.CountByStatus(r.Context(), showID)
	if err != nil {
		h.fail(w, "Could not count tickets", err)
		return
	}
	if counts == nil {
		counts = []models.TicketStatusCount{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket status counts", counts))
}

func (h *Handler) seatTypeParams(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	showID, ok := h.uintParam(w, r, "showId")
	if !ok {
		return 0, 0, false
	}
	seatTypeID, ok := h.uintParam(w, r, "seatTypeId")
	return showID, seatTypeID, ok
}

func (h *Handler) uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		h.badRequest(w, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return v, true
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(msg, "bad_request", msg))
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", msg, err))
		utils.WriteJSON(w, status, utils.ErrorResponse(msg, code, "internal error"))
		return
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(msg, code, err.Error()))
}
