package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-admission/internal/admission"
	"ms-admission/internal/models"
	"ms-admission/internal/utils"
)

var (
	errShowExists     = errors.New("show already exists")
	errSeatTypeExists = errors.New("seat type already exists")
)

type ShowCatalog interface {
	CreateShow(ctx context.Context, show *models.Show) error
	GetShow(ctx context.Context, showID uint64) (*models.Show, error)
	AddSeatType(ctx context.Context, seatType *models.SeatType) error
	Schedule(ctx context.Context, showID uint64) error
	Cancel(ctx context.Context, showID uint64) error
	ListSeatTypes(ctx context.Context, showID uint64) ([]models.SeatType, error)
}

type StaffDirectory interface {
	admission.StaffRoster
	AddStaff(ctx context.Context, identity, name string) (*models.GateStaff, error)
	Deactivate(ctx context.Context, identity string) error
	List(ctx context.Context) ([]models.GateStaff, error)
}

// CreateShow adds an unscheduled show.
// Expected POST body: {"id":1,"name":"Matinee"}
func (h *Handler) CreateShow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if body.Name == "" {
		h.badRequest(w, "name is required")
		return
	}

	if _, err := h.Shows.GetShow(r.Context(), body.ID); err == nil {
		h.fail(w, "Show not created", fmt.Errorf("%w: %d", errShowExists, body.ID))
		return
	} else if !errors.Is(err, models.ErrShowNotFound) {
		h.fail(w, "Show not created", err)
		return
	}

	show := &models.Show{ID: body.ID, Name: body.Name}
	if err := h.Shows.CreateShow(r.Context(), show); err != nil {
		h.fail(w, "Show not created", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Show created", show))
}

func (h *Handler) GetShow(w http.ResponseWriter, r *http.Request) {
	showID, ok := h.uintParam(w, r, "showId")
	if !ok {
		return
	}
	show, err := h.Shows.GetShow(r.Context(), showID)
	if err != nil {
		h.fail(w, "Show lookup failed", err)
		return
	}
	seatTypes, err := h.Shows.ListSeatTypes(r.Context(), showID)
	if err != nil {
		h.fail(w, "Show lookup failed", err)
		return
	}
	if seatTypes == nil {
		seatTypes = []models.SeatType{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Show", map[string]interface{}{
		"show":       show,
		"seat_types": seatTypes,
	}))
}

// AddSeatType adds a tier to an unscheduled show.
// Expected POST body: {"id":0,"name":"Standard","price":100,"capacity":100}
func (h *Handler) AddSeatType(w http.ResponseWriter, r *http.Request) {
	showID, ok := h.uintParam(w, r, "showId")
	if !ok {
		return
	}
	var seatType models.SeatType
	if err := json.NewDecoder(r.Body).Decode(&seatType); err != nil {
		h.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if seatType.Capacity == 0 {
		h.badRequest(w, "capacity must be positive")
		return
	}
	seatType.ShowID = showID

	existing, err := h.Shows.ListSeatTypes(r.Context(), showID)
	if err != nil {
		h.fail(w, "Seat type not added", err)
		return
	}
	for _, st := range existing {
		if st.ID == seatType.ID {
			h.fail(w, "Seat type not added", fmt.Errorf("%w: %d:%d", errSeatTypeExists, showID, st.ID))
			return
		}
	}
	if err := h.Shows.AddSeatType(r.Context(), &seatType); err != nil {
		h.fail(w, "Seat type not added", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Seat type added", seatType))
}

func (h *Handler) ScheduleShow(w http.ResponseWriter, r *http.Request) {
	h.changeShow(w, r, "Show scheduled", h.Shows.Schedule)
}

func (h *Handler) CancelShow(w http.ResponseWriter, r *http.Request) {
	h.changeShow(w, r, "Show cancelled", h.Shows.Cancel)
}

func (h *Handler) changeShow(w http.ResponseWriter, r *http.Request, msg string, change func(context.Context, uint64) error) {
	showID, ok := h.uintParam(w, r, "showId")
	if !ok {
		return
	}
	if err := change(r.Context(), showID); err != nil {
		h.fail(w, "Show status not changed", err)
		return
	}
	show, err := h.Shows.GetShow(r.Context(), showID)
	if err != nil {
		h.fail(w, "Show lookup failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(msg, show))
}

// AddStaff registers or reactivates a gate staff member.
// Expected POST body: {"identity":"0x…","name":"North Gate"}
func (h *Handler) AddStaff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity string `json:"identity"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	member, err := h.Staff.AddStaff(r.Context(), body.Identity, body.Name)
	if err != nil {
		h.fail(w, "Staff not added", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Staff added", member))
}

func (h *Handler) DeactivateStaff(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if err := h.Staff.Deactivate(r.Context(), identity); err != nil {
		h.fail(w, "Staff not deactivated", err)
		return
	}
	h.Logger.LogSecurity("STAFF_DEACTIVATED", identity)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Staff deactivated", nil))
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	members, err := h.Staff.List(r.Context())
	if err != nil {
		h.fail(w, "Could not list staff", err)
		return
	}
	if members == nil {
		members = []models.GateStaff{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Staff", members))
}
