package ticket_api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-admission/internal/admission"
	"ms-admission/internal/auth"
	"ms-admission/internal/checkin"
	"ms-admission/internal/checkin/nonce"
	"ms-admission/internal/config"
	"ms-admission/internal/database/migrations"
	"ms-admission/internal/inventory"
	inventorydb "ms-admission/internal/inventory/db"
	"ms-admission/internal/kafka"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/shows"
	"ms-admission/internal/staff"
	ticketdb "ms-admission/internal/tickets/db"
	tickets "ms-admission/internal/tickets/service"
	"ms-admission/internal/utils"
)

const (
	johnKey   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	john      = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	otherKey  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	gateStaff = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

var jwtSecret = []byte("handler-test-secret")

type testServer struct {
	router   http.Handler
	protocol checkin.Protocol
	roster   *staff.Roster
	token    string
}

func newTestServer(t *testing.T) *testServer {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	require.NoError(t, migrations.CreateSchema(ctx, bunDB))
	require.NoError(t, migrations.Seed(ctx, bunDB))

	cfg := config.Load()
	log := logger.NewWriterLogger(io.Discard)
	catalog := &shows.Store{Bun: bunDB}
	inv := inventory.New(catalog, &inventorydb.DB{Bun: bunDB}, log)
	svc := tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, inv, catalog, kafka.NopPublisher{}, cfg.Kafka.Topics, log)
	guard := nonce.NewGuard(nonce.AnyPolicy{Digits: 4})
	protocol := checkin.NewProtocol(false)
	roster := &staff.Roster{Bun: bunDB}

	h := &Handler{
		TicketService: svc,
		Inventory:     inv,
		Verifier: &admission.Verifier{
			Ledger:        svc,
			Staff:         roster,
			Nonces:        guard,
			Protocol:      protocol,
			Producer:      kafka.NopPublisher{},
			RejectedTopic: cfg.Kafka.Topics.CheckinRejected,
			Logger:        log,
		},
		Staff:    roster,
		Shows:    catalog,
		Nonces:   guard,
		Protocol: protocol,
		Logger:   log,
	}
	token, err := auth.IssueStaffToken(jwtSecret, gateStaff, time.Hour)
	require.NoError(t, err)

	return &testServer{
		router:   NewRouter(h, auth.Middleware(&auth.HMACVerifier{Secret: jwtSecret})),
		protocol: protocol,
		roster:   roster,
		token:    token,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, staffToken bool) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	token := ""
	if staffToken {
		token = s.token
	}
	return s.doAs(t, token, method, path, body)
}

func (s *testServer) doAs(t *testing.T, token, method, path string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp utils.APIResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func decodeData(t *testing.T, resp utils.APIResponse, into interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, into))
}

func (s *testServer) purchase(t *testing.T, seat uint32) models.Ticket {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/api/shows/0/seat-types/0/tickets", map[string]interface{}{
		"seat_num":       seat,
		"seat_name":      fmt.Sprintf("A%d", seat),
		"buyer_identity": "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
		"buyer_name":     "John Doe",
		"price_paid":     100,
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ticket models.Ticket
	decodeData(t, resp, &ticket)
	return ticket
}

func (s *testServer) sign(t *testing.T, ticket models.Ticket, keyHex, n string) string {
	t.Helper()
	key, err := checkin.ParsePrivateKey(keyHex)
	require.NoError(t, err)
	code, err := s.protocol.NewCode(checkin.FieldsFromTicket(ticket), n, key)
	require.NoError(t, err)
	return code.Signature
}

func TestPurchaseAndView(t *testing.T) {
	s := newTestServer(t)
	ticket := s.purchase(t, 3)

	assert.Equal(t, john, ticket.BuyerIdentity)
	assert.Equal(t, models.TicketStatusValid, ticket.Status)

	rec, resp := s.do(t, http.MethodGet, fmt.Sprintf("/api/tickets/%d", ticket.ID), nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	var viewed models.Ticket
	decodeData(t, resp, &viewed)
	assert.Equal(t, ticket.ID, viewed.ID)

	rec, resp = s.do(t, http.MethodGet, "/api/shows/0/seat-types/0/sold", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	var sold map[string]uint32
	decodeData(t, resp, &sold)
	assert.Equal(t, uint32(1), sold["sold"])

	rec, resp = s.do(t, http.MethodGet, "/api/tickets/buyer/"+john, nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []models.Ticket
	decodeData(t, resp, &list)
	assert.Len(t, list, 1)
}

func TestPurchaseErrors(t *testing.T) {
	s := newTestServer(t)
	s.purchase(t, 3)

	cases := []struct {
		name   string
		path   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{"seat taken", "/api/shows/0/seat-types/0/tickets",
			map[string]interface{}{"seat_num": 3, "seat_name": "A3", "buyer_identity": john, "buyer_name": "Jane", "price_paid": 100},
			http.StatusConflict, "seat_unavailable"},
		{"out of range", "/api/shows/0/seat-types/1/tickets",
			map[string]interface{}{"seat_num": 21, "seat_name": "V21", "buyer_identity": john, "buyer_name": "Jane", "price_paid": 500},
			http.StatusConflict, "seat_unavailable"},
		{"wrong price", "/api/shows/0/seat-types/0/tickets",
			map[string]interface{}{"seat_num": 4, "seat_name": "A4", "buyer_identity": john, "buyer_name": "Jane", "price_paid": 1},
			http.StatusUnprocessableEntity, "price_mismatch"},
		{"unknown show", "/api/shows/9/seat-types/0/tickets",
			map[string]interface{}{"seat_num": 4, "seat_name": "A4", "buyer_identity": john, "buyer_name": "Jane", "price_paid": 100},
			http.StatusNotFound, "seat_type_not_found"},
		{"bad identity", "/api/shows/0/seat-types/0/tickets",
			map[string]interface{}{"seat_num": 4, "seat_name": "A4", "buyer_identity": "0x12", "buyer_name": "Jane", "price_paid": 100},
			http.StatusUnprocessableEntity, "invalid_identity"},
		{"delimiter in name", "/api/shows/0/seat-types/0/tickets",
			map[string]interface{}{"seat_num": 4, "seat_name": "A4", "buyer_identity": john, "buyer_name": "Doe, Jane", "price_paid": 100},
			http.StatusUnprocessableEntity, "malformed_message"},
		{"bad path", "/api/shows/x/seat-types/0/tickets",
			map[string]interface{}{"seat_num": 4},
			http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := s.do(t, http.MethodPost, tc.path, tc.body, false)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, resp.Code)
			assert.False(t, resp.Success)
		})
	}

	rec, resp := s.do(t, http.MethodGet, "/api/tickets/999", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ticket_not_found", resp.Code)
}

func TestCheckinFlow(t *testing.T) {
	s := newTestServer(t)
	ticket := s.purchase(t, 3)

	rec, resp := s.do(t, http.MethodGet, "/api/checkin/nonce", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var n map[string]string
	decodeData(t, resp, &n)
	require.Len(t, n["nonce"], 4)

	rec, resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/tickets/%d/checkin-message?nonce=%s", ticket.ID, n["nonce"]), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var code checkin.Code
	decodeData(t, resp, &code)
	assert.Equal(t, fmt.Sprintf("0,0,3,A3,John Doe,%s,%s", john, n["nonce"]), code.Message)

	body := map[string]interface{}{"ticket_id": ticket.ID, "nonce": n["nonce"], "signature": s.sign(t, ticket, johnKey, n["nonce"])}

	rec, _ = s.do(t, http.MethodPost, "/api/checkin", body, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := map[string]interface{}{"ticket_id": ticket.ID, "nonce": n["nonce"], "signature": s.sign(t, ticket, otherKey, n["nonce"])}
	rec, resp = s.do(t, http.MethodPost, "/api/checkin", forged, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "buyer_mismatch", resp.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"ticket_id": ticket.ID, "nonce": n["nonce"]}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", resp.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"ticket_id": ticket.ID, "nonce": n["nonce"], "signature": "0x1234"}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_signature", resp.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/checkin", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result admission.Result
	decodeData(t, resp, &result)
	assert.Equal(t, gateStaff, result.Staff)
	assert.Equal(t, "John Doe", result.BuyerName)

	rec, resp = s.do(t, http.MethodPost, "/api/checkin", body, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_checked_in", resp.Code)

	rec, resp = s.do(t, http.MethodGet, "/api/shows/0/checkins", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var counts []models.TicketStatusCount
	decodeData(t, resp, &counts)
	require.Len(t, counts, 1)
	assert.Equal(t, models.TicketStatusCheckedIn, counts[0].Status)
	assert.Equal(t, 1, counts[0].Count)
}

func TestCancelThenCheckin(t *testing.T) {
	s := newTestServer(t)
	ticket := s.purchase(t, 5)

	rec, resp := s.do(t, http.MethodPost, fmt.Sprintf("/api/tickets/%d/cancel", ticket.ID), map[string]string{"reason": "refund"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled models.Ticket
	decodeData(t, resp, &cancelled)
	assert.Equal(t, models.TicketStatusCancelled, cancelled.Status)

	rec, resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/tickets/%d/cancel", ticket.ID), nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ticket_cancelled", resp.Code)

	body := map[string]interface{}{"ticket_id": ticket.ID, "nonce": "0001", "signature": s.sign(t, ticket, johnKey, "0001")}
	rec, resp = s.do(t, http.MethodPost, "/api/checkin", body, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ticket_cancelled", resp.Code)
}

func TestStaffRoutesRequireRosterMembership(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	ticket := s.purchase(t, 3)

	const southGate = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	_, err := s.roster.AddStaff(ctx, southGate, "South Gate")
	require.NoError(t, err)
	deactivated, err := auth.IssueStaffToken(jwtSecret, southGate, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.roster.Deactivate(ctx, southGate))

	stranger, err := auth.IssueStaffToken(jwtSecret, "0x0000000000000000000000000000000000000001", time.Hour)
	require.NoError(t, err)

	cancelPath := fmt.Sprintf("/api/tickets/%d/cancel", ticket.ID)
	for name, token := range map[string]string{"not on roster": stranger, "deactivated": deactivated} {
		t.Run(name, func(t *testing.T) {
			rec, resp := s.doAs(t, token, http.MethodPost, cancelPath, map[string]string{"reason": "resale"})
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "unauthorized_staff", resp.Code)

			rec, _ = s.doAs(t, token, http.MethodGet, "/api/checkin/nonce", nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			rec, _ = s.doAs(t, token, http.MethodGet, "/api/shows/0/checkins", nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}

	rec, resp := s.do(t, http.MethodGet, fmt.Sprintf("/api/tickets/%d", ticket.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var viewed models.Ticket
	decodeData(t, resp, &viewed)
	assert.Equal(t, models.TicketStatusValid, viewed.Status)

	rec, _ = s.do(t, http.MethodGet, "/api/shows/0/seat-types/0/sold", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminShowLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/admin/shows", map[string]interface{}{"id": 1, "name": "Matinee"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var show models.Show
	decodeData(t, resp, &show)
	assert.Equal(t, models.ShowStatusUnscheduled, show.Status)

	rec, resp = s.do(t, http.MethodPost, "/api/admin/shows", map[string]interface{}{"id": 1, "name": "Again"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "show_exists", resp.Code)

	seatType := map[string]interface{}{"id": 0, "name": "Balcony", "price": 40, "capacity": 2}
	rec, _ = s.do(t, http.MethodPost, "/api/admin/shows/1/seat-types", seatType, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, resp = s.do(t, http.MethodPost, "/api/admin/shows/1/seat-types", seatType, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "seat_type_exists", resp.Code)

	buy := map[string]interface{}{"seat_num": 1, "seat_name": "B1", "buyer_identity": john, "buyer_name": "John Doe", "price_paid": 40}
	rec, resp = s.do(t, http.MethodPost, "/api/shows/1/seat-types/0/tickets", buy, false)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "show_not_schedulable", resp.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/admin/shows/1/schedule", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, resp = s.do(t, http.MethodPost, "/api/admin/shows/1/schedule", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", resp.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/shows/1/seat-types/0/tickets", buy, false)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, resp = s.do(t, http.MethodGet, "/api/shows/1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Show      models.Show       `json:"show"`
		SeatTypes []models.SeatType `json:"seat_types"`
	}
	decodeData(t, resp, &detail)
	assert.Equal(t, models.ShowStatusScheduled, detail.Show.Status)
	assert.Len(t, detail.SeatTypes, 1)
}

func TestAdminStaffRoster(t *testing.T) {
	s := newTestServer(t)
	const southGate = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	token, err := auth.IssueStaffToken(jwtSecret, southGate, time.Hour)
	require.NoError(t, err)

	rec, _ := s.doAs(t, token, http.MethodGet, "/api/checkin/nonce", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/admin/staff", map[string]string{"identity": southGate, "name": "South Gate"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, _ = s.doAs(t, token, http.MethodGet, "/api/checkin/nonce", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := s.do(t, http.MethodGet, "/api/admin/staff", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []models.GateStaff
	decodeData(t, resp, &members)
	assert.Len(t, members, 2)

	rec, _ = s.do(t, http.MethodDelete, "/api/admin/staff/"+southGate, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.doAs(t, token, http.MethodGet, "/api/checkin/nonce", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/admin/staff", map[string]string{"identity": "0x12", "name": "Bad"}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_identity", resp.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

func TestClassifyUnknownErrorIsInternal(t *testing.T) {
	status, code := classify(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)

	status, code = classify(fmt.Errorf("wrapped: %w", models.ErrUnauthorizedStaff))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "unauthorized_staff", code)
}
