package handlers

import (
	"auction-engine/internal/api/middleware"
	"auction-engine/internal/domain"
	"auction-engine/internal/domain/mock"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var now = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type stubClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type apiEnv struct {
	e     *echo.Echo
	store *memory.Store
	clock *stubClock
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	publisher := mock.NewMockEventPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	notifier := mock.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	log := logger.NewNop()
	store := memory.NewStore()
	clock := &stubClock{t: now}
	policy := domain.DefaultPolicy()
	dispatcher := services.NewEventDispatcher(store, publisher, notifier, clock, log)

	handler := NewAuctionHandler(
		services.NewAuctionManager(store, store, dispatcher, policy, clock, log),
		services.NewBidService(store, dispatcher, policy, clock, log),
		services.NewParticipationService(store, dispatcher, policy, clock, log),
		log,
	)

	e := echo.New()
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler(log)
	e.GET("/health", HealthCheck("auction-service", clock))
	handler.Register(e.Group("/api/v1"))

	return &apiEnv{e: e, store: store, clock: clock}
}

func (env *apiEnv) do(t *testing.T, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decode[ErrorResponse](t, rec)
	require.Equal(t, code, body.Error.Code)
	require.NotEmpty(t, body.Error.Message)
}

const registerBody = `{"product_id":"p1","starts_at":"2030-01-03T12:00:00Z","min_bid":10000,"lot":1,"condition":"new","min_bidders":1,"max_bidders":10}`

func (env *apiEnv) register(t *testing.T) *domain.Auction {
	t.Helper()
	env.store.AddProduct("p1", "owner")
	rec := env.do(t, http.MethodPost, "/api/v1/auctions", "owner", "", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	auction := decode[domain.Auction](t, rec)
	return &auction
}

func TestAPI_AuctionLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	auction := env.register(t)
	require.Equal(t, domain.AuctionPending, auction.Status)
	base := "/api/v1/auctions/" + auction.ID

	rec := env.do(t, http.MethodGet, base, "alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, auction.ID, decode[domain.Auction](t, rec).ID)

	rec = env.do(t, http.MethodPost, base+"/participants", "alice", "", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, domain.ParticipantJoined, decode[domain.Participant](t, rec).Status)

	rec = env.do(t, http.MethodPost, base+"/participants", "bob", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	env.clock.Set(auction.StartsAt.Add(time.Minute))

	rec = env.do(t, http.MethodPost, base+"/bids", "alice", "", `{"amount":10000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bid := decode[domain.Bid](t, rec)
	require.Equal(t, int64(10000), bid.Amount)
	require.Equal(t, "alice", bid.Bidder.UserID)

	rec = env.do(t, http.MethodPost, base+"/bids", "bob", "", `{"amount":10000}`)
	requireError(t, rec, http.StatusBadRequest, "bid_too_low")

	rec = env.do(t, http.MethodPost, base+"/bids", "bob", "", `{"amount":10500}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, base+"/high-bid", "carol", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(10500), decode[HighBidResponse](t, rec).Amount)

	rec = env.do(t, http.MethodGet, base+"/bids?limit=1", "carol", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[BidHistoryResponse](t, rec)
	require.Len(t, history.Bids, 1)
	require.Equal(t, "bob", history.Bids[0].BidderID)

	rec = env.do(t, http.MethodPost, base+"/close", "root", "admin", "")
	requireError(t, rec, http.StatusBadRequest, "auction_not_ended")

	env.clock.Set(auction.EndsAt)
	rec = env.do(t, http.MethodPost, base+"/close", "owner", "", "")
	requireError(t, rec, http.StatusForbidden, "forbidden")

	rec = env.do(t, http.MethodPost, base+"/close", "root", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[domain.CloseResult](t, rec)
	require.Equal(t, domain.AuctionCompleted, result.Status)
	require.Equal(t, "bob", *result.WinnerID)
	require.Equal(t, int64(10500), *result.FinalBid)

	rec = env.do(t, http.MethodPost, base+"/cancel", "owner", "", "")
	requireError(t, rec, http.StatusConflict, "auction_terminal")
}

func TestAPI_Participation(t *testing.T) {
	env := newAPIEnv(t)
	auction := env.register(t)
	base := "/api/v1/auctions/" + auction.ID

	rec := env.do(t, http.MethodPost, base+"/invitations", "owner", "", `{"user_id":"guest"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, domain.ParticipantInvited, decode[domain.Participant](t, rec).Status)

	rec = env.do(t, http.MethodPost, base+"/invitations", "owner", "", `{}`)
	requireError(t, rec, http.StatusBadRequest, "invalid_argument")

	rec = env.do(t, http.MethodPost, base+"/participants", "guest", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/participants", "guest", "", "")
	requireError(t, rec, http.StatusConflict, "already_joined")

	rec = env.do(t, http.MethodPost, base+"/participants", "owner", "", "")
	requireError(t, rec, http.StatusForbidden, "owner_cannot_join")

	rec = env.do(t, http.MethodDelete, base+"/participants/me", "guest", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/participants", "alice", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodDelete, base+"/participants/alice", "bob", "", "")
	requireError(t, rec, http.StatusForbidden, "not_auction_owner")

	rec = env.do(t, http.MethodDelete, base+"/participants/alice", "owner", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, base+"/participants/alice", "owner", "", "")
	requireError(t, rec, http.StatusNotFound, "participant_not_found")

	env.clock.Set(auction.StartsAt.Add(-time.Hour))
	rec = env.do(t, http.MethodPost, base+"/participants", "late", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodDelete, base+"/participants/me", "late", "", "")
	requireError(t, rec, http.StatusForbidden, "leave_lockout")

	rec = env.do(t, http.MethodPost, base+"/cancel", "owner", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.AuctionCancelled, decode[AuctionStatusResponse](t, rec).Status)
}

func TestAPI_RequestErrors(t *testing.T) {
	env := newAPIEnv(t)
	env.store.AddProduct("p1", "owner")

	tests := []struct {
		name   string
		method string
		path   string
		userID string
		role   string
		body   string
		status int
		code   string
	}{
		{
			name:   "missing caller",
			method: http.MethodPost, path: "/api/v1/auctions", body: registerBody,
			status: http.StatusUnauthorized, code: "unauthenticated",
		},
		{
			name:   "malformed body",
			method: http.MethodPost, path: "/api/v1/auctions", userID: "owner", body: `{"min_bid":`,
			status: http.StatusBadRequest, code: "invalid_argument",
		},
		{
			name:   "failed validation",
			method: http.MethodPost, path: "/api/v1/auctions", userID: "owner",
			body:   `{"product_id":"p1","starts_at":"2030-01-03T12:00:00Z","min_bid":0,"lot":1,"condition":"new","min_bidders":1,"max_bidders":10}`,
			status: http.StatusBadRequest, code: "invalid_argument",
		},
		{
			name:   "off grid start",
			method: http.MethodPost, path: "/api/v1/auctions", userID: "owner",
			body:   `{"product_id":"p1","starts_at":"2030-01-03T12:07:00Z","min_bid":100,"lot":1,"condition":"new","min_bidders":1,"max_bidders":10}`,
			status: http.StatusBadRequest, code: "invalid_schedule",
		},
		{
			name:   "staff registration",
			method: http.MethodPost, path: "/api/v1/auctions", userID: "owner", role: "moderator", body: registerBody,
			status: http.StatusForbidden, code: "staff_cannot_own",
		},
		{
			name:   "unknown auction",
			method: http.MethodGet, path: "/api/v1/auctions/missing", userID: "alice",
			status: http.StatusNotFound, code: "auction_not_found",
		},
		{
			name:   "bad limit",
			method: http.MethodGet, path: "/api/v1/auctions/missing/bids?limit=abc", userID: "alice",
			status: http.StatusBadRequest, code: "invalid_argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.userID, tt.role, tt.body)
			requireError(t, rec, tt.status, tt.code)
		})
	}
}

func TestAPI_Health(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "auction-service", body["service"])
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindUnauthenticated, http.StatusUnauthorized},
		{domain.KindForbidden, http.StatusForbidden},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindBadRequest, http.StatusBadRequest},
		{domain.KindConflict, http.StatusConflict},
		{domain.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, StatusOf(tt.kind), tt.kind.String())
	}
}
