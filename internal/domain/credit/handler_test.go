package credit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
	"github.com/jobdesk/jobdesk-api/internal/middleware"
)

type stubService struct {
	balance *credit.Balance
	useErr  error
	lastReq map[credit.Type]int
}

func (s *stubService) MintTx(ctx context.Context, tx *sqlx.Tx, order credit.MintOrder) (int, error) {
	return 0, nil
}

func (s *stubService) GetBalance(ctx context.Context, userID uuid.UUID) (*credit.Balance, error) {
	return s.balance, nil
}

func (s *stubService) GetExpiringSoon(ctx context.Context, userID uuid.UUID, withinDays int) ([]credit.Credit, error) {
	return []credit.Credit{{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      credit.TypeJobPost,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}}, nil
}

func (s *stubService) UseCredits(ctx context.Context, userID uuid.UUID, actionID string, requested map[credit.Type]int) (*credit.Balance, error) {
	s.lastReq = requested
	if s.useErr != nil {
		return nil, s.useErr
	}
	return s.balance, nil
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, uuid.New())
	return req.WithContext(ctx)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHandlerGetBalance(t *testing.T) {
	svc := &stubService{balance: &credit.Balance{Universal: 2, JobPost: 1, Total: 3}}
	handler := credit.NewHandler(svc)

	w := httptest.NewRecorder()
	handler.GetBalance(w, authedRequest(http.MethodGet, "/credits/balance", ""))

	assert.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)

	var balance credit.Balance
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, 3, balance.Total)
}

func TestHandlerUseCreditsSuccess(t *testing.T) {
	svc := &stubService{balance: &credit.Balance{Universal: 1, Total: 1}}
	handler := credit.NewHandler(svc)

	body := `{"action_id":"job-42","requested":{"job_post":2}}`
	w := httptest.NewRecorder()
	handler.UseCredits(w, authedRequest(http.MethodPost, "/credits/use", body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[credit.Type]int{credit.TypeJobPost: 2}, svc.lastReq)

	env := decodeEnvelope(t, w)
	var resp credit.UseCreditsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 1, resp.RemainingBalance.Total)
}

func TestHandlerUseCreditsInsufficient(t *testing.T) {
	svc := &stubService{useErr: &credit.InsufficientCreditsError{
		Shortfall: map[credit.Type]int{credit.TypeJobPost: 2},
	}}
	handler := credit.NewHandler(svc)

	body := `{"action_id":"job-42","requested":{"job_post":5}}`
	w := httptest.NewRecorder()
	handler.UseCredits(w, authedRequest(http.MethodPost, "/credits/use", body))

	assert.Equal(t, http.StatusConflict, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_CREDITS", env.Error.Code)
	assert.Equal(t, "need 2 more", env.Error.Details["job_post"])
}

func TestHandlerUseCreditsUnknownType(t *testing.T) {
	svc := &stubService{}
	handler := credit.NewHandler(svc)

	body := `{"action_id":"job-42","requested":{"premium":1}}`
	w := httptest.NewRecorder()
	handler.UseCredits(w, authedRequest(http.MethodPost, "/credits/use", body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.lastReq)
}

func TestHandlerUseCreditsValidation(t *testing.T) {
	svc := &stubService{}
	handler := credit.NewHandler(svc)

	// Missing action_id.
	body := `{"requested":{"job_post":1}}`
	w := httptest.NewRecorder()
	handler.UseCredits(w, authedRequest(http.MethodPost, "/credits/use", body))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandlerGetExpiringSoonRejectsBadDays(t *testing.T) {
	handler := credit.NewHandler(&stubService{})

	w := httptest.NewRecorder()
	handler.GetExpiringSoon(w, authedRequest(http.MethodGet, "/credits/expiring?days=0", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.GetExpiringSoon(w, authedRequest(http.MethodGet, "/credits/expiring?days=9000", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
