package purchase

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
	"github.com/jobdesk/jobdesk-api/internal/middleware"
	"github.com/jobdesk/jobdesk-api/internal/pkg/checkout"
	"github.com/jobdesk/jobdesk-api/internal/pkg/response"
	"github.com/jobdesk/jobdesk-api/internal/pkg/validator"
)

const maxWebhookBody = 1 << 20

// Handler handles purchase HTTP requests
type Handler struct {
	service       *Service
	webhookSecret string
}

// NewHandler creates purchase handler
func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

// ListTiers handles GET /billing/tiers
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.service.Tiers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tiers")
		response.InternalError(w)
		return
	}

	response.OK(w, tiers)
}

// Checkout handles POST /billing/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	p, paymentURL, err := h.service.StartCheckout(r.Context(), userID, req.TierID)
	if err != nil {
		if errors.Is(err, ErrTierNotFound) {
			response.NotFound(w, "Tier not found")
			return
		}
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("tier_id", req.TierID).
			Msg("Failed to start checkout")
		response.InternalError(w)
		return
	}

	response.Created(w, &CheckoutResponse{
		PurchaseID: p.ID,
		SessionID:  p.SessionID,
		PaymentURL: paymentURL,
		Status:     p.Status,
	})
}

// History handles GET /billing/history?limit=N
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			response.BadRequest(w, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	purchases, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to list purchase history")
		response.InternalError(w)
		return
	}

	items := make([]*HistoryItemResponse, len(purchases))
	for i := range purchases {
		items[i] = HistoryItemFromEntity(&purchases[i])
	}

	response.OK(w, items)
}

// Webhook handles POST /webhooks/checkout. A 2xx acknowledges the event;
// anything else makes the provider redeliver, which is safe because
// reconciliation is idempotent.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Failed to read body")
		return
	}

	signature := r.Header.Get("X-Signature")
	if !checkout.VerifySignature(payload, signature, h.webhookSecret) {
		log.Warn().Str("ip", r.RemoteAddr).Msg("Webhook with invalid signature rejected")
		response.Unauthorized(w, "Invalid signature")
		return
	}

	event, err := checkout.ParseWebhook(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed webhook payload")
		response.BadRequest(w, "Malformed webhook payload")
		return
	}

	if err := h.service.HandleEvent(r.Context(), event); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Conflicting terminal state: redelivery cannot fix this, ack it
			// and rely on the integrity log.
			response.OK(w, map[string]string{"status": "ignored"})
			return
		}
		log.Error().Err(err).
			Str("session_id", event.SessionID).
			Str("event_type", event.EventType).
			Msg("Webhook handling failed, provider will retry")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// GrantCredits handles POST /admin/users/{id}/credits/grant
func (h *Handler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	userIDStr := chi.URLParam(r, "id")
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	entitlements := make(EntitlementMap, len(req.Credits))
	for raw, count := range req.Credits {
		t := credit.Type(raw)
		if !t.Valid() {
			response.BadRequest(w, "Unknown credit type: "+raw)
			return
		}
		if count <= 0 || count > 10000 {
			response.BadRequest(w, "Credit count must be between 1 and 10000")
			return
		}
		entitlements[t] = count
	}

	adminID := middleware.GetUserID(r.Context())

	p, err := h.service.GrantManual(r.Context(), adminID, userID, entitlements, req.ExpiresInDays, req.Reason)
	if err != nil {
		log.Error().Err(err).
			Str("admin_id", adminID.String()).
			Str("user_id", userID.String()).
			Msg("Failed to grant credits")
		response.InternalError(w)
		return
	}

	response.Created(w, p)
}
