package credit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/jobdesk/jobdesk-api/internal/middleware"
	"github.com/jobdesk/jobdesk-api/internal/pkg/response"
	"github.com/jobdesk/jobdesk-api/internal/pkg/validator"
)

// Handler handles credit HTTP requests
type Handler struct {
	service Service
}

// NewHandler creates credit handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetBalance handles GET /credits/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get balance")
		response.InternalError(w)
		return
	}

	response.OK(w, balance)
}

// GetExpiringSoon handles GET /credits/expiring?days=N
func (h *Handler) GetExpiringSoon(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			response.BadRequest(w, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	credits, err := h.service.GetExpiringSoon(r.Context(), userID, days)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to list expiring credits")
		response.InternalError(w)
		return
	}

	response.OK(w, &ExpiringCreditsResponse{WithinDays: days, Credits: credits})
}

// UseCredits handles POST /credits/use. An insufficient balance is an action
// denial for the caller, not a server error.
func (h *Handler) UseCredits(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req UseCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	requested := make(map[Type]int, len(req.Requested))
	for raw, count := range req.Requested {
		t := Type(raw)
		if !t.Valid() {
			response.BadRequest(w, "Unknown credit type: "+raw)
			return
		}
		if count <= 0 {
			response.BadRequest(w, "Requested count must be greater than 0")
			return
		}
		requested[t] = count
	}

	balance, err := h.service.UseCredits(r.Context(), userID, req.ActionID, requested)
	if err != nil {
		if shortage, ok := IsInsufficientCredits(err); ok {
			details := make(map[string]string, len(shortage.Shortfall))
			for t, n := range shortage.Shortfall {
				details[string(t)] = fmt.Sprintf("need %d more", n)
			}
			response.ConflictWithDetails(w, "INSUFFICIENT_CREDITS", shortage.Error(), details)
			return
		}
		if errors.Is(err, ErrInvalidType) || errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(w, err.Error())
			return
		}
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("action_id", req.ActionID).
			Msg("Failed to use credits")
		response.InternalError(w)
		return
	}

	response.OK(w, &UseCreditsResponse{RemainingBalance: balance})
}
