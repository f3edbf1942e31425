package credit

// UseCreditsRequest asks to debit credits for a single gated action
type UseCreditsRequest struct {
	ActionID  string         `json:"action_id" validate:"required,min=1,max=128"`
	Requested map[string]int `json:"requested" validate:"required,min=1"`
}

// UseCreditsResponse is returned on a successful debit
type UseCreditsResponse struct {
	RemainingBalance *Balance `json:"remaining_balance"`
}

// ExpiringCreditsResponse lists unused credits expiring within the window
type ExpiringCreditsResponse struct {
	WithinDays int      `json:"within_days"`
	Credits    []Credit `json:"credits"`
}
