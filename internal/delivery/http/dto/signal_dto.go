package dto

import (
	"time"

	"fxhedz/internal/domain"
)

// SubscriptionResponse is the access state of the calling device
type SubscriptionResponse struct {
	Active  bool               `json:"active"`
	Blocked bool               `json:"blocked"`
	Plan    *string            `json:"plan"`
	Expiry  *string            `json:"expiry"`
	Reason  string             `json:"reason,omitempty"`
	State   domain.AccessState `json:"state"`
}

// NewSubscriptionResponse renders an access status
func NewSubscriptionResponse(status domain.AccessStatus) SubscriptionResponse {
	resp := SubscriptionResponse{
		Active:  status.State == domain.AccessActive,
		Blocked: status.State == domain.AccessBlocked,
		Reason:  status.Reason,
		State:   status.State,
	}
	if status.Plan != "" {
		plan := status.Plan
		resp.Plan = &plan
	}
	if status.Expiry != nil {
		expiry := status.Expiry.UTC().Format(time.RFC3339)
		resp.Expiry = &expiry
	}
	return resp
}
