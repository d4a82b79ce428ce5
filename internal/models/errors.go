package models

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks missing, invalid or switched-off settings
var ErrConfiguration = errors.New("configuration error")

// RestrictionReason identifies which policy check rejected a reply
type RestrictionReason string

const (
	ReasonNoBody      RestrictionReason = "no_body"
	ReasonLocked      RestrictionReason = "locked"
	ReasonRemoved     RestrictionReason = "removed"
	ReasonSpam        RestrictionReason = "spam"
	ReasonBlockedPost RestrictionReason = "blocked_post"
	ReasonRateLimit   RestrictionReason = "rate_limit"
	ReasonTooLong     RestrictionReason = "too_long"
	ReasonModeration  RestrictionReason = "moderation"
)

// RestrictionError is a policy rejection. It is normal control flow, not a fault.
type RestrictionError struct {
	Reason  RestrictionReason
	Message string
}

func (e *RestrictionError) Error() string {
	return e.Message
}

// ProviderError is a well-formed but unusable answer from the LLM provider
type ProviderError struct {
	Status       int
	FinishReason string
	Message      string
}

func (e *ProviderError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("HTTP error: %d", e.Status)
	case e.FinishReason != "":
		return "Unusual finish reason given by OpenAI: " + e.FinishReason
	default:
		return e.Message
	}
}

// IsRestriction reports whether err is a policy rejection
func IsRestriction(err error) bool {
	var r *RestrictionError
	return errors.As(err, &r)
}
