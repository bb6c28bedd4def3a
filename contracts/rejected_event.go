package contracts

// RejectedEvent is the outward substitute for a message whose handling
// failed. Publishing it and acknowledging the original delivery takes the
// message out of the retry loop for good.
type RejectedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}

// NewRejectedEvent creates a rejected event carrying the failure reason.
func NewRejectedEvent(reason, code string) *RejectedEvent {
	return &RejectedEvent{
		BaseEvent: NewBaseEvent("RejectedEvent"),
		Reason:    reason,
		Code:      code,
	}
}
