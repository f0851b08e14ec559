package dto

// APIResponse is the envelope every endpoint returns. Reason is a stable upper-snake code
// callers branch on.
type APIResponse struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty" validate:"omitempty"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}
