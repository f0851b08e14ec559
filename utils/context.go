package utils

type contextKey string

// Request scoped context keys populated by HTTP handlers
const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	CancelFuncKey contextKey = "cancel_func"
	SubjectKey    contextKey = "subject"
	RoleKey       contextKey = "role"
)
