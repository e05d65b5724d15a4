package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldClientIP  = "client_ip"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldRoute     = "route"
	FieldStatus    = "status_code"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

// Component names attached by each binary
const (
	ComponentServer   = "server"
	ComponentRollover = "rollover"
	ComponentQueue    = "action_queue"
)
