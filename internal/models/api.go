// Package models defines API response envelopes for Tipline endpoints.
package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for all HTTP endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// SweepRequest carries the flags of a manual sweep trigger.
type SweepRequest struct {
	SendToAll bool `json:"send_to_all,omitempty"`
	Limit     int  `json:"limit,omitempty"`
	Force     bool `json:"force,omitempty"`
}

// SweepResult summarizes one delivery sweep.
type SweepResult struct {
	Selected int `json:"selected"`
	Sent     int `json:"sent"`
	Skipped  int `json:"skipped"`
}

// StoreStats exposes store counters for the stats endpoint.
type StoreStats struct {
	Users           int `json:"users"`
	ActiveSchedules int `json:"active_schedules"`
	MessageLogs     int `json:"message_logs"`
}
