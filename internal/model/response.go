package model

import "time"

// Response is the JSON envelope shared by every HTTP endpoint:
// { success, data?, error?, timestamp }.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// OK wraps data in a successful response envelope.
func OK(now time.Time, data interface{}) Response {
	return Response{Success: true, Data: data, Timestamp: now.UnixMilli()}
}

// Fail wraps an error message in a failed response envelope.
func Fail(now time.Time, msg string) Response {
	return Response{Success: false, Error: msg, Timestamp: now.UnixMilli()}
}
