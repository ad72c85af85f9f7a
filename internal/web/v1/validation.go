package v1

import (
	"errors"
	"io"
	"strings"
)

// sanitizeValidationError returns a client-safe message for binding and store errors.
// Raw decoder and driver messages expose internal structure and never reach clients.
func sanitizeValidationError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, io.EOF) {
		return "Request body is required"
	}

	msg := err.Error()
	if strings.Contains(msg, "cannot unmarshal") ||
		strings.Contains(msg, "invalid character") ||
		strings.Contains(msg, "bind") ||
		strings.Contains(msg, "Key:") ||
		strings.Contains(msg, "SQLSTATE") {
		return "Invalid request"
	}
	// short messages such as "save user ...: connection reset" can pass through
	if len(msg) < 100 && !strings.Contains(msg, "Error:") {
		return msg
	}
	return "Invalid request"
}
