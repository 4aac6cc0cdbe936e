package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Error codes the login endpoints are known to send.
const (
	codeTooManyRequests       = "TOO_MANY_REQUESTS"
	codeValidationInvalid     = "VALIDATION_CODE_INVALID"
	codeValidationExpired     = "VALIDATION_CODE_EXPIRED"
	codeLoginAttemptsExceeded = "LOGIN_ATTEMPTS_EXCEEDED"
)

type apiEnvelope struct {
	Errors []struct {
		ErrorCode string `json:"errorCode"`
		Meta      struct {
			NextAttemptTimestamp string `json:"nextAttemptTimestamp"`
		} `json:"meta"`
	} `json:"errors"`
}

// decodeAPIError turns an error response into a message a user can act on,
// expanding the known error codes.
func decodeAPIError(base string, resp *resty.Response) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (status %d)", base, resp.StatusCode())

	var envelope apiEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil || len(envelope.Errors) == 0 {
		if body := strings.TrimSpace(string(resp.Body())); body != "" {
			fmt.Fprintf(&sb, ": %s", body)
		}
		return errors.New(sb.String())
	}

	for _, apiErr := range envelope.Errors {
		fmt.Fprintf(&sb, ": %s", apiErr.ErrorCode)
		switch apiErr.ErrorCode {
		case codeTooManyRequests:
			sb.WriteString(", too many login attempts")
			if t := formatAttemptTime(apiErr.Meta.NextAttemptTimestamp); t != "" {
				fmt.Fprintf(&sb, ", try again after %s", t)
			}
		case codeLoginAttemptsExceeded:
			sb.WriteString(", account locked")
			if t := formatAttemptTime(apiErr.Meta.NextAttemptTimestamp); t != "" {
				fmt.Fprintf(&sb, " until %s", t)
			}
		case codeValidationInvalid:
			sb.WriteString(", the 4-digit code was wrong")
		case codeValidationExpired:
			sb.WriteString(", the 4-digit code expired, restart the login")
		}
	}
	return errors.New(sb.String())
}

// formatAttemptTime renders the service's retry timestamp in local time.
func formatAttemptTime(iso string) string {
	if iso == "" {
		return ""
	}
	ts, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return iso
	}
	return ts.Local().Format("02.01.2006 15:04:05 MST")
}
