package calendar

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Reasons the API gives when it refuses the key itself rather than the
// calendar being asked for.
var keyRejectionReasons = map[string]bool{
	"keyInvalid":              true,
	"keyExpired":              true,
	"API_KEY_INVALID":         true,
	"API_KEY_EXPIRED":         true,
	"API_KEY_SERVICE_BLOCKED": true,
	"accessNotConfigured":     true,
	"SERVICE_DISABLED":        true,
}

// IsKeyRejection reports whether err is the API refusing the API key. Such
// an error applies to every request made with the key, not to one calendar.
func IsKeyRejection(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code != http.StatusBadRequest && apiErr.Code != http.StatusForbidden {
		return false
	}

	for _, item := range apiErr.Errors {
		if keyRejectionReasons[item.Reason] {
			return true
		}
	}
	for _, d := range apiErr.Details {
		detail, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if reason, _ := detail["reason"].(string); keyRejectionReasons[reason] {
			return true
		}
	}
	return strings.Contains(apiErr.Message, "API key not valid")
}
