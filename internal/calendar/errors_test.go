package calendar

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestIsKeyRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", errors.New("connection reset"), false},
		{"reason item", &googleapi.Error{Code: http.StatusBadRequest, Errors: []googleapi.ErrorItem{{Reason: "keyInvalid"}}}, true},
		{"error info detail", &googleapi.Error{Code: http.StatusBadRequest, Details: []any{
			map[string]any{"@type": "type.googleapis.com/google.rpc.ErrorInfo", "reason": "API_KEY_INVALID"},
		}}, true},
		{"api disabled", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "accessNotConfigured"}}}, true},
		{"message only", &googleapi.Error{Code: http.StatusBadRequest, Message: "API key not valid. Please pass a valid API key."}, true},
		{"wrapped", fmt.Errorf("list: %w", &googleapi.Error{Code: http.StatusBadRequest, Message: "API key not valid."}), true},
		{"calendar not found", &googleapi.Error{Code: http.StatusNotFound, Message: "Not Found"}, false},
		{"forbidden calendar", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}}, false},
		{"wrong status", &googleapi.Error{Code: http.StatusInternalServerError, Message: "API key not valid"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsKeyRejection(tt.err))
		})
	}
}
