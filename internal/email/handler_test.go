package email

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_HandleSend(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid message", `{"to":"cliente@farmacia.test","subject":"Order received","body":"hi"}`, http.StatusOK},
		{"malformed json", `{"to":`, http.StatusBadRequest},
		{"missing recipient", `{"subject":"Order received"}`, http.StatusBadRequest},
		{"invalid recipient", `{"to":"not-an-address","subject":"Order received"}`, http.StatusBadRequest},
		{"blank subject", `{"to":"cliente@farmacia.test","subject":"  "}`, http.StatusBadRequest},
	}

	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.HandleSend(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				var resp sendResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "sent", resp.Status)
			}
		})
	}
}
