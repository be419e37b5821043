package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"whitelabel_crm_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

func TestHandleError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "validation", err: apperr.Validation("sourcePageId is required"), status: http.StatusBadRequest, message: "sourcePageId is required"},
		{name: "wrapped not found", err: errors.Join(errors.New("ctx"), apperr.NotFound("routing rule not found")), status: http.StatusNotFound, message: "routing rule not found"},
		{name: "internal hides cause", err: apperr.Wrap(apperr.KindInternal, "failed to list routing rules", errors.New("conn reset")), status: http.StatusInternalServerError, message: "failed to list routing rules"},
		{name: "untyped", err: errors.New("pq: relation missing"), status: http.StatusInternalServerError, message: errInternal},
	}

	gin.SetMode(gin.TestMode)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			if !HandleError(c, tc.err) {
				t.Fatalf("expected error to be handled")
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if rec.Code != tc.status || body.Error != tc.message {
				t.Fatalf("expected %d %q, got %d %q", tc.status, tc.message, rec.Code, body.Error)
			}
			if tc.status >= http.StatusInternalServerError && len(c.Errors) != 1 {
				t.Fatalf("expected server error to be attached for logging")
			}
		})
	}

	if HandleError(nil, nil) {
		t.Fatalf("expected nil error to be ignored")
	}
}
