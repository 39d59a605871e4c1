package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bobmcallan/rollup/internal/models"
)

func TestWriteDomainError_Statuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&models.NotFoundError{Kind: "client", Key: "x"}, http.StatusNotFound, CodeNotFound},
		{fmt.Errorf("resolve: %w", models.ErrAmbiguousKey), http.StatusConflict, CodeAmbiguousKey},
		{models.ErrSnapshotExists, http.StatusConflict, CodeSnapshotExists},
		{fmt.Errorf("%w: workers", models.ErrInvalidJobRequest), http.StatusBadRequest, CodeInvalidRequest},
		{models.ErrQueueFull, http.StatusServiceUnavailable, CodeQueueFull},
		{models.ErrRollupInvariant, http.StatusInternalServerError, CodeRollupInvariant},
		{&models.MalformedHierarchyError{Reason: "conflicts", Conflicts: []string{"a"}}, http.StatusUnprocessableEntity, CodeMalformedHierarchy},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		WriteDomainError(rr, tt.err)
		if rr.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, rr.Code, tt.status)
		}
		if tt.code != "" && !strings.Contains(rr.Body.String(), `"code":"`+tt.code+`"`) {
			t.Errorf("%v: body %s missing code %s", tt.err, rr.Body.String(), tt.code)
		}
	}
}

func TestPathParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/positions/2024-03-28", nil)
	if got := PathParam(req, "/api/positions/", ""); got != "2024-03-28" {
		t.Errorf("PathParam = %q", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/risk-stats/jobs/abc/extra", nil)
	if got := PathParam(req, "/api/risk-stats/jobs/", ""); got != "abc" {
		t.Errorf("PathParam = %q", got)
	}
	if got := PathParam(req, "/api/other/", ""); got != "" {
		t.Errorf("PathParam with wrong prefix = %q", got)
	}
}

func TestDecodeJSON_RejectsInvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/api/ownership", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	var v []string
	if DecodeJSON(rr, req, &v, 1024) {
		t.Fatal("expected DecodeJSON to fail")
	}
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
