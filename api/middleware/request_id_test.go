package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

func TestRequestIDEchoesWellFormedID(t *testing.T) {
	handler := RequestID(logger.Nop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "  batch-7:inv.42  ")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got := resp.Header().Get(requestIDHeader); got != "batch-7:inv.42" {
		t.Fatalf("expected echoed id, got %q", got)
	}
}

func TestRequestIDReplacesMalformedID(t *testing.T) {
	handler := RequestID(nil)(okHandler())
	for _, raw := range []string{"", "has space", "line\nbreak", strings.Repeat("a", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, raw)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		got := resp.Header().Get(requestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("raw=%q: expected a minted uuid, got %q", raw, got)
		}
	}
}
