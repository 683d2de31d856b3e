package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	FramingErrors.WithLabelValues("udp:127.0.0.1:9000").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ossia_framing_errors_total") {
		t.Fatalf("expected ossia_framing_errors_total in output, got:\n%s", rec.Body.String())
	}
}
