package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("ledger:verify").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `siteledger_jobs_total{job="ledger:verify",status="success"} 1`) {
		t.Fatalf("expected body to contain job run, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "siteledger_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "siteledger_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObservePostingOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting(ledger.KindVendor, ledger.EntrySettlement, nil)
	metrics.ObservePosting(ledger.KindProject, ledger.EntryStandard, &shared.StoreError{Kind: shared.ErrConcurrencyConflict, Err: errors.New("deadlock")})
	metrics.ObservePosting(ledger.KindProject, ledger.EntryStandard, shared.ErrNotFound)

	body := scrape(t, metrics)
	for _, want := range []string{
		`siteledger_ledger_postings_total{entity="vendor",kind="settlement",result="ok"} 1`,
		`siteledger_ledger_postings_total{entity="project",kind="entry",result="conflict"} 1`,
		`siteledger_ledger_postings_total{entity="project",kind="entry",result="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}

	var nilMetrics *Metrics
	nilMetrics.ObservePosting(ledger.KindVendor, ledger.EntryStandard, nil)
}
