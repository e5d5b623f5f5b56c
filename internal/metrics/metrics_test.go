package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

func TestObserveAction(t *testing.T) {
	m := New()
	m.ObserveAction(domain.ActionCommit, domain.ReasonNone, time.Second)
	m.ObserveAction(domain.ActionCommit, domain.ReasonInvalidPhase, time.Millisecond)
	m.ObserveAction(domain.ActionCommit, domain.ReasonNone, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("commit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("commit", "InvalidPhase")))
}

func TestObserveLedgerClassifiesErrors(t *testing.T) {
	m := New()
	m.ObserveLedger("view", time.Millisecond, nil)
	m.ObserveLedger("view", time.Millisecond, fmt.Errorf("aptos: %w", domain.ErrNetwork))
	m.ObserveLedger("submit", time.Millisecond, domain.ErrInsufficientFunds)
	m.ObserveLedger("account", time.Millisecond, domain.ErrNotFound)
	m.ObserveLedger("wait", time.Millisecond, errors.New("vm abort"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerErrors.WithLabelValues("view", "network")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerErrors.WithLabelValues("submit", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerErrors.WithLabelValues("account", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerErrors.WithLabelValues("wait", "ledger")))
}

func TestObservePollAndJob(t *testing.T) {
	m := New()
	m.ObservePoll("markets", nil)
	m.ObservePoll("markets", errors.New("x"))
	m.ObserveJob("resolve", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("markets", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("markets", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("resolve", "ok")))
}

func TestInstrumentHandlerAndExposition(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/markets/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.Handle("/metrics", m.Handler())
	srv := httptest.NewServer(m.InstrumentHandler(mux))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/markets/42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/markets/:id", "404")))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "darkpool_http_requests_total")
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/api/markets/:id/commit", canonicalPath("/api/markets/17/commit"))
	assert.Equal(t, "/api/health", canonicalPath("/api/health"))
}
