package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemolink/internal/matching"
	"hemolink/pkg/domain"
)

type stubMatcher struct {
	candidates []matching.Candidate
}

func (m *stubMatcher) Match(_ context.Context, _ domain.RequestID) ([]matching.Candidate, error) {
	return m.candidates, nil
}

type stubLocator struct {
	radiusM float64
	kind    matching.Kind
	limit   int
}

func (l *stubLocator) Nearby(_ context.Context, _ domain.Point, radiusM float64, kind matching.Kind, limit int) ([]matching.Location, error) {
	l.radiusM = radiusM
	l.kind = kind
	l.limit = limit
	return nil, nil
}

func newTestRouter(matcher Matcher, locator Locator) chi.Router {
	r := chi.NewRouter()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	New(matcher, locator, log).Register(r)
	return r
}

func TestNearbyDefaultsRadiusToTenKm(t *testing.T) {
	locator := &stubLocator{}
	router := newTestRouter(&stubMatcher{}, locator)

	req := httptest.NewRequest(http.MethodGet, "/nearby?lat=23.78&lng=90.41&kind=donor", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10_000.0, locator.radiusM)
	assert.Equal(t, matching.KindDonor, locator.kind)
	assert.Equal(t, defaultNearbyLimit, locator.limit)
}

func TestNearbyExplicitRadius(t *testing.T) {
	locator := &stubLocator{}
	router := newTestRouter(&stubMatcher{}, locator)

	req := httptest.NewRequest(http.MethodGet, "/nearby?lat=23.78&lng=90.41&radius_m=5000&kind=bloodbank&limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5000.0, locator.radiusM)
	assert.Equal(t, matching.KindBloodBank, locator.kind)
	assert.Equal(t, 5, locator.limit)
}

func TestNearbyRejectsMalformedRadius(t *testing.T) {
	router := newTestRouter(&stubMatcher{}, &stubLocator{})

	req := httptest.NewRequest(http.MethodGet, "/nearby?lat=23.78&lng=90.41&radius_m=wide&kind=donor", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchSerializesEmptyAsArray(t *testing.T) {
	router := newTestRouter(&stubMatcher{}, &stubLocator{})

	req := httptest.NewRequest(http.MethodPost, "/requests/"+domain.NewRequestID().String()+"/match", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"candidates":[]}`, rec.Body.String())
}
