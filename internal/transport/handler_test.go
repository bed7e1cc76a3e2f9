package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zerosaver/internal/catalog"
	"zerosaver/internal/clock"
	"zerosaver/internal/domain"
	"zerosaver/internal/ledger"
	"zerosaver/internal/middleware"
	"zerosaver/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC)

type testAPI struct {
	router  http.Handler
	catalog *catalog.Catalog
	clock   *clock.Manual
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	clk := clock.NewManual(baseTime)
	c := catalog.New(clk, logger)

	deals := service.NewDealService(c, nil, nil, logger)
	carts := service.NewCartService(ledger.NewRegistry(c, nil, logger), c, nil, time.Second, logger)

	r := chi.NewRouter()
	r.Use(middleware.ErrorHandlingMiddleware(logger))
	identity := middleware.IdentityMiddleware(logger)
	NewDealHandler(deals, clk, logger).RegisterRoutes(r, identity)
	NewCartHandler(carts, logger).RegisterRoutes(r, identity, nil)

	return &testAPI{router: r, catalog: c, clock: clk}
}

func (a *testAPI) publish(t *testing.T, d domain.Deal) {
	t.Helper()
	_, err := a.catalog.Publish(d)
	require.NoError(t, err)
}

// do sends a request as actor with role; an empty actor sends no identity.
func (a *testAPI) do(t *testing.T, method, path, actor, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(middleware.ActorIDHeader, actor)
		req.Header.Set(middleware.ActorRoleHeader, role)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sampleDeal(id string) domain.Deal {
	return domain.Deal{
		ID:            id,
		VendorID:      "bakery-1",
		VendorName:    "Green Bakery",
		Title:         "Pastry bag",
		Category:      "Bakery",
		Tags:          []string{"bread"},
		OriginalPrice: 12,
		Price:         6,
		Quantity:      5,
		DistanceKm:    1.5,
		ExpiresAt:     baseTime.Add(120 * time.Minute),
	}
}
