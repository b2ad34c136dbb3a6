package rest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/auth"
	"github.com/ajirinow/backend/internal/listing"
	"github.com/ajirinow/backend/internal/payment"
	"github.com/ajirinow/backend/internal/transport"
	"github.com/ajirinow/backend/internal/transport/rest"
	"github.com/ajirinow/backend/internal/user"
	"github.com/ajirinow/backend/pkg/logger"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Suite")
}

func routesOf(router *chi.Mux) []string {
	var routes []string
	_ = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	})
	return routes
}

var _ = Describe("RegisterAllRoutes", func() {
	var (
		cfg      *internal.Config
		handlers rest.Handlers
	)

	BeforeEach(func() {
		cfg = &internal.Config{}
		cfg.Observability.Metrics.Enabled = true
		base := transport.NewBaseHandler(logger.Discard())
		handlers = rest.Handlers{
			Auth:    auth.NewHandler(base, nil),
			User:    user.NewHandler(base, nil),
			Listing: listing.NewHandler(base, nil),
			Payment: payment.NewHandler(base, nil),
			Webhook: payment.NewWebhookHandler(base, nil),
		}
	})

	It("should mount the callback on both paths and the payment routes", func() {
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, nil, cfg, handlers, logger.Discard())

		routes := routesOf(router)

		Expect(routes).To(ContainElements(
			"POST /callback",
			"POST /api/v1/mpesa/callback",
			"POST /api/v1/mpesa/stkpush",
			"POST /api/v1/payments/initiate",
			"GET /api/v1/payments/job-status",
			"GET /api/v1/ads/{id}",
			"GET /metrics",
		))
		Expect(routes).ToNot(ContainElement("POST /api/v1/mpesa/stkpush/guest"))
	})

	It("should mount owner edits and account self-service", func() {
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, nil, cfg, handlers, logger.Discard())

		Expect(routesOf(router)).To(ContainElements(
			"PATCH /api/v1/jobs/{id}",
			"DELETE /api/v1/jobs/{id}",
			"PATCH /api/v1/ads/{id}",
			"DELETE /api/v1/ads/{id}",
			"DELETE /api/v1/fundis/me",
			"GET /api/v1/clients",
			"GET /api/v1/clients/me",
			"PATCH /api/v1/clients/me",
			"DELETE /api/v1/clients/me",
		))
	})

	It("should mount the guest initiation only when anonymous payments are allowed", func() {
		cfg.Payment.AllowAnonymous = true
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, nil, cfg, handlers, logger.Discard())

		Expect(routesOf(router)).To(ContainElement("POST /api/v1/mpesa/stkpush/guest"))
	})

	It("should leave out metrics when disabled", func() {
		cfg.Observability.Metrics.Enabled = false
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, nil, cfg, handlers, logger.Discard())

		Expect(routesOf(router)).ToNot(ContainElement("GET /metrics"))
	})
})

var _ = Describe("Health", func() {
	serve := func(checks ...rest.Check) *httptest.ResponseRecorder {
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, nil, &internal.Config{}, rest.Handlers{}, logger.Discard(), checks...)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		return rec
	}

	It("should answer ping", func() {
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, nil, &internal.Config{}, rest.Handlers{}, logger.Discard())
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("OK"))
	})

	It("should be healthy when every check passes", func() {
		rec := serve(rest.Check{Name: "redis", Ping: func(context.Context) error { return nil }})

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"redis"`))
	})

	It("should report 503 when a check fails", func() {
		rec := serve(rest.Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }})

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(rec.Body.String()).To(ContainSubstring("connection refused"))
	})
})
