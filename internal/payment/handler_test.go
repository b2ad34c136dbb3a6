package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/ajirinow/backend/internal"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
	paymentpkg "github.com/ajirinow/backend/internal/payment"
	"github.com/ajirinow/backend/internal/transport"
	"github.com/ajirinow/backend/pkg/logger"
)

type mockPaymentService struct {
	initiateErr  error
	callbackErr  error
	lastInput    paymentpkg.InitiateInput
	lastCallback []byte
	payment      *datamodel.Payment
	payments     []datamodel.Payment
	jobStatus    *paymentpkg.JobStatus
}

func (m *mockPaymentService) Initiate(ctx context.Context, in paymentpkg.InitiateInput) (*datamodel.Payment, error) {
	m.lastInput = in
	if m.initiateErr != nil {
		return nil, m.initiateErr
	}
	return m.payment, nil
}

func (m *mockPaymentService) HandleCallback(ctx context.Context, body []byte) (string, error) {
	m.lastCallback = body
	if m.callbackErr != nil {
		return paymentpkg.OutcomeError, m.callbackErr
	}
	return paymentpkg.OutcomeApplied, nil
}

func (m *mockPaymentService) Get(ctx context.Context, requester *internal.User, id int64) (*datamodel.Payment, error) {
	if m.payment == nil || m.payment.ID != id {
		return nil, internal.ErrPaymentNotFound
	}
	return m.payment, nil
}

func (m *mockPaymentService) ListMine(ctx context.Context, payerID int64) ([]datamodel.Payment, error) {
	return m.payments, nil
}

func (m *mockPaymentService) JobStatus(ctx context.Context, ownerID, jobID int64) (*paymentpkg.JobStatus, error) {
	if m.jobStatus == nil {
		return nil, internal.ErrJobNotFound
	}
	return m.jobStatus, nil
}

func createRequestWithUser(method, target string, body []byte, user *internal.User) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if user == nil {
		return req
	}
	return req.WithContext(internal.ContextWithUser(req.Context(), user))
}

var _ = ginkgo.Describe("PaymentHandler", func() {
	var (
		handler  *paymentpkg.Handler
		service  *mockPaymentService
		recorder *httptest.ResponseRecorder
		caller   *internal.User
	)

	ginkgo.BeforeEach(func() {
		service = &mockPaymentService{
			payment: &datamodel.Payment{
				ID:                3,
				Amount:            decimal.NewFromInt(100),
				Purpose:           datamodel.PurposePostJob,
				Status:            datamodel.StatusPending,
				CheckoutRequestID: "ws_CO_123",
				CreatedAt:         time.Now(),
			},
		}
		handler = paymentpkg.NewHandler(transport.NewBaseHandler(logger.Discard()), service)
		recorder = httptest.NewRecorder()
		caller = &internal.User{ID: 1, Role: "client"}
	})

	ginkgo.Context("Initiate", func() {
		ginkgo.It("should return checkout_id and payment_id", func() {
			// Given
			body := []byte(`{"purpose":"post_job","phone":"0712345678","target_id":9}`)

			// When
			handler.Initiate(recorder, createRequestWithUser("POST", "/api/v1/mpesa/stkpush", body, caller))

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp map[string]interface{}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp["checkout_id"]).To(gomega.Equal("ws_CO_123"))
			gomega.Expect(resp["payment_id"]).To(gomega.BeNumerically("==", 3))
			gomega.Expect(*service.lastInput.PayerID).To(gomega.Equal(int64(1)))
			gomega.Expect(*service.lastInput.TargetID).To(gomega.Equal(int64(9)))
		})

		ginkgo.It("should require an authenticated caller", func() {
			handler.Initiate(recorder, createRequestWithUser("POST", "/api/v1/mpesa/stkpush", []byte(`{}`), nil))
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should reject an unreadable body", func() {
			handler.Initiate(recorder, createRequestWithUser("POST", "/api/v1/mpesa/stkpush", []byte("invalid json"), caller))
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should render gateway failures with an error payload", func() {
			// Given
			service.initiateErr = internal.NewExternalError("Payment gateway request failed", internal.ErrCodeGatewayUnavailable, errors.New("timeout"))

			// When
			handler.Initiate(recorder, createRequestWithUser("POST", "/api/v1/mpesa/stkpush", []byte(`{"purpose":"post_ad","phone":"0712345678"}`), caller))

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadGateway))
			var resp map[string]map[string]interface{}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp["error"]["code"]).To(gomega.Equal(string(internal.ErrCodeGatewayUnavailable)))
		})
	})

	ginkgo.Context("InitiateGuest", func() {
		ginkgo.It("should ignore the client amount and record no payer", func() {
			handler.InitiateGuest(recorder, createRequestWithUser("POST", "/api/v1/mpesa/stkpush/guest", []byte(`{"phone":"0712345678","amount":1,"purpose":"post_ad"}`), nil))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.lastInput.PayerID).To(gomega.BeNil())
			gomega.Expect(service.lastInput.Purpose).To(gomega.Equal("post_ad"))
		})
	})

	ginkgo.Context("GetPayment", func() {
		route := func(id string) *http.Request {
			req := createRequestWithUser("GET", "/api/v1/payments/"+id, nil, caller)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", id)
			return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		}

		ginkgo.It("should return the payment", func() {
			handler.GetPayment(recorder, route("3"))
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp map[string]interface{}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp["status"]).To(gomega.Equal("Pending"))
			gomega.Expect(resp["amount"]).To(gomega.Equal("100"))
		})

		ginkgo.It("should 404 an unknown payment", func() {
			handler.GetPayment(recorder, route("4"))
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})

		ginkgo.It("should reject a non-numeric id", func() {
			handler.GetPayment(recorder, route("abc"))
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Context("JobPaymentStatus", func() {
		ginkgo.It("should require a numeric job_id", func() {
			handler.JobPaymentStatus(recorder, createRequestWithUser("GET", "/api/v1/payments/job-status", nil, caller))
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should report the job activation state", func() {
			status := datamodel.StatusCompleted
			service.jobStatus = &paymentpkg.JobStatus{JobID: 5, IsActive: true, PaymentID: int64p(3), PaymentStatus: &status}

			handler.JobPaymentStatus(recorder, createRequestWithUser("GET", "/api/v1/payments/job-status?job_id=5", nil, caller))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp map[string]interface{}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp["is_active"]).To(gomega.BeTrue())
			gomega.Expect(resp["payment_status"]).To(gomega.Equal("Completed"))
		})
	})
})

var _ = ginkgo.Describe("WebhookHandler", func() {
	var (
		handler  *paymentpkg.WebhookHandler
		service  *mockPaymentService
		recorder *httptest.ResponseRecorder
	)

	ginkgo.BeforeEach(func() {
		service = &mockPaymentService{}
		handler = paymentpkg.NewWebhookHandler(transport.NewBaseHandler(logger.Discard()), service)
		recorder = httptest.NewRecorder()
	})

	expectAck := func() {
		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(recorder.Body.String()).To(gomega.MatchJSON(`{"ResultCode":0,"ResultDesc":"Accepted"}`))
	}

	ginkgo.It("should pass the raw body to settlement and acknowledge", func() {
		body := successBody("M1", "C1", "200")
		handler.HandleCallback(recorder, httptest.NewRequest("POST", "/callback", bytes.NewReader(body)))
		expectAck()
		gomega.Expect(service.lastCallback).To(gomega.Equal(body))
	})

	ginkgo.It("should acknowledge even when settlement fails", func() {
		service.callbackErr = errors.New("db down")
		handler.HandleCallback(recorder, httptest.NewRequest("POST", "/callback", bytes.NewReader([]byte("garbage"))))
		expectAck()
	})
})
