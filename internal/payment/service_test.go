package payment_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/ajirinow/backend/internal"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/core/events"
	"github.com/ajirinow/backend/internal/lock"
	"github.com/ajirinow/backend/internal/mpesa"
	paymentpkg "github.com/ajirinow/backend/internal/payment"
	"github.com/ajirinow/backend/pkg/logger"
)

// Mock repository keeping ledger entries in memory
type mockRepository struct {
	mu        sync.Mutex
	payments  []*datamodel.Payment
	payers    map[int64]*user.User
	callbacks []*datamodel.CallbackLog
	applied   []paymentpkg.SideEffect
	createErr error
	settleErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{payers: make(map[int64]*user.User)}
}

func (m *mockRepository) Create(ctx context.Context, p *datamodel.Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = int64(len(m.payments) + 1)
	p.CreatedAt = time.Now()
	cp := *p
	m.payments = append(m.payments, &cp)
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (*datamodel.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, paymentpkg.ErrPaymentNotFound
}

func (m *mockRepository) ListByPayer(ctx context.Context, payerID int64) ([]datamodel.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []datamodel.Payment
	for _, p := range m.payments {
		if p.PayerID != nil && *p.PayerID == payerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepository) Settle(ctx context.Context, merchantID, checkoutID string, fn paymentpkg.ApplyFunc) (*paymentpkg.Settlement, error) {
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.MerchantRequestID != merchantID || p.CheckoutRequestID != checkoutID {
			continue
		}
		var payer *user.User
		if p.PayerID != nil {
			payer = m.payers[*p.PayerID]
		}
		next, effects, err := fn(*p, payer)
		if err != nil {
			return &paymentpkg.Settlement{Payment: *p}, err
		}
		*p = next
		applied := make([]paymentpkg.Applied, 0, len(effects))
		for _, e := range effects {
			m.applied = append(m.applied, e)
			applied = append(applied, paymentpkg.Applied{Effect: e, TargetID: 99})
		}
		return &paymentpkg.Settlement{Payment: next, Applied: applied}, nil
	}
	return nil, paymentpkg.ErrUnmatchedCallback
}

func (m *mockRepository) AppendCallback(ctx context.Context, entry *datamodel.CallbackLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, entry)
	return nil
}

func (m *mockRepository) JobStatus(ctx context.Context, ownerID, jobID int64, now time.Time) (*paymentpkg.JobStatus, error) {
	if jobID == 5 && ownerID == 1 {
		return &paymentpkg.JobStatus{JobID: 5, IsActive: true}, nil
	}
	return nil, paymentpkg.ErrJobNotFound
}

type mockGateway struct {
	calls    int
	phone    string
	amount   int64
	response *mpesa.STKPushResponse
	err      error
}

func (m *mockGateway) STKPush(ctx context.Context, phone string, amount int64, description string) (*mpesa.STKPushResponse, error) {
	m.calls++
	m.phone = phone
	m.amount = amount
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType())
	}
	return out
}

func acceptedResponse(merchantID, checkoutID string) *mpesa.STKPushResponse {
	return &mpesa.STKPushResponse{
		MerchantRequestID: merchantID,
		CheckoutRequestID: checkoutID,
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}
}

func int64p(v int64) *int64 { return &v }

var _ = Describe("Service", func() {
	var (
		repo      *mockRepository
		gateway   *mockGateway
		publisher *mockPublisher
		service   *paymentpkg.Service
		ctx       context.Context
		now       time.Time
	)

	BeforeEach(func() {
		repo = newMockRepository()
		gateway = &mockGateway{response: acceptedResponse("M1", "C1")}
		publisher = &mockPublisher{}
		now = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
		service = paymentpkg.NewService(repo, gateway, lock.NewKeyedMutex(), publisher, paymentpkg.Options{}, logger.Discard()).
			WithClock(func() time.Time { return now })
		ctx = context.Background()
	})

	Describe("Initiate", func() {
		DescribeTable("should record a Pending entry at the server price",
			func(purpose string, amount int64) {
				// When
				p, err := service.Initiate(ctx, paymentpkg.InitiateInput{PayerID: int64p(1), Phone: "0712345678", Purpose: purpose})

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(p.Status).To(Equal(datamodel.StatusPending))
				Expect(p.Amount.Equal(decimal.NewFromInt(amount))).To(BeTrue())
				Expect(p.Phone).To(Equal("254712345678"))
				Expect(p.MerchantRequestID).To(Equal("M1"))
				Expect(p.CheckoutRequestID).To(Equal("C1"))
				Expect(p.Description).To(Equal("Success. Request accepted for processing"))
				Expect(gateway.amount).To(Equal(amount))
				Expect(gateway.phone).To(Equal("254712345678"))
			},
			Entry("subscription", datamodel.PurposeSubscription, int64(200)),
			Entry("post_job", datamodel.PurposePostJob, int64(100)),
			Entry("post_ad", datamodel.PurposePostAd, int64(500)),
		)

		It("should reject an unknown purpose before calling the gateway", func() {
			// When
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{PayerID: int64p(1), Phone: "0712345678", Purpose: "donation"})

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(gateway.calls).To(Equal(0))
		})

		It("should require a phone number", func() {
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{Purpose: datamodel.PurposePostJob})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			Expect(gateway.calls).To(Equal(0))
		})

		It("should refuse a target id on a subscription", func() {
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{Phone: "0712345678", Purpose: datamodel.PurposeSubscription, TargetID: int64p(3)})
			Expect(err).To(HaveOccurred())
			Expect(gateway.calls).To(Equal(0))
		})

		It("should surface gateway failures as 502 with the upstream body", func() {
			// Given
			gateway.err = &mpesa.GatewayError{Op: "token", StatusCode: 400, Body: `{"errorMessage":"Invalid credentials"}`}

			// When
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{PayerID: int64p(1), Phone: "0712345678", Purpose: datamodel.PurposePostAd})

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayUnavailable))
			Expect(appErr.Details).To(HaveKeyWithValue("upstream", ContainSubstring("Invalid credentials")))
			Expect(repo.payments).To(BeEmpty())
		})

		It("should not record anything when the push is not accepted", func() {
			// Given
			gateway.response = &mpesa.STKPushResponse{ResponseCode: "1", CustomerMessage: "Unable to process"}

			// When
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{PayerID: int64p(1), Phone: "0712345678", Purpose: datamodel.PurposePostJob})

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayRejected))
			Expect(repo.payments).To(BeEmpty())
		})

		It("should report storage failures as internal errors", func() {
			repo.createErr = errors.New("db down")
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{PayerID: int64p(1), Phone: "0712345678", Purpose: datamodel.PurposePostJob})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("HandleCallback", func() {
		BeforeEach(func() {
			repo.payers[1] = &user.User{ID: 1, Role: user.RoleFundi}
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{PayerID: int64p(1), Phone: "0712345678", Purpose: datamodel.PurposeSubscription})
			Expect(err).ToNot(HaveOccurred())
		})

		It("should apply a successful callback and publish its events", func() {
			// When
			outcome, err := service.HandleCallback(ctx, successBody("M1", "C1", "200"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome).To(Equal(paymentpkg.OutcomeApplied))
			Expect(repo.payments[0].Status).To(Equal(datamodel.StatusCompleted))
			Expect(repo.applied).To(HaveLen(1))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentCompleted, events.EventTypeSubscriptionExtended}))
			Expect(repo.callbacks).To(HaveLen(1))
			Expect(repo.callbacks[0].Outcome).To(Equal(paymentpkg.OutcomeApplied))
			Expect(*repo.callbacks[0].PaymentID).To(Equal(int64(1)))
			Expect(*repo.callbacks[0].ResultCode).To(Equal(0))
		})

		It("should treat a repeated callback as a duplicate with no second effect", func() {
			// When
			first, _ := service.HandleCallback(ctx, successBody("M1", "C1", "200"))
			second, err := service.HandleCallback(ctx, successBody("M1", "C1", "200"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(first).To(Equal(paymentpkg.OutcomeApplied))
			Expect(second).To(Equal(paymentpkg.OutcomeDuplicate))
			Expect(repo.applied).To(HaveLen(1))
			Expect(repo.callbacks[1].Outcome).To(Equal(paymentpkg.OutcomeDuplicate))
			Expect(*repo.callbacks[1].PaymentID).To(Equal(int64(1)))
		})

		It("should fail the entry and publish payment.failed", func() {
			outcome, err := service.HandleCallback(ctx, failureBody("M1", "C1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome).To(Equal(paymentpkg.OutcomeApplied))
			Expect(repo.payments[0].Status).To(Equal(datamodel.StatusFailed))
			Expect(repo.applied).To(BeEmpty())
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentFailed}))
		})

		It("should swallow callbacks for unknown correlation ids", func() {
			// When
			outcome, err := service.HandleCallback(ctx, successBody("M9", "C9", "200"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome).To(Equal(paymentpkg.OutcomeUnmatched))
			Expect(repo.payments[0].Status).To(Equal(datamodel.StatusPending))
			Expect(repo.callbacks[0].PaymentID).To(BeNil())
			Expect(publisher.types()).To(BeEmpty())
		})

		It("should log malformed bodies as invalid", func() {
			outcome, err := service.HandleCallback(ctx, []byte(`{"Body":`))
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome).To(Equal(paymentpkg.OutcomeInvalid))
			Expect(repo.callbacks[0].Payload).To(Equal(`{"Body":`))
		})

		It("should return storage failures to the caller", func() {
			repo.settleErr = errors.New("connection reset")
			outcome, err := service.HandleCallback(ctx, successBody("M1", "C1", "200"))
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
			Expect(outcome).To(Equal(paymentpkg.OutcomeError))
		})

		It("should settle exactly once under concurrent duplicates", func() {
			// When
			var wg sync.WaitGroup
			outcomes := make(chan string, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					o, err := service.HandleCallback(ctx, successBody("M1", "C1", "200"))
					Expect(err).ToNot(HaveOccurred())
					outcomes <- o
				}()
			}
			wg.Wait()
			close(outcomes)

			// Then
			applied := 0
			for o := range outcomes {
				if o == paymentpkg.OutcomeApplied {
					applied++
				}
			}
			Expect(applied).To(Equal(1))
			Expect(repo.applied).To(HaveLen(1))
		})
	})

	Describe("reads", func() {
		BeforeEach(func() {
			_, err := service.Initiate(ctx, paymentpkg.InitiateInput{PayerID: int64p(1), Phone: "0712345678", Purpose: datamodel.PurposePostJob})
			Expect(err).ToNot(HaveOccurred())
		})

		It("should return a payment to its payer", func() {
			p, err := service.Get(ctx, &internal.User{ID: 1}, 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Purpose).To(Equal(datamodel.PurposePostJob))
		})

		It("should hide other users' payments", func() {
			_, err := service.Get(ctx, &internal.User{ID: 2}, 1)
			Expect(err).To(Equal(internal.ErrPaymentNotFound))
		})

		It("should list the caller's payments only", func() {
			mine, err := service.ListMine(ctx, 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(mine).To(HaveLen(1))
			theirs, _ := service.ListMine(ctx, 2)
			Expect(theirs).To(BeEmpty())
		})

		It("should map a missing job to not found", func() {
			_, err := service.JobStatus(ctx, 2, 5)
			Expect(err).To(Equal(internal.ErrJobNotFound))
		})
	})
})
