package payment_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	paymentpkg "github.com/ajirinow/backend/internal/payment"
)

func successBody(merchantID, checkoutID string, amount string) []byte {
	return []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"` + merchantID + `","CheckoutRequestID":"` + checkoutID + `","ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":` + amount + `},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"TransactionDate","Value":20240305140709},{"Name":"PhoneNumber","Value":254708374149}]}}}}`)
}

func failureBody(merchantID, checkoutID string) []byte {
	return []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"` + merchantID + `","CheckoutRequestID":"` + checkoutID + `","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`)
}

func mustParse(body []byte) paymentpkg.Callback {
	cb, err := paymentpkg.ParseCallback(body)
	Expect(err).ToNot(HaveOccurred())
	return cb
}

var _ = Describe("Ledger rules", func() {
	DescribeTable("server side amounts",
		func(purpose string, amount int64) {
			got, ok := paymentpkg.AmountFor(purpose)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(amount))
		},
		Entry("subscription", datamodel.PurposeSubscription, int64(200)),
		Entry("post_job", datamodel.PurposePostJob, int64(100)),
		Entry("post_ad", datamodel.PurposePostAd, int64(500)),
	)

	It("should reject unknown purposes", func() {
		_, ok := paymentpkg.AmountFor("donation")
		Expect(ok).To(BeFalse())
		Expect(paymentpkg.ValidPurpose("donation")).To(BeFalse())
	})
})

var _ = Describe("ParseCallback", func() {
	It("should read correlation ids, result and metadata", func() {
		// When
		cb := mustParse(successBody("M1", "C1", "200"))

		// Then
		Expect(cb.MerchantRequestID).To(Equal("M1"))
		Expect(cb.CheckoutRequestID).To(Equal("C1"))
		Expect(cb.Succeeded()).To(BeTrue())
		amount, ok := cb.Amount()
		Expect(ok).To(BeTrue())
		Expect(amount.Equal(decimal.NewFromInt(200))).To(BeTrue())
		Expect(cb.Receipt()).To(Equal("NLJ7RT61SV"))
		phone, ok := cb.Item("PhoneNumber")
		Expect(ok).To(BeTrue())
		Expect(phone).To(Equal("254708374149"))
	})

	It("should accept a callback without metadata", func() {
		cb := mustParse(failureBody("M1", "C1"))
		Expect(cb.Succeeded()).To(BeFalse())
		Expect(cb.ResultCode).To(Equal(1032))
		_, ok := cb.Amount()
		Expect(ok).To(BeFalse())
		Expect(cb.Receipt()).To(BeEmpty())
	})

	DescribeTable("malformed envelopes never panic",
		func(body string) {
			_, err := paymentpkg.ParseCallback([]byte(body))
			Expect(err).To(MatchError(paymentpkg.ErrInvalidCallback))
		},
		Entry("not json", `garbage`),
		Entry("empty object", `{}`),
		Entry("no stkCallback", `{"Body":{}}`),
		Entry("missing checkout id", `{"Body":{"stkCallback":{"MerchantRequestID":"M1","ResultCode":0}}}`),
	)

	DescribeTable("result codes other than the number zero are failures",
		func(body string) {
			cb, err := paymentpkg.ParseCallback([]byte(body))
			Expect(err).ToNot(HaveOccurred())
			Expect(cb.Succeeded()).To(BeFalse())
		},
		Entry("missing result code", `{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":"C1"}}}`),
		Entry("string zero", `{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":"C1","ResultCode":"0"}}}`),
		Entry("string cancel code", `{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":"C1","ResultCode":"1032"}}}`),
		Entry("null result code", `{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":"C1","ResultCode":null}}}`),
	)

	It("should ignore an unparseable Amount item", func() {
		cb := mustParse([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":"C1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Amount"}]}}}}`))
		_, ok := cb.Amount()
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Transition", func() {
	var (
		now   time.Time
		today time.Time
		fundi *user.User
		entry datamodel.Payment
	)

	BeforeEach(func() {
		now = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
		today = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
		fundi = &user.User{ID: 7, Role: user.RoleFundi}
		payerID := fundi.ID
		entry = datamodel.Payment{
			ID:                11,
			PayerID:           &payerID,
			Amount:            decimal.NewFromInt(200),
			Purpose:           datamodel.PurposeSubscription,
			MerchantRequestID: "M1",
			CheckoutRequestID: "C1",
			Status:            datamodel.StatusPending,
		}
	})

	Context("when the callback reports success", func() {
		It("should complete a subscription and extend the fundi to today plus 30 days", func() {
			// When
			next, effects, err := paymentpkg.Transition(entry, fundi, mustParse(successBody("M1", "C1", "200")), now, paymentpkg.Options{})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(next.Status).To(Equal(datamodel.StatusCompleted))
			Expect(next.Description).To(Equal("The service request is processed successfully."))
			Expect(*next.ReceiptNumber).To(Equal("NLJ7RT61SV"))
			Expect(*next.SettledAt).To(Equal(now))
			Expect(effects).To(ConsistOf(paymentpkg.ExtendSubscription{UserID: 7, Until: today.AddDate(0, 0, 30)}))
		})

		It("should reset a running subscription by default and stack when asked", func() {
			// Given
			current := today.AddDate(0, 0, 10)
			fundi.SubscriptionEnd = &current
			cb := mustParse(successBody("M1", "C1", "200"))

			// When
			_, reset, _ := paymentpkg.Transition(entry, fundi, cb, now, paymentpkg.Options{})
			_, stacked, _ := paymentpkg.Transition(entry, fundi, cb, now, paymentpkg.Options{StackSubscriptions: true})

			// Then
			Expect(reset[0].(paymentpkg.ExtendSubscription).Until).To(Equal(today.AddDate(0, 0, 30)))
			Expect(stacked[0].(paymentpkg.ExtendSubscription).Until).To(Equal(today.AddDate(0, 0, 40)))
		})

		It("should not extend a subscription for a non-fundi payer", func() {
			client := &user.User{ID: 7, Role: user.RoleClient}
			next, effects, err := paymentpkg.Transition(entry, client, mustParse(successBody("M1", "C1", "200")), now, paymentpkg.Options{})
			Expect(err).ToNot(HaveOccurred())
			Expect(next.Status).To(Equal(datamodel.StatusCompleted))
			Expect(effects).To(BeEmpty())
		})

		It("should overwrite the amount with the reported one", func() {
			next, _, _ := paymentpkg.Transition(entry, fundi, mustParse(successBody("M1", "C1", "150.50")), now, paymentpkg.Options{})
			Expect(next.Amount.String()).To(Equal("150.5"))
		})

		It("should keep the ledger amount when none is reported", func() {
			cb := mustParse([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":"C1","ResultCode":0,"ResultDesc":"ok"}}}`))
			next, _, _ := paymentpkg.Transition(entry, fundi, cb, now, paymentpkg.Options{})
			Expect(next.Amount.Equal(decimal.NewFromInt(200))).To(BeTrue())
			Expect(next.ReceiptNumber).To(BeNil())
		})

		It("should activate a job for twelve weeks and carry the explicit target", func() {
			// Given
			target := int64(42)
			entry.Purpose = datamodel.PurposePostJob
			entry.TargetID = &target

			// When
			next, effects, err := paymentpkg.Transition(entry, &user.User{ID: 7, Role: user.RoleClient}, mustParse(successBody("M1", "C1", "100")), now, paymentpkg.Options{})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(*next.PostExpiryDate).To(Equal(today.AddDate(0, 0, 84)))
			Expect(effects).To(HaveLen(1))
			act := effects[0].(paymentpkg.ActivateListing)
			Expect(act.Kind()).To(Equal(paymentpkg.KindJob))
			Expect(act.OwnerID).To(Equal(int64(7)))
			Expect(*act.TargetID).To(Equal(int64(42)))
			Expect(act.PaymentID).To(Equal(int64(11)))
			Expect(act.ExpiresAt).To(Equal(now.Add(paymentpkg.JobTerm)))
		})

		It("should activate an ad for seven days", func() {
			entry.Purpose = datamodel.PurposePostAd
			next, effects, _ := paymentpkg.Transition(entry, &user.User{ID: 7, Role: user.RoleAdvertiser}, mustParse(successBody("M1", "C1", "500")), now, paymentpkg.Options{})
			Expect(*next.PostExpiryDate).To(Equal(today.AddDate(0, 0, 7)))
			act := effects[0].(paymentpkg.ActivateListing)
			Expect(act.Kind()).To(Equal(paymentpkg.KindAd))
			Expect(act.ExpiresAt).To(Equal(now.Add(7 * 24 * time.Hour)))
		})

		It("should complete a guest payment without side effects", func() {
			entry.PayerID = nil
			entry.Purpose = datamodel.PurposePostJob
			next, effects, err := paymentpkg.Transition(entry, nil, mustParse(successBody("M1", "C1", "100")), now, paymentpkg.Options{})
			Expect(err).ToNot(HaveOccurred())
			Expect(next.Status).To(Equal(datamodel.StatusCompleted))
			Expect(effects).To(BeEmpty())
		})
	})

	Context("when the callback reports failure", func() {
		It("should fail the entry without any side effect", func() {
			// Given
			entry.Purpose = datamodel.PurposePostJob

			// When
			next, effects, err := paymentpkg.Transition(entry, fundi, mustParse(failureBody("M1", "C1")), now, paymentpkg.Options{})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(next.Status).To(Equal(datamodel.StatusFailed))
			Expect(next.Description).To(Equal("Request cancelled by user"))
			Expect(next.PostExpiryDate).To(BeNil())
			Expect(effects).To(BeEmpty())
		})

		It("should fail a subscription whose result code is a string", func() {
			// Given
			cb := mustParse([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"M1","CheckoutRequestID":"C1","ResultCode":"0","ResultDesc":"odd gateway"}}}`))

			// When
			next, effects, err := paymentpkg.Transition(entry, fundi, cb, now, paymentpkg.Options{})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(next.Status).To(Equal(datamodel.StatusFailed))
			Expect(next.Description).To(Equal("odd gateway"))
			Expect(effects).To(BeEmpty())
		})
	})

	Context("when the entry is already terminal", func() {
		DescribeTable("it should refuse to transition again",
			func(status string) {
				entry.Status = status
				next, effects, err := paymentpkg.Transition(entry, fundi, mustParse(successBody("M1", "C1", "200")), now, paymentpkg.Options{})
				Expect(err).To(MatchError(paymentpkg.ErrAlreadySettled))
				Expect(effects).To(BeNil())
				Expect(next).To(Equal(entry))
			},
			Entry("completed", datamodel.StatusCompleted),
			Entry("failed", datamodel.StatusFailed),
		)
	})
})
