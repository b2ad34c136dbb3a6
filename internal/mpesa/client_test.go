package mpesa_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ajirinow/backend/internal/mpesa"
	"github.com/ajirinow/backend/pkg/logger"
)

func TestMpesa(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mpesa Client Suite")
}

func ctx() context.Context { return context.Background() }

type sandbox struct {
	server      *httptest.Server
	tokenStatus int
	tokenBody   string
	pushStatus  int
	pushBody    string
	lastPush    mpesa.STKPushRequest
	lastAuth    string
	tokenCalls  int
}

func newSandbox() *sandbox {
	s := &sandbox{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"tok-123","expires_in":"3599"}`,
		pushStatus:  http.StatusOK,
		pushBody:    `{"MerchantRequestID":"M1","CheckoutRequestID":"C1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		s.tokenCalls++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errorMessage":"Invalid credentials"}`))
			return
		}
		if r.URL.Query().Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(s.tokenStatus)
		_, _ = w.Write([]byte(s.tokenBody))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		s.lastAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&s.lastPush)
		w.WriteHeader(s.pushStatus)
		_, _ = w.Write([]byte(s.pushBody))
	})
	s.server = httptest.NewServer(mux)
	return s
}

var _ = Describe("Client", func() {
	var (
		sb     *sandbox
		client *mpesa.Client
		fixed  time.Time
	)

	BeforeEach(func() {
		sb = newSandbox()
		fixed = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
		client = mpesa.NewClient(mpesa.Config{
			BaseURL:        sb.server.URL + "/",
			ConsumerKey:    "key",
			ConsumerSecret: "secret",
			ShortCode:      "174379",
			PassKey:        "passkey",
			CallbackURL:    "https://example.com/callback",
		}, logger.Discard()).WithClock(func() time.Time { return fixed })
	})

	AfterEach(func() {
		sb.server.Close()
	})

	Describe("Password", func() {
		It("should base64 encode shortcode, passkey and timestamp", func() {
			// When
			pw := mpesa.Password("174379", "passkey", "20240305140709")

			// Then
			raw, err := base64.StdEncoding.DecodeString(pw)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(raw)).To(Equal("174379passkey20240305140709"))
		})

		It("should format timestamps as YYYYMMDDHHMMSS", func() {
			Expect(mpesa.Timestamp(fixed)).To(Equal("20240305140709"))
		})
	})

	Describe("STKPush", func() {
		Context("when the gateway accepts the push", func() {
			It("should return the correlation ids and send a complete payload", func() {
				// When
				resp, err := client.STKPush(ctx(), "254711111111", 200, "subscription")

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Accepted()).To(BeTrue())
				Expect(resp.MerchantRequestID).To(Equal("M1"))
				Expect(resp.CheckoutRequestID).To(Equal("C1"))

				Expect(sb.lastAuth).To(Equal("Bearer tok-123"))
				Expect(sb.lastPush.BusinessShortCode).To(Equal("174379"))
				Expect(sb.lastPush.Timestamp).To(Equal("20240305140709"))
				Expect(sb.lastPush.Password).To(Equal(mpesa.Password("174379", "passkey", "20240305140709")))
				Expect(sb.lastPush.TransactionType).To(Equal("CustomerPayBillOnline"))
				Expect(sb.lastPush.Amount).To(Equal(int64(200)))
				Expect(sb.lastPush.PartyA).To(Equal("254711111111"))
				Expect(sb.lastPush.PartyB).To(Equal("174379"))
				Expect(sb.lastPush.PhoneNumber).To(Equal("254711111111"))
				Expect(sb.lastPush.CallBackURL).To(Equal("https://example.com/callback"))
				Expect(sb.lastPush.AccountReference).To(Equal("AjiriNow"))
			})

			It("should fetch a new token on every push", func() {
				// When
				_, err1 := client.STKPush(ctx(), "254711111111", 200, "subscription")
				_, err2 := client.STKPush(ctx(), "254711111111", 100, "post_job")

				// Then
				Expect(err1).ToNot(HaveOccurred())
				Expect(err2).ToNot(HaveOccurred())
				Expect(sb.tokenCalls).To(Equal(2))
			})
		})

		Context("when the gateway answers with a non-zero response code", func() {
			It("should return the response without error", func() {
				// Given
				sb.pushBody = `{"MerchantRequestID":"M2","CheckoutRequestID":"C2","ResponseCode":"1","CustomerMessage":"Rejected"}`

				// When
				resp, err := client.STKPush(ctx(), "254711111111", 200, "subscription")

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Accepted()).To(BeFalse())
			})
		})

		Context("when token acquisition fails", func() {
			It("should return a GatewayError carrying the upstream body", func() {
				// Given
				sb.tokenStatus = http.StatusBadRequest
				sb.tokenBody = `{"errorMessage":"bad grant"}`

				// When
				_, err := client.STKPush(ctx(), "254711111111", 200, "subscription")

				// Then
				var gwErr *mpesa.GatewayError
				Expect(errors.As(err, &gwErr)).To(BeTrue())
				Expect(gwErr.Op).To(Equal("token"))
				Expect(gwErr.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(gwErr.Body).To(ContainSubstring("bad grant"))
			})

			It("should fail when no token is returned", func() {
				// Given
				sb.tokenBody = `{}`

				// When
				_, err := client.STKPush(ctx(), "254711111111", 200, "subscription")

				// Then
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("no access token"))
			})
		})

		Context("when the push submission fails", func() {
			It("should return a GatewayError with the response body", func() {
				// Given
				sb.pushStatus = http.StatusInternalServerError
				sb.pushBody = `{"errorCode":"500.001.1001","errorMessage":"Unable to lock subscriber"}`

				// When
				_, err := client.STKPush(ctx(), "254711111111", 200, "subscription")

				// Then
				var gwErr *mpesa.GatewayError
				Expect(errors.As(err, &gwErr)).To(BeTrue())
				Expect(gwErr.Op).To(Equal("stkpush"))
				Expect(gwErr.Body).To(ContainSubstring("Unable to lock subscriber"))
			})

			It("should treat a malformed body as a gateway failure", func() {
				// Given
				sb.pushBody = `not json`

				// When
				_, err := client.STKPush(ctx(), "254711111111", 200, "subscription")

				// Then
				var gwErr *mpesa.GatewayError
				Expect(errors.As(err, &gwErr)).To(BeTrue())
				Expect(gwErr.Body).To(Equal("not json"))
			})
		})
	})

	Describe("NewClient", func() {
		It("should bound outbound calls by 30 seconds by default", func() {
			c := mpesa.NewClient(mpesa.Config{BaseURL: "http://localhost"}, nil)
			Expect(c.Timeout()).To(Equal(30 * time.Second))
		})
	})
})
