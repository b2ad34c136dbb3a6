package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/payment"
	"github.com/ajirinow/backend/internal/user"
)

func TestCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cmd Suite")
}

type recordingUserService struct {
	user.ServiceAPI
	registered []string
	taken      map[string]bool
}

func (s *recordingUserService) Register(_ context.Context, req user.RegisterRequest) (*user.UserResponse, error) {
	if s.taken[req.PhoneNumber] {
		return nil, internal.ErrPhoneTaken
	}
	s.registered = append(s.registered, req.Role)
	return &user.UserResponse{ID: int64(len(s.registered)), Role: req.Role, PhoneNumber: req.PhoneNumber}, nil
}

var _ = Describe("loadConfig", func() {
	It("should read and validate the shipped config.yml", func() {
		dir := GinkgoT().TempDir()
		raw, err := os.ReadFile(filepath.Join("..", "config.yml"))
		Expect(err).ToNot(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), raw, 0o600)).To(Succeed())

		cfg, err := loadConfig(dir)

		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Server.Port).To(Equal(8080))
		Expect(cfg.Mpesa.ShortCode).To(Equal("174379"))
		Expect(cfg.Mpesa.GatewayTimeout()).To(Equal(30 * time.Second))
		Expect(cfg.Payment.AllowAnonymous).To(BeFalse())
		Expect(cfg.Payment.LockBackend).To(Equal("local"))
	})

	It("should fail when no config file exists", func() {
		_, err := loadConfig(GinkgoT().TempDir())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("migrationCommand", func() {
	AfterEach(func() {
		migrateRollback, migrateStatus = false, false
	})

	It("should migrate up by default", func() {
		Expect(migrationCommand()).To(Equal("up"))
	})

	It("should roll back or report status when asked", func() {
		migrateRollback = true
		Expect(migrationCommand()).To(Equal("down"))

		migrateStatus = true
		Expect(migrationCommand()).To(Equal("status"))
	})
})

var _ = Describe("seed", func() {
	It("should register one user per role and skip existing phones", func() {
		svc := &recordingUserService{taken: map[string]bool{"0711000003": true}}

		Expect(seed(context.Background(), svc)).To(Succeed())

		Expect(svc.registered).To(Equal([]string{"fundi", "client"}))
	})
})

var _ = Describe("simulate-callback", func() {
	var (
		server   *httptest.Server
		received []byte
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ResultCode":0,"ResultDesc":"Accepted"}`))
		}))
		simMerchant, simCheckout, simResultCode, simAmount, simReceipt, simPhone = "M1", "C1", 0, 200, "QKX1", "254711111111"
	})

	AfterEach(func() {
		server.Close()
	})

	It("should post a callback that settlement can parse", func() {
		env := buildSimulatedCallback(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))

		Expect(postCallback(context.Background(), server.Client(), server.URL+"/callback", env)).To(Succeed())

		cb, err := payment.ParseCallback(received)
		Expect(err).ToNot(HaveOccurred())
		Expect(cb.MerchantRequestID).To(Equal("M1"))
		Expect(cb.CheckoutRequestID).To(Equal("C1"))
		Expect(cb.Succeeded()).To(BeTrue())
		Expect(cb.Receipt()).To(Equal("QKX1"))
		amount, ok := cb.Amount()
		Expect(ok).To(BeTrue())
		Expect(amount.IntPart()).To(Equal(int64(200)))
	})

	It("should send a failure without metadata", func() {
		simResultCode = 1032
		env := buildSimulatedCallback(time.Now())

		Expect(postCallback(context.Background(), server.Client(), server.URL, env)).To(Succeed())

		cb, err := payment.ParseCallback(received)
		Expect(err).ToNot(HaveOccurred())
		Expect(cb.Succeeded()).To(BeFalse())
		Expect(cb.Items).To(BeEmpty())
	})
})
