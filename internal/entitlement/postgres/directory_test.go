package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
)

func TestCandidateRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Fundi Directory Repository Suite")
}

var _ = ginkgo.Describe("CandidateRepository", func() {
	var (
		gdb  *gorm.DB
		repo *CandidateRepository
		now  time.Time
	)

	ginkgo.BeforeEach(func() {
		var err error
		gdb, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		sqlDB, err := gdb.DB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		sqlDB.SetMaxOpenConns(1)

		gomega.Expect(gdb.AutoMigrate(&user.User{}, &user.FundiProfile{})).To(gomega.Succeed())
		repo = NewCandidateRepository(sqlx.NewDb(sqlDB, "sqlite3"))

		now = time.Now().UTC()
		trialEnds := now.Add(48 * time.Hour)
		fundi := &user.User{PhoneNumber: "254711000001", Name: "Wanjiru", Role: user.RoleFundi, PasswordHash: "x", IsActive: true, TrialEnds: &trialEnds}
		client := &user.User{PhoneNumber: "254711000002", Name: "Otieno", Role: user.RoleClient, PasswordHash: "x", IsActive: true}
		gomega.Expect(gdb.Create(fundi).Error).ToNot(gomega.HaveOccurred())
		gomega.Expect(gdb.Create(client).Error).ToNot(gomega.HaveOccurred())
		gomega.Expect(gdb.Create(&user.FundiProfile{UserID: fundi.ID, Skills: "plumbing", Location: "Nairobi", IsAvailable: true, ShowContact: true, RateNote: "Ksh 1500/day"}).Error).ToNot(gomega.HaveOccurred())
	})

	ginkgo.Describe("ListFundiCandidates", func() {
		ginkgo.It("should join profiles with their owners' entitlement timestamps", func() {
			// When
			candidates, err := repo.ListFundiCandidates(context.Background())

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(candidates).To(gomega.HaveLen(1))
			gomega.Expect(candidates[0].Name).To(gomega.Equal("Wanjiru"))
			gomega.Expect(candidates[0].Skills).To(gomega.Equal("plumbing"))
			gomega.Expect(candidates[0].ShowContact).To(gomega.BeTrue())
			gomega.Expect(candidates[0].TrialEnds).ToNot(gomega.BeNil())
			gomega.Expect(candidates[0].SubscriptionEnd).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("GetFundiCandidate", func() {
		ginkgo.It("should return not found for a non-fundi user", func() {
			// When
			_, err := repo.GetFundiCandidate(context.Background(), 2)

			// Then
			gomega.Expect(err).To(gomega.MatchError(entitlement.ErrCandidateNotFound))
		})
	})
})
