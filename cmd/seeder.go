package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/entitlement"
	"github.com/ajirinow/backend/internal/user"
	userpg "github.com/ajirinow/backend/internal/user/postgres"
	"github.com/ajirinow/backend/pkg/logger"
)

// seedUsers has one account per role. The fundi starts on a fresh trial.
var seedUsers = []user.RegisterRequest{
	{
		PhoneNumber: "0711000001",
		Name:        "Juma Fundi",
		IDNumber:    "10000001",
		Role:        "fundi",
		Password:    "password123",
		Skills:      "plumbing, tiling",
		Location:    "Nairobi",
		RateNote:    "KSh 1500 per day",
	},
	{
		PhoneNumber: "0711000002",
		Name:        "Wanjiku Client",
		IDNumber:    "10000002",
		Role:        "client",
		Password:    "password123",
		RoleNote:    "Homeowner",
	},
	{
		PhoneNumber: "0711000003",
		Name:        "Otieno Ads",
		IDNumber:    "10000003",
		Role:        "advertiser",
		Password:    "password123",
		RoleNote:    "Hardware shop",
	},
}

// seedTables are cleared child first when --clear is passed.
var seedTables = []string{"payment_callbacks", "jobs", "ads", "payments", "fundi_profiles", "client_profiles", "users"}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with one user per role for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		initLogger(cfg)

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := clearTables(gdb); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		svc := user.NewService(userpg.NewRepository(gdb), entitlement.NewEvaluator(nil), cfg.Security.BCryptCost, logger.LoggerWrapper())
		if err := seed(context.Background(), svc); err != nil {
			log.Fatalf("failed to seed users: %v", err)
		}
	},
}

func clearTables(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range seedTables {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func seed(ctx context.Context, svc user.ServiceAPI) error {
	for _, req := range seedUsers {
		u, err := svc.Register(ctx, req)
		if errors.Is(err, internal.ErrPhoneTaken) {
			fmt.Printf("%s user %s already exists\n", req.Role, req.PhoneNumber)
			continue
		}
		if err != nil {
			return fmt.Errorf("register %s: %w", req.PhoneNumber, err)
		}
		fmt.Printf("Seeded %s user: %s (id %d)\n", u.Role, req.PhoneNumber, u.ID)
	}
	return nil
}
