// Package main is the entrypoint for the Granta admin CLI. It operates
// directly against the database, so it works even when the server is down
// or no admin account exists yet.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/granta-app/granta/internal/auth"
	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/entitlement"
	"github.com/granta-app/granta/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "granta-admin",
		Short:        "Granta administration CLI",
		Long:         `Granta Admin manages users and entitlements directly in the database.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newUserCmd(),
		newEntitlementCmd(),
		newSweepCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Granta Admin %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage admin users",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		email string
		name  string
		role  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin user",
		Long: `Create an admin user. The password is read from the terminal,
or from the GRANTA_ADMIN_PASSWORD environment variable in scripts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userRole := models.UserRole(role)
			if !userRole.IsValid() {
				return fmt.Errorf("invalid role %q (valid: admin, operator, viewer)", role)
			}

			password := os.Getenv("GRANTA_ADMIN_PASSWORD")
			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				scanner := bufio.NewScanner(os.Stdin)
				if !scanner.Scan() {
					return fmt.Errorf("read password: %w", scanner.Err())
				}
				password = strings.TrimSpace(scanner.Text())
			}
			if len(password) < auth.MinPasswordLength {
				return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			return withDatabase(func(ctx context.Context, database *db.DB) error {
				user := models.NewUser(strings.ToLower(email), name, userRole, hash)
				if err := database.CreateUser(ctx, user); err != nil {
					if db.IsUniqueViolation(err) {
						return fmt.Errorf("a user with email %s already exists", user.Email)
					}
					return err
				}
				fmt.Printf("Created %s user %s (%s)\n", user.Role, user.Email, user.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&role, "role", string(models.UserRoleAdmin), "Role: admin, operator or viewer")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newEntitlementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Manage download entitlements",
	}
	cmd.AddCommand(newEntitlementIssueCmd(), newEntitlementRevokeCmd())
	return cmd
}

func newEntitlementIssueCmd() *cobra.Command {
	var (
		productRef   string
		customerID   string
		maxDownloads int
		expiresDays  int
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an entitlement and print its download token",
		Long: `Issue an entitlement for a product, bypassing the payment flow.
The product may be referenced by UUID or slug.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, database *db.DB) error {
				product, err := resolveProduct(ctx, database, productRef)
				if err != nil {
					return err
				}

				var customer *uuid.UUID
				if customerID != "" {
					id, err := uuid.Parse(customerID)
					if err != nil {
						return fmt.Errorf("invalid customer id %q", customerID)
					}
					customer = &id
				}

				var limit *int
				if maxDownloads > 0 {
					limit = &maxDownloads
				}
				var expiresAt *time.Time
				if expiresDays > 0 {
					t := time.Now().AddDate(0, 0, expiresDays)
					expiresAt = &t
				}

				svc := entitlement.NewService(database, zerolog.Nop())
				ent, err := svc.Issue(ctx, product.ID, customer, limit, expiresAt)
				if err != nil {
					return err
				}

				fmt.Printf("Issued entitlement %s for %s\n", ent.ID, product.Name)
				fmt.Printf("Download token: %s\n", ent.DownloadToken)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&productRef, "product", "", "Product UUID or slug (required)")
	cmd.Flags().StringVar(&customerID, "customer", "", "Customer UUID (optional, guest grant when omitted)")
	cmd.Flags().IntVar(&maxDownloads, "max-downloads", 0, "Download limit (0 = unlimited)")
	cmd.Flags().IntVar(&expiresDays, "expires-in-days", 0, "Days until expiry (0 = never)")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func newEntitlementRevokeCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Suspend an entitlement",
		RunE: func(cmd *cobra.Command, args []string) error {
			entID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid entitlement id %q", id)
			}
			return withDatabase(func(ctx context.Context, database *db.DB) error {
				svc := entitlement.NewService(database, zerolog.Nop())
				if err := svc.Revoke(ctx, entID); err != nil {
					return err
				}
				fmt.Printf("Revoked entitlement %s\n", entID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Entitlement UUID (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale entitlements now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, database *db.DB) error {
				expired, err := database.ExpireStaleEntitlements(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Expired %d entitlements\n", expired)
				return nil
			})
		},
	}
}

func resolveProduct(ctx context.Context, database *db.DB, ref string) (*models.Product, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return database.GetProductByID(ctx, id)
	}
	return database.GetProductBySlug(ctx, ref)
}

// withDatabase connects using DATABASE_URL, runs fn and closes the pool.
func withDatabase(fn func(ctx context.Context, database *db.DB) error) error {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := db.DefaultConfig(url)
	cfg.MaxConns = 2
	cfg.MinConns = 1

	database, err := db.New(ctx, cfg, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	return fn(ctx, database)
}
