package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/careguard/internal/config"
	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/policy"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careguard-server",
		Short: "Access-controlled healthcare records API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(policyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// openMigrator connects to the configured store and returns its migrator
// along with a function releasing the connection.
func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		gdb, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		m, err := db.NewSQLiteMigrator(gdb)
		release := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return m, release, err
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		m, err := db.NewPostgresMigrator(pool)
		return m, pool.Close, err
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, release, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer release()

			count, err := m.Up(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, release, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer release()

			statuses, err := m.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, release, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer release()

			if err := m.Down(ctx); err != nil {
				return err
			}
			fmt.Println("Rolled back one migration.")
			return nil
		},
	})

	return cmd
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the access rule table",
	}

	var file string
	cmd.PersistentFlags().StringVar(&file, "file", "", "Rule file (defaults to POLICY_FILE or the built-in table)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRulesFor(file)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(rules)
		},
	})

	var role, resource, action, owner, actorFacility, resourceFacility string
	check := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one access decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRulesFor(file)
			if err != nil {
				return err
			}
			actor, res, act, err := decisionInput(role, resource, action, owner, actorFacility, resourceFacility)
			if err != nil {
				return err
			}
			d := policy.NewEvaluator(rules).Evaluate(actor, act, res)
			outcome := "DENY"
			if d.Allowed {
				outcome = "ALLOW"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s on %s: %s\n", outcome, actor.Role, act, res.Type, d.Reason)
			return nil
		},
	}
	check.Flags().StringVar(&role, "role", "", "Actor role")
	check.Flags().StringVar(&resource, "resource", "", "Resource type")
	check.Flags().StringVar(&action, "action", string(policy.ActionRead), "Action")
	check.Flags().StringVar(&owner, "owner", "", "Set when the actor owns the resource (yes)")
	check.Flags().StringVar(&actorFacility, "actor-facility", "", "Actor facility id")
	check.Flags().StringVar(&resourceFacility, "resource-facility", "", "Resource facility id")
	_ = check.MarkFlagRequired("role")
	_ = check.MarkFlagRequired("resource")
	cmd.AddCommand(check)

	return cmd
}

func loadRulesFor(file string) (*policy.Rules, error) {
	if file == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		file = cfg.PolicyFile
	}
	return loadRules(file)
}

// decisionInput builds a synthetic actor and resource for `policy check`.
func decisionInput(role, resource, action, owner, actorFacility, resourceFacility string) (policy.Actor, policy.Resource, policy.Action, error) {
	r, err := policy.ParseRole(strings.ToUpper(role))
	if err != nil {
		return policy.Actor{}, policy.Resource{}, "", err
	}
	actor := policy.Actor{ID: uuid.New(), Role: r}
	res := policy.Resource{Type: policy.ResourceType(strings.ToLower(resource)), ID: uuid.New()}
	if !res.Type.Valid() {
		return policy.Actor{}, policy.Resource{}, "", fmt.Errorf("unknown resource type %q", resource)
	}
	act := policy.Action(strings.ToLower(action))
	if !act.Valid() {
		return policy.Actor{}, policy.Resource{}, "", fmt.Errorf("unknown action %q", action)
	}
	if owner == "yes" {
		res.OwnerUserID = &actor.ID
	}
	if actor.FacilityID, err = optionalID(actorFacility); err != nil {
		return policy.Actor{}, policy.Resource{}, "", fmt.Errorf("actor-facility: %w", err)
	}
	if res.FacilityID, err = optionalID(resourceFacility); err != nil {
		return policy.Actor{}, policy.Resource{}, "", fmt.Errorf("resource-facility: %w", err)
	}
	return actor, res, act, nil
}

func optionalID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
