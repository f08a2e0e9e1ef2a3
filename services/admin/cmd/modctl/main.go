package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"modguard/pkg/blob"
	"modguard/pkg/clock"
	"modguard/pkg/db"
	"modguard/services/anomaly"
	"modguard/services/ledger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "modctl",
		Short:         "Operator utility for the moderation audit service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newChainCommand())
	cmd.AddCommand(newScoreCommand())
	return cmd
}

func newChainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Audit chain verification and archival",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newChainVerifyCommand())
	cmd.AddCommand(newChainCleanupCommand())
	return cmd
}

func newChainVerifyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-verify record hashes and chain linkage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			lg, _, err := openLedger(ctx)
			if err != nil {
				return err
			}

			var report ledger.ChainReport
			err = db.WithTimeout(ctx, db.MaintenanceTimeout, func(ctx context.Context) error {
				var err error
				report, err = lg.VerifyChain(ctx, limit)
				return err
			})
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if len(report.Violations) > 0 {
				return fmt.Errorf("chain verification found %d violation(s)", len(report.Violations))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Verify only the most recent N records (0 verifies all)")
	return cmd
}

func newChainCleanupCommand() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Archive and prune ledger records past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			_, orm, err := openLedger(ctx)
			if err != nil {
				return err
			}

			store, err := openBlobStore(ctx)
			if err != nil {
				return err
			}
			var signer *ledger.Signer
			if key := os.Getenv("MODGUARD_SIGNING_KEY"); key != "" {
				signer, err = ledger.NewSigner(key, os.Getenv("MODGUARD_SIGNING_PUB"))
				if err != nil {
					return err
				}
			}

			archiver, err := ledger.NewArchiver(orm, store, signer, clock.System(), log.New(os.Stderr, "", log.LstdFlags))
			if err != nil {
				return err
			}

			cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
			var n int
			err = db.WithTimeout(ctx, db.MaintenanceTimeout, func(ctx context.Context) error {
				var err error
				n, err = archiver.CleanupOlderThan(ctx, cutoff)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("archived %d record(s) older than %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 365, "Archive records older than this many days")
	return cmd
}

func newScoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute anomaly scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newScoreSubjectCommand(anomaly.KindModerator, "Score a moderator's recent activity"))
	cmd.AddCommand(newScoreSubjectCommand(anomaly.KindReporter, "Score a reporter's recent activity"))
	return cmd
}

func newScoreSubjectCommand(kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " <subject-uuid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("subject must be a UUID: %w", err)
			}

			ctx := commandContext(cmd)
			dsn := os.Getenv("MODGUARD_DB_DSN")
			if dsn == "" {
				return fmt.Errorf("MODGUARD_DB_DSN is required")
			}
			pool, err := db.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer pool.Close()
			orm, err := openORM(dsn)
			if err != nil {
				return err
			}

			loader, err := anomaly.NewLoader(pool)
			if err != nil {
				return err
			}
			scorer, err := anomaly.NewScorer(loader, orm, clock.System(), log.New(os.Stderr, "", log.LstdFlags))
			if err != nil {
				return err
			}

			result, err := scorer.Score(ctx, kind, subjectID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"subject_id": subjectID,
				"kind":       kind,
				"score":      result.Score,
				"risk_level": result.Level,
				"factors":    result.Factors,
				"failed":     result.Failed,
			})
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openORM(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func openLedger(ctx context.Context) (*ledger.Ledger, *gorm.DB, error) {
	dsn := os.Getenv("MODGUARD_DB_DSN")
	if dsn == "" {
		return nil, nil, fmt.Errorf("MODGUARD_DB_DSN is required")
	}
	secret := os.Getenv("MODGUARD_LEDGER_SECRET")
	if secret == "" {
		return nil, nil, fmt.Errorf("MODGUARD_LEDGER_SECRET is required")
	}

	orm, err := openORM(dsn)
	if err != nil {
		return nil, nil, err
	}

	lg, err := ledger.New(orm, nil, clock.System(), log.New(os.Stderr, "", log.LstdFlags), ledger.Config{Secret: secret})
	if err != nil {
		return nil, nil, err
	}
	return lg, orm, nil
}

func openBlobStore(ctx context.Context) (blob.Store, error) {
	endpoint := os.Getenv("MODGUARD_S3_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("MODGUARD_S3_ENDPOINT is required for cleanup (archives must land in durable storage)")
	}
	return blob.NewClient(ctx, blob.Config{
		Endpoint:       endpoint,
		AccessKey:      os.Getenv("MODGUARD_S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("MODGUARD_S3_SECRET_KEY"),
		Region:         envOr("MODGUARD_S3_REGION", "us-east-1"),
		Bucket:         envOr("MODGUARD_S3_BUCKET", "modguard"),
		ForcePathStyle: true,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
