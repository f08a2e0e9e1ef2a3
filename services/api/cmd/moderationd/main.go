package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"modguard/pkg/blob"
	"modguard/pkg/bus"
	"modguard/pkg/clock"
	"modguard/pkg/db"
	"modguard/pkg/identity"
	"modguard/pkg/render"
	"modguard/pkg/telemetry"
	"modguard/services/anomaly"
	"modguard/services/api"
	"modguard/services/cases"
	"modguard/services/escalation"
	"modguard/services/evidence"
	"modguard/services/ledger"
	"modguard/services/notify"
	"modguard/services/timeline"
)

func main() {
	if err := run("moderationd"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	orm, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}

	eventBus, err := bus.New(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer eventBus.Close()

	var store blob.Store
	if cfg.S3Endpoint != "" {
		client, err := blob.NewClient(ctx, blob.Config{
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			ForcePathStyle: true,
		})
		if err != nil {
			return fmt.Errorf("init blob store: %w", err)
		}
		store = client
	} else {
		logger.Printf("WARN no S3 endpoint configured, evidence and archives use in-process storage")
		store = blob.NewMemory()
	}

	renderer, err := render.New()
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	notifier, err := notify.New(eventBus, renderer, logger)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}

	clk := clock.System()

	auditLedger, err := ledger.New(orm, eventBus, clk, logger, ledger.Config{
		Secret:   cfg.LedgerSecret,
		Location: cfg.Location,
	})
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	var signer *ledger.Signer
	if cfg.SigningKey != "" {
		signer, err = ledger.NewSigner(cfg.SigningKey, cfg.SigningPubKey)
		if err != nil {
			return fmt.Errorf("init archive signer: %w", err)
		}
	}
	archiver, err := ledger.NewArchiver(orm, store, signer, clk, logger)
	if err != nil {
		return fmt.Errorf("init archiver: %w", err)
	}

	sm, err := cases.New(orm, auditLedger, clk, notifier, logger)
	if err != nil {
		return fmt.Errorf("init state machine: %w", err)
	}

	policy, err := escalation.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		return err
	}
	engine, err := escalation.New(sm, policy, logger)
	if err != nil {
		return fmt.Errorf("init escalation engine: %w", err)
	}

	loader, err := anomaly.NewLoader(pool)
	if err != nil {
		return fmt.Errorf("init metrics loader: %w", err)
	}
	scorer, err := anomaly.NewScorer(loader, orm, clk, logger)
	if err != nil {
		return fmt.Errorf("init scorer: %w", err)
	}
	worker, err := anomaly.NewWorker(scorer, eventBus, logger)
	if err != nil {
		return fmt.Errorf("init anomaly worker: %w", err)
	}
	subs, err := worker.Run(ctx)
	if err != nil {
		return fmt.Errorf("start anomaly worker: %w", err)
	}
	defer subs.Close()

	builder, err := timeline.NewBuilder(pool, clk, logger)
	if err != nil {
		return fmt.Errorf("init timeline builder: %w", err)
	}

	collector, err := evidence.NewCollector(store, newScanOracle(logger), logger)
	if err != nil {
		return fmt.Errorf("init evidence collector: %w", err)
	}

	readStore, err := api.NewStore(pool)
	if err != nil {
		return fmt.Errorf("init read store: %w", err)
	}

	apiLayer, err := api.New(readStore, sm, engine, auditLedger, builder, scorer, collector,
		identity.HeaderProvider{}, logger, api.Config{RequestTimeout: cfg.RequestTimeout})
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}

	routes, err := apiLayer.Routes(middleware)
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	go runSweeps(ctx, sm, archiver, clk, cfg, logger)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: routes,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: server shutdown error: %v\n", serviceName, err)
		}
	}()

	logger.Printf("INFO listening on %s", server.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("ERROR server failed: %v", err)
		return err
	}

	return nil
}

// runSweeps expires warnings and restrictions on the configured interval
// and archives old ledger records once a day.
func runSweeps(ctx context.Context, sm *cases.StateMachine, archiver *ledger.Archiver, clk clock.Clock, cfg config, logger *log.Logger) {
	sweep := time.NewTicker(cfg.SweepInterval)
	defer sweep.Stop()
	archive := time.NewTicker(24 * time.Hour)
	defer archive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if n, err := sm.ExpireWarnings(ctx); err != nil {
				logger.Printf("ERROR expire warnings: %v", err)
			} else if n > 0 {
				logger.Printf("INFO expired %d warning(s)", n)
			}
			if n, err := sm.ExpireRestrictions(ctx); err != nil {
				logger.Printf("ERROR expire restrictions: %v", err)
			} else if n > 0 {
				logger.Printf("INFO expired %d restriction(s)", n)
			}
		case <-archive.C:
			cutoff := clk.Now().UTC().AddDate(0, 0, -cfg.RetentionDays)
			var n int
			err := db.WithTimeout(ctx, db.MaintenanceTimeout, func(ctx context.Context) error {
				var err error
				n, err = archiver.CleanupOlderThan(ctx, cutoff)
				return err
			})
			switch {
			case errors.Is(err, ledger.ErrMaintenanceBusy):
				logger.Printf("WARN archive run skipped, maintenance already in progress")
			case err != nil:
				logger.Printf("ERROR archive ledger records: %v", err)
			case n > 0:
				logger.Printf("INFO archived %d ledger record(s)", n)
			}
		}
	}
}

// scanOracle checks evidence payloads against an external scanning service.
// Without MODGUARD_SCAN_URL configured every payload passes, loudly.
type scanOracle struct {
	url    string
	client *http.Client
	logger *log.Logger
}

func newScanOracle(logger *log.Logger) *scanOracle {
	url := os.Getenv("MODGUARD_SCAN_URL")
	if url == "" && logger != nil {
		logger.Printf("WARN no MODGUARD_SCAN_URL configured, evidence scanning is disabled")
	}
	return &scanOracle{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (o *scanOracle) Scan(ctx context.Context, data []byte) (evidence.ScanResult, error) {
	if o.url == "" {
		return evidence.ScanResult{Clean: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(data))
	if err != nil {
		return evidence.ScanResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := o.client.Do(req)
	if err != nil {
		return evidence.ScanResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return evidence.ScanResult{}, fmt.Errorf("scan service returned %d", resp.StatusCode)
	}

	var verdict struct {
		Clean  bool   `json:"clean"`
		Threat string `json:"threat"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return evidence.ScanResult{}, fmt.Errorf("decode scan verdict: %w", err)
	}
	return evidence.ScanResult{Clean: verdict.Clean, Threat: verdict.Threat}, nil
}
