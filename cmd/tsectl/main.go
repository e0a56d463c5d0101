// tsectl walks the TSS provisioning state machine outside request
// handling: first-use setup, client registration, a signing self-test
// and compliance export. It talks to the fiscal API directly with
// credentials from flags or environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/fiscal/fiskaly"
	"go.uber.org/zap"
)

const usage = `usage: tsectl [flags] <command>

commands:
  status     print the current TSS state
  init       drive the TSS to INITIALIZED (CREATED -> UNINITIALIZED -> INITIALIZED)
  register   register the client id under the TSS
  selftest   start, finish and cancel probe transactions
  export     download the compliance export (requires -start and -end)
`

func main() {
	_ = godotenv.Load()

	var (
		apiKey      = flag.String("api-key", os.Getenv("FISKALY_API_KEY"), "fiscal API key")
		apiSecret   = flag.String("api-secret", os.Getenv("FISKALY_API_SECRET"), "fiscal API secret")
		tssID       = flag.String("tss", os.Getenv("FISKALY_TSS_ID"), "TSS id")
		clientID    = flag.String("client", os.Getenv("FISKALY_CLIENT_ID"), "client id")
		adminPIN    = flag.String("admin-pin", os.Getenv("FISKALY_ADMIN_PIN"), "admin PIN (init only)")
		environment = flag.String("env", envOr("FISKALY_ENVIRONMENT", domain.EnvironmentSandbox), "sandbox or production")
		baseURL     = flag.String("base-url", os.Getenv("FISCAL_BASE_URL"), "endpoint override")
		startDate   = flag.String("start", "", "export start date (YYYY-MM-DD)")
		endDate     = flag.String("end", "", "export end date (YYYY-MM-DD)")
		outFile     = flag.String("out", "fiscal-export.tar", "export output file")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall command timeout")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	if *apiKey == "" || *apiSecret == "" || *tssID == "" || *clientID == "" {
		fmt.Fprintln(os.Stderr, "tsectl: api-key, api-secret, tss and client are required")
		os.Exit(2)
	}

	logCfg := zap.NewDevelopmentConfig()
	log, err := logCfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tsectl:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	opts := []fiskaly.Option{}
	if *baseURL != "" {
		opts = append(opts, fiskaly.WithBaseURL(*baseURL))
	}
	client := fiskaly.New(fiskaly.Config{
		APIKey:      *apiKey,
		APISecret:   *apiSecret,
		TssID:       *tssID,
		ClientID:    *clientID,
		Environment: *environment,
	}, log, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "status":
		err = runStatus(ctx, client, log)
	case "init":
		err = runInit(ctx, client, log, *adminPIN)
	case "register":
		err = client.EnsureClientRegistered(ctx)
		if err == nil {
			log.Info("client registered", zap.String("client_id", *clientID))
		}
	case "selftest":
		err = runSelftest(ctx, client, log)
	case "export":
		err = runExport(ctx, client, log, *startDate, *endDate, *outFile)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error("command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func runStatus(ctx context.Context, client *fiskaly.Client, log *zap.Logger) error {
	state, err := client.TssState(ctx)
	if err != nil {
		return err
	}
	log.Info("tss status", zap.String("state", state))
	return nil
}

// runInit drives the full provisioning walk. Each edge is idempotent,
// so re-running after a partial failure is safe.
func runInit(ctx context.Context, client *fiskaly.Client, log *zap.Logger, adminPIN string) error {
	state, err := client.TssState(ctx)
	if err != nil {
		return err
	}
	log.Info("tss state", zap.String("state", state))

	switch state {
	case domain.TssStateInitialized:
		log.Info("tss already initialized")
		return nil
	case domain.TssStateDisabled:
		return fmt.Errorf("tss is disabled, provisioning is terminal")
	}

	if state == domain.TssStateCreated {
		if err := client.InitializeTss(ctx); err != nil {
			return err
		}
		log.Info("tss transitioned", zap.String("state", domain.TssStateUninitialized))
	}

	if adminPIN == "" {
		return fmt.Errorf("admin PIN is required for the UNINITIALIZED -> INITIALIZED edge")
	}
	if err := client.AdminAuth(ctx, adminPIN); err != nil {
		return err
	}
	if err := client.SetTssState(ctx, domain.TssStateInitialized); err != nil {
		return err
	}

	log.Info("waiting for tss to reach INITIALIZED")
	if err := client.WaitForTssState(ctx, domain.TssStateInitialized); err != nil {
		return err
	}
	log.Info("tss initialized")

	if err := client.EnsureClientRegistered(ctx); err != nil {
		return err
	}
	log.Info("client registered")
	return nil
}

func runSelftest(ctx context.Context, client *fiskaly.Client, log *zap.Logger) error {
	if _, err := client.HealthCheck(ctx); err != nil {
		return err
	}
	log.Info("health check passed")

	items := []domain.SaleItem{{Name: "selftest", Price: 0.01, Quantity: 1}}

	signedID := uuid.NewString()
	if err := client.StartTransaction(ctx, signedID); err != nil {
		return err
	}
	snapshot, err := client.FinishTransaction(ctx, signedID, 0.01, domain.PaymentMethodCash, items)
	if err != nil {
		return err
	}
	log.Info("probe transaction signed",
		zap.Int64("number", snapshot.TransactionNumber),
		zap.Int64("counter", snapshot.SignatureCounter),
		zap.String("algorithm", snapshot.SignatureAlgorithm),
	)

	cancelledID := uuid.NewString()
	if err := client.StartTransaction(ctx, cancelledID); err != nil {
		return err
	}
	if err := client.CancelTransaction(ctx, cancelledID); err != nil {
		return err
	}
	log.Info("probe transaction cancelled")
	return nil
}

func runExport(ctx context.Context, client *fiskaly.Client, log *zap.Logger, startDate, endDate, outFile string) error {
	if startDate == "" || endDate == "" {
		return fmt.Errorf("-start and -end are required")
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}

	data, err := client.Export(ctx, start, end)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, data, 0o644); err != nil {
		return err
	}
	log.Info("export written", zap.String("file", outFile), zap.Int("bytes", len(data)))
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
