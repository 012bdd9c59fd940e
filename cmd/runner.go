package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/repositories"
	"github.com/partwheel/garsync/internal/services"
	"github.com/partwheel/garsync/internal/shared"
	"github.com/partwheel/garsync/internal/tasks"
)

// Default pass range applied when neither --from nor --to is given.
var (
	defaultRangeFrom = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	defaultRangeTo   = time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	logger *log.Logger
	output io.Writer

	// Injected in tests; built from config when nil.
	source services.SourceClient
	crm    services.CRMClient
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
	Source services.SourceClient
	CRM    services.CRMClient
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		logger: opts.Logger,
		output: opts.Output,
		source: opts.Source,
		crm:    opts.CRM,
	}
}

// Setup initializes the state database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	path, err := shared.ResolveDatabasePath(config.Database)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", path)

	db, err := shared.NewDatabase(path)
	if err != nil {
		return err
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return err
	}
	r.logger.Info("setup complete", "database", path)
	return nil
}

// Sync runs one pass, or loops when --loop-every is given.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	r.configureLogger(config.Log)

	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	path, err := shared.ResolveDatabasePath(config.Database)
	if err != nil {
		return err
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		return err
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	source := r.source
	if source == nil {
		source = services.NewABCPService(config.ABCP, r.logger)
	}
	crm := r.crm
	if crm == nil {
		crm = services.NewBitrixService(config.Bitrix, r.logger)
	}

	mapper := tasks.NewMapper(config.Bitrix.TitlePrefix, config.Bitrix.UserFieldCode, config.Fields)
	engine := tasks.NewGarageEngine(
		source,
		crm,
		mapper,
		repositories.NewGarageRepository(db),
		repositories.NewMappingRepository(db),
		repositories.NewCursorRepository(db),
		repositories.NewAuditRepository(db),
		retryPolicy(config.Sync),
		r.logger,
	)

	interval := time.Duration(cmd.Int("loop-every")) * time.Minute
	scheduler := tasks.NewScheduler(engine, interval, config.Sync.MaxIterations, r.logger)

	progress := make(chan tasks.ProgressUpdate, 16)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for update := range progress {
			r.logger.Debug(update.Message, "phase", update.Phase.String(), "step", update.Step, "total", update.Total)
		}
	}()

	result, runErr := scheduler.Run(ctx, req, progress)
	close(progress)
	<-progressDone

	if result != nil {
		r.writeSummary(req, result)
	}
	return runErr
}

// loadConfig reads the configured TOML file. An absent file falls back to
// the embedded defaults; a file that exists but cannot be parsed is a fatal
// configuration error, not a silent run with empty credentials.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	path := cmd.String("config")

	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return shared.DefaultConfig(), nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// configureLogger applies the configured level and optional rotating log file.
func (r *Runner) configureLogger(cfg shared.LogConfig) {
	if cfg.File != "" {
		r.logger = shared.NewFileLogger(nil, cfg)
	}
	if cfg.Level != "" {
		if level, err := log.ParseLevel(cfg.Level); err == nil {
			shared.SetLogLevel(r.logger, level)
		} else {
			r.logger.Warn("unknown log level, keeping default", "level", cfg.Level)
		}
	}
}

// buildRequest validates the date range and mode flags.
func buildRequest(cmd *cli.Command) (models.RunRequest, error) {
	var req models.RunRequest

	fromArg, toArg := cmd.String("from"), cmd.String("to")
	switch {
	case fromArg == "" && toArg == "":
		req.From, req.To = defaultRangeFrom, defaultRangeTo
	case fromArg == "" || toArg == "":
		return req, fmt.Errorf("%w: --from and --to must be given together", shared.ErrMissingArgument)
	default:
		var err error
		if req.From, err = shared.ParseDate(fromArg); err != nil {
			return req, err
		}
		if req.To, err = shared.ParseDate(toArg); err != nil {
			return req, err
		}
		// A bare end date means the whole day.
		if req.To.Hour() == 0 && req.To.Minute() == 0 && req.To.Second() == 0 {
			req.To = req.To.Add(24*time.Hour - time.Second)
		}
	}
	if req.To.Before(req.From) {
		return req, fmt.Errorf("%w: --to is before --from", shared.ErrInvalidArgument)
	}

	onlyStore, onlySync := cmd.Bool("only-store"), cmd.Bool("only-sync")
	switch {
	case onlyStore && onlySync:
		return req, fmt.Errorf("%w: --only-store and --only-sync are mutually exclusive", shared.ErrInvalidArgument)
	case onlyStore:
		req.Mode = models.ModeStoreOnly
	case onlySync:
		req.Mode = models.ModeSyncOnly
	default:
		req.Mode = models.ModeStoreAndSync
	}

	req.UserID = int64(cmd.Int("user"))
	return req, nil
}

// retryPolicy translates the config's retry section into engine terms.
func retryPolicy(cfg shared.SyncConfig) tasks.RetryPolicy {
	policy := tasks.DefaultRetryPolicy()
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryInitialMS > 0 {
		policy.Initial = time.Duration(cfg.RetryInitialMS) * time.Millisecond
	}
	if cfg.RetryMaxMS > 0 {
		policy.Max = time.Duration(cfg.RetryMaxMS) * time.Millisecond
	}
	if cfg.RetryMultiplier > 1 {
		policy.Multiplier = cfg.RetryMultiplier
	}
	return policy
}

func (r *Runner) writeSummary(req models.RunRequest, result *models.PassResult) {
	fmt.Fprintf(r.output, "%s pass %s: stored=%d created=%d updated=%d skipped=%d retried=%d\n",
		req.Mode.String(),
		result.Outcome.String(),
		result.Stored,
		result.Created,
		result.Updated,
		result.Skipped,
		result.Retried,
	)
}
