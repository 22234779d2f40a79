package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/models"
)

const (
	defaultListenAddr           = "localhost:8000"
	defaultLoggingLevel         = logger.LevelInfo
	defaultEnvironment          = logger.EnvProduction
	defaultPayoutInterval       = 5 * time.Minute
	defaultPayoutTimezone       = "UTC"
	defaultJobWorkers           = 4
	defaultJobMaxAttempts       = models.DefaultJobMaxAttempts
	defaultJobPollInterval      = time.Second
	defaultCampaignPollInterval = time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Environment: dev or prod
	Environment string

	// Payout scheduler tick and the zone grid boundaries are computed in
	PayoutInterval time.Duration
	PayoutTimezone string

	// TOML file with commission levels; built-in rules if empty
	CommissionRules string

	JobWorkers      int
	JobMaxAttempts  int
	JobPollInterval time.Duration

	// How often completion checks are queued for sending campaigns
	CampaignPollInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:             defaultLoggingLevel,
		ListenAddr:           defaultListenAddr,
		Environment:          defaultEnvironment,
		PayoutInterval:       defaultPayoutInterval,
		PayoutTimezone:       defaultPayoutTimezone,
		JobWorkers:           defaultJobWorkers,
		JobMaxAttempts:       defaultJobMaxAttempts,
		JobPollInterval:      defaultJobPollInterval,
		CampaignPollInterval: defaultCampaignPollInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"PAYOUT_INTERVAL":        setDuration(&c.PayoutInterval),
		"PAYOUT_TIMEZONE":        setString(&c.PayoutTimezone),
		"COMMISSION_RULES":       setString(&c.CommissionRules),
		"JOB_WORKERS":            setInt(&c.JobWorkers),
		"JOB_MAX_ATTEMPTS":       setInt(&c.JobMaxAttempts),
		"JOB_POLL_INTERVAL":      setDuration(&c.JobPollInterval),
		"CAMPAIGN_POLL_INTERVAL": setDuration(&c.CampaignPollInterval),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// RegisterFlags binds flags to the config; current values become flag defaults
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.PayoutInterval, "payout-interval", c.PayoutInterval, "Payout scheduler tick")
	fs.StringVar(&c.PayoutTimezone, "payout-timezone", c.PayoutTimezone, "Time zone of payout boundaries")
	fs.StringVar(&c.CommissionRules, "commission-rules", c.CommissionRules, "TOML file with commission levels")
	fs.IntVar(&c.JobWorkers, "job-workers", c.JobWorkers, "Job worker goroutines")
	fs.IntVar(&c.JobMaxAttempts, "job-max-attempts", c.JobMaxAttempts, "Attempts before a job fails terminally")
	fs.DurationVar(&c.JobPollInterval, "job-poll-interval", c.JobPollInterval, "Idle job queue poll interval")
	fs.DurationVar(&c.CampaignPollInterval, "campaign-poll-interval", c.CampaignPollInterval, "Campaign completion check interval")
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("yieldmart", pflag.ContinueOnError)
	c.RegisterFlags(fs)

	return fs.Parse(args)
}

// Location of payout grid boundaries
func (c *Config) PayoutLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.PayoutTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid payout timezone %q: %w", c.PayoutTimezone, err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.PayoutInterval <= 0 {
		errs = append(errs, errors.New("payout interval must be positive"))
	}
	if _, err := c.PayoutLocation(); err != nil {
		errs = append(errs, err)
	}
	if c.JobWorkers <= 0 {
		errs = append(errs, errors.New("job workers must be positive"))
	}
	if c.JobMaxAttempts <= 0 {
		errs = append(errs, errors.New("job max attempts must be positive"))
	}
	if c.JobPollInterval <= 0 {
		errs = append(errs, errors.New("job poll interval must be positive"))
	}
	if c.CampaignPollInterval <= 0 {
		errs = append(errs, errors.New("campaign poll interval must be positive"))
	}

	return errors.Join(errs...)
}
