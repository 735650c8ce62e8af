// Package config loads process configuration from the environment.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/store"
)

// LocalEndpoint is the DynamoDB Local address used when running locally
// without an explicit endpoint.
const LocalEndpoint = "http://localhost:8000"

// Config is read once at start and passed by value.
type Config struct {
	HTTPAddr string `env:"SQUARES_HTTP_ADDR" envDefault:":8080"`

	BoardsTable  string `env:"SQUARES_BOARDS_TABLE"  envDefault:"Boards"`
	SquaresTable string `env:"SQUARES_SQUARES_TABLE" envDefault:"Squares"`
	ClaimsTable  string `env:"SQUARES_CLAIMS_TABLE"  envDefault:"Claims"`

	ReservationMode string `env:"SQUARES_RESERVATION_MODE" envDefault:"transactional"`

	// ClaimRatePerMin and ClaimBurst size the per-client token bucket on
	// write endpoints. A rate of 0 disables limiting.
	ClaimRatePerMin int `env:"SQUARES_CLAIM_RATE_PER_MIN" envDefault:"30"`
	ClaimBurst      int `env:"SQUARES_CLAIM_BURST"        envDefault:"10"`

	LogLevel string `env:"SQUARES_LOG_LEVEL" envDefault:"info"`

	// Local points the store at DynamoDB Local when no endpoint is set.
	Local bool `env:"SQUARES_LOCAL" envDefault:"false"`

	DynamoDBEndpoint    string `env:"SQUARES_DYNAMODB_ENDPOINT"`
	AWSDynamoDBEndpoint string `env:"AWS_ENDPOINT_URL_DYNAMODB"`
	AWSEndpoint         string `env:"AWS_ENDPOINT_URL"`
	Region              string `env:"AWS_REGION"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := board.ParseReservationMode(cfg.ReservationMode); err != nil {
		return Config{}, fmt.Errorf("parse env: SQUARES_RESERVATION_MODE: %w", err)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("parse env: SQUARES_LOG_LEVEL: %w", err)
	}
	if cfg.ClaimRatePerMin < 0 || cfg.ClaimBurst < 0 {
		return Config{}, fmt.Errorf("parse env: claim rate and burst must not be negative")
	}
	return cfg, nil
}

// Mode returns the configured reservation mode.
func (c Config) Mode() board.ReservationMode {
	mode, _ := board.ParseReservationMode(c.ReservationMode)
	return mode
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// Store returns the table names for the store.
func (c Config) Store() store.Config {
	return store.Config{
		BoardsTable:  c.BoardsTable,
		SquaresTable: c.SquaresTable,
		ClaimsTable:  c.ClaimsTable,
	}
}

// Endpoint returns the DynamoDB endpoint override, or "" for the AWS
// default.
func (c Config) Endpoint() string {
	for _, e := range []string{c.DynamoDBEndpoint, c.AWSDynamoDBEndpoint, c.AWSEndpoint} {
		if e = strings.TrimSpace(e); e != "" {
			return e
		}
	}
	if c.Local {
		return LocalEndpoint
	}
	return ""
}

// NewDynamoDBClient builds a client from the default AWS configuration
// chain, applying the endpoint override. Local mode supplies dummy
// credentials and region, which DynamoDB Local accepts.
func (c Config) NewDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Local {
		if c.Region == "" {
			opts = append(opts, awsconfig.WithRegion("us-east-1"))
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := c.Endpoint()
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
