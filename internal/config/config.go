package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config represents the full engine configuration surface.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Currency CurrencyConfig
	Payment  PaymentConfig
	Report   ReportConfig
	Archive  ArchiveConfig
}

// ServiceConfig identifies the running instance in logs and metrics.
type ServiceConfig struct {
	Name string
	Env  string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Addr string
}

// CurrencyConfig fixes the single active currency per deployment.
type CurrencyConfig struct {
	Code       string
	MinorUnits int32
	TaxRate    decimal.Decimal
}

// PaymentConfig selects and tunes the payment authorizer.
type PaymentConfig struct {
	// Mode is "simulated" or "gateway".
	Mode        string
	GatewayURL  string
	APIKey      string
	Timeout     time.Duration
	SuccessRate float64
	// DefaultDeadline bounds payment confirmation when the caller supplies none.
	DefaultDeadline time.Duration
}

// ReportConfig holds the daily summary scheduler settings.
type ReportConfig struct {
	CronSchedule string
}

// ArchiveConfig enables the MongoDB sale archive when URI is set.
type ArchiveConfig struct {
	MongoURI string
	Database string
}

const (
	PaymentModeSimulated = "simulated"
	PaymentModeGateway   = "gateway"
)

// Load reads environment variables (optionally from the provided file) and
// assembles the configuration with sane defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		// A missing file is fine; the environment may be set externally.
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg := Config{
		Service: ServiceConfig{
			Name: getenvDefault("SERVICE_NAME", "sale-engine"),
			Env:  getenvDefault("ENV", "dev"),
		},
		Server: ServerConfig{
			Addr: getenvDefault("HTTP_ADDR", ":8080"),
		},
		Currency: CurrencyConfig{
			Code: getenvDefault("CURRENCY_CODE", "KES"),
		},
		Payment: PaymentConfig{
			Mode:       getenvDefault("PAYMENT_MODE", PaymentModeSimulated),
			GatewayURL: os.Getenv("PAYMENT_GATEWAY_URL"),
			APIKey:     os.Getenv("PAYMENT_GATEWAY_API_KEY"),
		},
		Report: ReportConfig{
			CronSchedule: getenvDefault("REPORT_CRON", "0 21 * * *"),
		},
		Archive: ArchiveConfig{
			MongoURI: os.Getenv("MONGO_URI"),
			Database: getenvDefault("MONGO_DB", "smartpos"),
		},
	}

	minorUnits, err := intFromEnv("CURRENCY_MINOR_UNITS", 2)
	if err != nil {
		return Config{}, err
	}
	cfg.Currency.MinorUnits = int32(minorUnits)

	taxRate, err := decimalFromEnv("TAX_RATE", "0")
	if err != nil {
		return Config{}, err
	}
	cfg.Currency.TaxRate = taxRate

	successRate, err := floatFromEnv("PAYMENT_SUCCESS_RATE", 0.9)
	if err != nil {
		return Config{}, err
	}
	cfg.Payment.SuccessRate = successRate

	timeout, err := durationFromEnv("PAYMENT_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.Payment.Timeout = timeout

	deadline, err := durationFromEnv("PAYMENT_DEFAULT_DEADLINE", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.Payment.DefaultDeadline = deadline

	if cfg.Payment.Mode == PaymentModeGateway && cfg.Payment.GatewayURL == "" {
		return Config{}, fmt.Errorf("config: PAYMENT_GATEWAY_URL is required in gateway mode")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func decimalFromEnv(key, def string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
