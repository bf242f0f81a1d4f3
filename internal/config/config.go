// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"lease_engine/internal/lease/liability"
	"lease_engine/internal/lease/position"
	"lease_engine/pkg/finance"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Currencies  []CurrencyConfig  `yaml:"currencies"`
	Lease       LeaseConfig       `yaml:"lease"`
	PriceFeed   PriceFeedConfig   `yaml:"price_feed"`
	Store       StoreConfig       `yaml:"store"`
	Alarms      AlarmsConfig      `yaml:"alarms"`
	Swap        SwapConfig        `yaml:"swap"`
	Server      ServerConfig      `yaml:"server"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name string `yaml:"name"`
	Lpn  string `yaml:"lpn"` // lending pool currency ticker
}

// CurrencyConfig describes one supported currency
type CurrencyConfig struct {
	Ticker   string `yaml:"ticker"`
	Decimals int32  `yaml:"decimals"`
	Dust     uint64 `yaml:"dust"` // smallest accepted payment in units
	Group    string `yaml:"group"`
}

// LiabilityConfig is the liability ladder in percent, e.g. 72.5
type LiabilityConfig struct {
	Initial           decimal.Decimal `yaml:"initial"`
	Healthy           decimal.Decimal `yaml:"healthy"`
	FirstWarn         decimal.Decimal `yaml:"first_warn"`
	SecondWarn        decimal.Decimal `yaml:"second_warn"`
	ThirdWarn         decimal.Decimal `yaml:"third_warn"`
	Max               decimal.Decimal `yaml:"max"`
	RecalculationTime time.Duration   `yaml:"recalculation_time"`
}

// LeaseConfig contains the terms applied to new leases
type LeaseConfig struct {
	Liability      LiabilityConfig `yaml:"liability"`
	AnnualInterest decimal.Decimal `yaml:"annual_interest"` // default pool rate, percent
	AnnualMargin   decimal.Decimal `yaml:"annual_margin"`   // protocol spread, percent
	DuePeriod      time.Duration   `yaml:"due_period"`
	GracePeriod    time.Duration   `yaml:"grace_period"`
	MinAsset       uint64          `yaml:"min_asset"`       // LPN units
	MinTransaction uint64          `yaml:"min_transaction"` // LPN units
}

// PriceFeedConfig contains the streaming price source settings.
// StaticPrices seeds the cache with LPN prices per asset, e.g. ATOM: "9.85".
type PriceFeedConfig struct {
	URL            string            `yaml:"url"`
	APIKey         Secret            `yaml:"api_key"`
	Freshness      time.Duration     `yaml:"freshness"`
	ReconnectDelay time.Duration     `yaml:"reconnect_delay"`
	PingInterval   time.Duration     `yaml:"ping_interval"`
	StaticPrices   map[string]string `yaml:"static_prices"`
}

// StoreConfig selects the lease store
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`
}

// AlarmsConfig contains alarm delivery settings
type AlarmsConfig struct {
	DispatchRate  float64       `yaml:"dispatch_rate"` // deliveries per second
	DispatchBurst int           `yaml:"dispatch_burst"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RearmDelay    time.Duration `yaml:"rearm_delay"` // time alarm backoff after a retryable failure
}

// SwapConfig contains the paper swap settings
type SwapConfig struct {
	Latency  time.Duration `yaml:"latency"` // delay before a sale settles
	PoolSize int           `yaml:"pool_size"`
}

// ServerConfig contains the admin HTTP API settings
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
	StdoutExport  bool `yaml:"stdout_export"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	AlarmPoolSize   int `yaml:"alarm_pool_size"`
	AlarmPoolBuffer int `yaml:"alarm_pool_buffer"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string
	for _, check := range []func() error{
		c.validateCurrencies,
		c.validateLeaseConfig,
		c.validatePriceFeedConfig,
		c.validateStoreConfig,
		c.validateAlarmsConfig,
		c.validateSwapConfig,
		c.validateServerConfig,
		c.validateSystemConfig,
		c.validateConcurrencyConfig,
	} {
		if err := check(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func (c *Config) validateCurrencies() error {
	if _, err := c.Registry(); err != nil {
		return ValidationError{Field: "currencies", Value: c.App.Lpn, Message: err.Error()}
	}
	return nil
}

func (c *Config) validateLeaseConfig() error {
	if _, err := c.Liability(); err != nil {
		return ValidationError{Field: "lease.liability", Message: err.Error()}
	}
	for field, v := range map[string]decimal.Decimal{
		"lease.annual_interest": c.Lease.AnnualInterest,
		"lease.annual_margin":   c.Lease.AnnualMargin,
	} {
		if _, err := toPercent(v); err != nil {
			return ValidationError{Field: field, Value: v, Message: err.Error()}
		}
	}
	if c.Lease.DuePeriod <= 0 {
		return ValidationError{Field: "lease.due_period", Value: c.Lease.DuePeriod, Message: "must be positive"}
	}
	if c.Lease.GracePeriod < 0 {
		return ValidationError{Field: "lease.grace_period", Value: c.Lease.GracePeriod, Message: "must not be negative"}
	}
	if c.Lease.MinAsset == 0 {
		return ValidationError{Field: "lease.min_asset", Value: c.Lease.MinAsset, Message: "must be positive"}
	}
	if c.Lease.MinTransaction == 0 {
		return ValidationError{Field: "lease.min_transaction", Value: c.Lease.MinTransaction, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validatePriceFeedConfig() error {
	if c.PriceFeed.URL == "" && len(c.PriceFeed.StaticPrices) == 0 {
		return ValidationError{Field: "price_feed", Message: "either url or static_prices is required"}
	}
	if c.PriceFeed.Freshness <= 0 {
		return ValidationError{Field: "price_feed.freshness", Value: c.PriceFeed.Freshness, Message: "must be positive"}
	}
	for ticker, p := range c.PriceFeed.StaticPrices {
		d, err := decimal.NewFromString(p)
		if err != nil || !d.IsPositive() {
			return ValidationError{Field: "price_feed.static_prices." + ticker, Value: p, Message: "must be a positive decimal"}
		}
	}
	return nil
}

func (c *Config) validateStoreConfig() error {
	switch c.Store.Driver {
	case "memory":
		return nil
	case "sqlite":
		if c.Store.Path == "" {
			return ValidationError{Field: "store.path", Message: "required for sqlite"}
		}
		return nil
	default:
		return ValidationError{Field: "store.driver", Value: c.Store.Driver, Message: "must be one of: memory, sqlite"}
	}
}

func (c *Config) validateAlarmsConfig() error {
	if c.Alarms.DispatchRate <= 0 || c.Alarms.DispatchBurst < 1 {
		return ValidationError{Field: "alarms.dispatch_rate", Value: c.Alarms.DispatchRate, Message: "rate and burst must be positive"}
	}
	if c.Alarms.RetryAttempts < 0 {
		return ValidationError{Field: "alarms.retry_attempts", Value: c.Alarms.RetryAttempts, Message: "must not be negative"}
	}
	if c.Alarms.RearmDelay <= 0 {
		return ValidationError{Field: "alarms.rearm_delay", Value: c.Alarms.RearmDelay, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateSwapConfig() error {
	if c.Swap.Latency < 0 {
		return ValidationError{Field: "swap.latency", Value: c.Swap.Latency, Message: "must not be negative"}
	}
	if c.Swap.PoolSize < 1 {
		return ValidationError{Field: "swap.pool_size", Value: c.Swap.PoolSize, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.Enabled && c.Server.Addr == "" {
		return ValidationError{Field: "server.addr", Message: "required when the server is enabled"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	if c.System.LogFormat != "" && c.System.LogFormat != "console" && c.System.LogFormat != "json" {
		return ValidationError{Field: "system.log_format", Value: c.System.LogFormat, Message: "must be one of: console, json"}
	}
	return nil
}

func (c *Config) validateConcurrencyConfig() error {
	if c.Concurrency.AlarmPoolSize < 1 || c.Concurrency.AlarmPoolSize > 100 {
		return ValidationError{Field: "concurrency.alarm_pool_size", Value: c.Concurrency.AlarmPoolSize, Message: "must be between 1 and 100"}
	}
	if c.Concurrency.AlarmPoolBuffer < 1 {
		return ValidationError{Field: "concurrency.alarm_pool_buffer", Value: c.Concurrency.AlarmPoolBuffer, Message: "must be positive"}
	}
	return nil
}

// Registry builds the currency table
func (c *Config) Registry() (*finance.Registry, error) {
	currencies := make([]finance.Currency, 0, len(c.Currencies))
	for _, cc := range c.Currencies {
		currencies = append(currencies, finance.Currency{
			Ticker:   finance.Ticker(cc.Ticker),
			Decimals: cc.Decimals,
			Dust:     cc.Dust,
			Group:    finance.Group(cc.Group),
		})
	}
	return finance.NewRegistry(finance.Ticker(c.App.Lpn), currencies...)
}

// Liability builds the validated liability ladder
func (c *Config) Liability() (liability.Liability, error) {
	lc := c.Lease.Liability
	var p [6]finance.Percent
	for i, v := range []decimal.Decimal{lc.Initial, lc.Healthy, lc.FirstWarn, lc.SecondWarn, lc.ThirdWarn, lc.Max} {
		var err error
		if p[i], err = toPercent(v); err != nil {
			return liability.Liability{}, err
		}
	}
	return liability.New(p[0], p[1], p[2], p[3], p[4], p[5], lc.RecalculationTime)
}

// Spec builds the position spec with minimum amounts in LPN
func (c *Config) Spec() (position.Spec, error) {
	l, err := c.Liability()
	if err != nil {
		return position.Spec{}, err
	}
	lpn := finance.Ticker(c.App.Lpn)
	return position.NewSpec(l, finance.NewCoin(c.Lease.MinAsset, lpn), finance.NewCoin(c.Lease.MinTransaction, lpn))
}

// Rates returns the default pool interest and the margin
func (c *Config) Rates() (interest, margin finance.Percent, err error) {
	if interest, err = toPercent(c.Lease.AnnualInterest); err != nil {
		return 0, 0, err
	}
	margin, err = toPercent(c.Lease.AnnualMargin)
	return interest, margin, err
}

// toPercent converts a percentage such as 72.5 to permille
func toPercent(v decimal.Decimal) (finance.Percent, error) {
	permille := v.Shift(1)
	if v.IsNegative() || !permille.Equal(permille.Truncate(0)) {
		return 0, fmt.Errorf("%s%% is not a non-negative multiple of 0.1%%", v)
	}
	if permille.GreaterThan(decimal.NewFromInt(int64(finance.Hundred) * 100)) {
		return 0, fmt.Errorf("%s%% is out of range", v)
	}
	return finance.FromPermille(uint32(permille.IntPart())), nil
}

// String returns a YAML representation of the configuration with secrets redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration, also used as the base LoadConfig decodes onto
func DefaultConfig() *Config {
	pct := func(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }
	return &Config{
		App: AppConfig{Name: "lease_engine", Lpn: "USDC"},
		Currencies: []CurrencyConfig{
			{Ticker: "USDC", Decimals: 6, Dust: 10_000, Group: string(finance.GroupLpn)},
			{Ticker: "ATOM", Decimals: 6, Dust: 1, Group: string(finance.GroupLease)},
			{Ticker: "OSMO", Decimals: 6, Dust: 1, Group: string(finance.GroupLease)},
			{Ticker: "NLS", Decimals: 6, Dust: 1, Group: string(finance.GroupNative)},
		},
		Lease: LeaseConfig{
			Liability: LiabilityConfig{
				Initial:           pct(65),
				Healthy:           pct(70),
				FirstWarn:         pct(72),
				SecondWarn:        pct(75),
				ThirdWarn:         pct(78),
				Max:               pct(80),
				RecalculationTime: time.Hour,
			},
			AnnualInterest: pct(10),
			AnnualMargin:   pct(4),
			DuePeriod:      30 * 24 * time.Hour,
			GracePeriod:    10 * 24 * time.Hour,
			MinAsset:       15_000_000,
			MinTransaction: 10_000,
		},
		PriceFeed: PriceFeedConfig{
			Freshness:      time.Minute,
			ReconnectDelay: 5 * time.Second,
			PingInterval:   20 * time.Second,
			StaticPrices:   map[string]string{"ATOM": "10", "OSMO": "0.5"},
		},
		Store: StoreConfig{Driver: "memory"},
		Alarms: AlarmsConfig{
			DispatchRate:  50,
			DispatchBurst: 10,
			RetryAttempts: 3,
			RetryDelay:    200 * time.Millisecond,
			RearmDelay:    30 * time.Second,
		},
		Swap: SwapConfig{Latency: 2 * time.Second, PoolSize: 4},
		Server: ServerConfig{
			Enabled:      true,
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		System:      SystemConfig{LogLevel: "INFO", LogFormat: "console"},
		Telemetry:   TelemetryConfig{MetricsPort: 9090, EnableMetrics: true},
		Concurrency: ConcurrencyConfig{AlarmPoolSize: 4, AlarmPoolBuffer: 256},
	}
}
