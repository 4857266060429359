package params

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/status-im/status-escrow/logutils"
)

const (
	// DefaultPollInterval is how often a pending transaction receipt is requested.
	DefaultPollInterval = 2 * time.Second
	// DefaultFinalityTimeout bounds a single finality wait.
	DefaultFinalityTimeout = 10 * time.Minute
	// DefaultRefreshRetries is the number of extra reads issued when a post-action
	// read still reflects the state before the action.
	DefaultRefreshRetries = 5
	// DefaultRefreshInterval is the initial backoff between stale reads.
	DefaultRefreshInterval = 500 * time.Millisecond
)

// ----------
// UpstreamRPCConfig
// ----------

// UpstreamRPCConfig stores configuration for the ledger RPC endpoints.
type UpstreamRPCConfig struct {
	// URL is the main ledger endpoint (http, https, ws, wss or ipc path).
	URL string `validate:"required"`

	// FallbackURL is used when the main endpoint fails with a transport error.
	FallbackURL string

	// RateLimit is the maximum number of requests per second, 0 disables limiting.
	RateLimit float64 `validate:"gte=0"`

	// Burst is the token bucket size used with RateLimit.
	Burst int `validate:"gte=0"`
}

// CircuitBreakerConfig configures the hystrix circuits wrapping upstream calls.
// Durations are in milliseconds, as hystrix expects.
type CircuitBreakerConfig struct {
	Timeout                int `validate:"gte=0"`
	MaxConcurrentRequests  int `validate:"gte=0"`
	RequestVolumeThreshold int `validate:"gte=0"`
	SleepWindow            int `validate:"gte=0"`
	ErrorPercentThreshold  int `validate:"gte=0,lte=100"`
}

// TxConfig controls how submitted requests are tracked to finality.
type TxConfig struct {
	PollInterval    Duration
	FinalityTimeout Duration
	RefreshRetries  uint64
	RefreshInterval Duration
}

// LogConfig configures zap output.
type LogConfig struct {
	Enabled         bool
	Level           string `validate:"omitempty,oneof=trace debug info warn error eror crit DEBUG INFO WARN ERROR"`
	File            string
	MaxSize         int `validate:"gte=0"`
	MaxBackups      int `validate:"gte=0"`
	CompressRotated bool
	Development     bool
}

// MetricsConfig configures the prometheus exporter.
type MetricsConfig struct {
	Enabled bool
	Port    int `validate:"omitempty,gte=1,lte=65535"`
}

// Config holds everything the escrow client needs to reach one ledger.
type Config struct {
	// NetworkID is the chain id transactions are signed for.
	NetworkID uint64 `validate:"required"`

	DataDir string

	// KeyStoreDir holds the encrypted identities offered to the user on connect.
	KeyStoreDir string

	// AgreementAddress is bound on startup when set.
	AgreementAddress string

	// AgreementArtifact is a compiled contract artifact (abi + bytecode) used to
	// create new agreements.
	AgreementArtifact string

	UpstreamConfig UpstreamRPCConfig
	CircuitBreaker CircuitBreakerConfig
	Tx             TxConfig
	LogConfig      LogConfig
	MetricsConfig  MetricsConfig
}

// NewConfig creates new configuration object with bare-minimum defaults.
// Important: the returned config is not validated.
func NewConfig(dataDir string, networkID uint64) *Config {
	var keyStoreDir string
	if dataDir != "" {
		keyStoreDir = filepath.Join(dataDir, "keystore")
	}

	return &Config{
		NetworkID:   networkID,
		DataDir:     dataDir,
		KeyStoreDir: keyStoreDir,
		UpstreamConfig: UpstreamRPCConfig{
			URL:   "http://localhost:8545",
			Burst: 1,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Timeout:                20000,
			MaxConcurrentRequests:  100,
			RequestVolumeThreshold: 20,
			SleepWindow:            300000,
			ErrorPercentThreshold:  25,
		},
		Tx: TxConfig{
			PollInterval:    Duration(DefaultPollInterval),
			FinalityTimeout: Duration(DefaultFinalityTimeout),
			RefreshRetries:  DefaultRefreshRetries,
			RefreshInterval: Duration(DefaultRefreshInterval),
		},
		LogConfig: LogConfig{
			Enabled:    true,
			Level:      "INFO",
			MaxSize:    100,
			MaxBackups: 3,
		},
		MetricsConfig: MetricsConfig{
			Port: 9305,
		},
	}
}

// NewConfigFromJSON parses incoming JSON over the defaults and validates it.
func NewConfigFromJSON(configJSON string) (*Config, error) {
	config := NewConfig("", 0)

	if err := loadConfigFromJSON(configJSON, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigFromFiles applies the given JSON files in order over the defaults.
func LoadConfigFromFiles(files []string) (*Config, error) {
	config := NewConfig("", 0)

	for _, file := range files {
		if err := loadConfigFromFile(file, config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadConfigFromJSON(configJSON string, config *Config) error {
	decoder := json.NewDecoder(strings.NewReader(configJSON))
	decoder.DisallowUnknownFields()
	// override default configuration with values by JSON input
	return errors.Wrap(decoder.Decode(config), "failed to decode config")
}

func loadConfigFromFile(path string, config *Config) error {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	return loadConfigFromJSON(string(jsonConfig), config)
}

// NewValidator returns a validator with the custom tags used by Config.
func NewValidator() *validator.Validate {
	return validator.New()
}

// Validate checks if Config fields have valid values.
//
// A single error for a struct:
//
//	type TestStruct struct {
//	    TestField string `validate:"required"`
//	}
//
// has the following format:
//
//	Key: 'TestStruct.TestField' Error:Field validation for 'TestField' failed on the 'required' tag
func (c *Config) Validate() error {
	validate := NewValidator()

	if err := validate.Struct(c); err != nil {
		return err
	}

	if err := c.UpstreamConfig.Validate(); err != nil {
		return err
	}

	if c.AgreementAddress != "" && !common.IsHexAddress(c.AgreementAddress) {
		return fmt.Errorf("AgreementAddress '%s' is not a valid address", c.AgreementAddress)
	}

	if c.Tx.PollInterval <= 0 {
		return fmt.Errorf("Tx.PollInterval must be positive")
	}

	if c.Tx.FinalityTimeout < c.Tx.PollInterval {
		return fmt.Errorf("Tx.FinalityTimeout must not be shorter than Tx.PollInterval")
	}

	if c.MetricsConfig.Enabled && c.MetricsConfig.Port == 0 {
		return fmt.Errorf("MetricsConfig.Enabled is true, but MetricsConfig.Port is not set")
	}

	return nil
}

// Validate validates the UpstreamRPCConfig struct and returns an error if inconsistent values are found
func (c *UpstreamRPCConfig) Validate() error {
	if err := validateEndpoint(c.URL); err != nil {
		return fmt.Errorf("UpstreamRPCConfig.URL '%s' is invalid: %v", c.URL, err)
	}
	if c.FallbackURL != "" {
		if err := validateEndpoint(c.FallbackURL); err != nil {
			return fmt.Errorf("UpstreamRPCConfig.FallbackURL '%s' is invalid: %v", c.FallbackURL, err)
		}
	}
	if c.RateLimit > 0 && c.Burst == 0 {
		return fmt.Errorf("UpstreamRPCConfig.Burst must be positive when RateLimit is set")
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	// an absolute filesystem path is an IPC endpoint
	if filepath.IsAbs(endpoint) {
		return nil
	}
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}

// Settings converts LogConfig into the form consumed by logutils.
func (c LogConfig) Settings() logutils.LogSettings {
	return logutils.LogSettings{
		Enabled:         c.Enabled,
		Level:           c.Level,
		File:            c.File,
		MaxSize:         c.MaxSize,
		MaxBackups:      c.MaxBackups,
		CompressRotated: c.CompressRotated,
		Development:     c.Development,
	}
}
