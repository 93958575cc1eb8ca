package emberdb

import (
	"log/slog"

	"github.com/cenkalti/backoff/v4"
)

// DefaultAPIEndpoint is the identity and management API endpoint used when
// Config.APIEndpoint is empty.
const DefaultAPIEndpoint = "api.app.emberdb.io"

// Config defines the configuration for a connection.
type Config struct {
	// Endpoint is the URL of the engine to run queries against.
	//
	// Exactly one of Endpoint and EngineName must be set.
	Endpoint string `json:"endpoint"`
	// EngineName is the name of the engine to run queries against. The engine
	// URL is resolved through the management API at connect time.
	EngineName string `json:"engine_name"`
	// Database is the name of the database to connect to.
	Database string `json:"database"`
	// AccountName selects the account for customers with multiple accounts.
	// Empty means the default account.
	AccountName string `json:"account_name"`
	// Username and Password authenticate against the identity endpoint.
	Username string `json:"username"`
	Password string `json:"password"`
	// APIKey is a static credential used in place of Username/Password.
	APIKey string `json:"api_key"`
	// APIEndpoint is the identity and management API host. Defaults to
	// DefaultAPIEndpoint.
	APIEndpoint string `json:"api_endpoint"`
	// ResultFormat is the serialization the engine is asked to answer with.
	// Defaults to FormatJSONCompact.
	ResultFormat ResultFormat `json:"result_format"`
	// RetryPolicy constructs the backoff policy applied to transport failures
	// during statement execution. The zero value never retries; the single
	// retry after a token refresh is built in and not governed by this policy.
	RetryPolicy func() backoff.BackOff `json:"-"`
	// Logger receives debug and info records of executed statements.
	// Nil disables logging.
	Logger *slog.Logger `json:"-"`
}

func (c *Config) retryPolicy() backoff.BackOff {
	if c.RetryPolicy == nil {
		return &backoff.StopBackOff{}
	}
	return c.RetryPolicy()
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(discardHandler{})
	}
	return c.Logger
}

func (c *Config) apiEndpoint() string {
	if c.APIEndpoint == "" {
		return DefaultAPIEndpoint
	}
	return c.APIEndpoint
}

func (c *Config) resultFormat() ResultFormat {
	if c.ResultFormat == "" {
		return FormatJSONCompact
	}
	return c.ResultFormat
}
