package config

import "time"

// TransportMode selects which transports the server runs, per the
// TRANSPORT_MODE environment variable.
type TransportMode string

const (
	TransportStdio TransportMode = "stdio"
	TransportHTTP  TransportMode = "http"
	TransportBoth  TransportMode = "both"
	TransportAMQP  TransportMode = "amqp"
)

// Config is discoveryd's process configuration, loaded entirely from
// environment variables. There is no layered
// user/project file merge here: one process reads one environment.
type Config struct {
	// ServerURL is the base URL advertised to clients (MCP_SERVER_URL).
	ServerURL string

	// Transport selects stdio/http/both/amqp (TRANSPORT_MODE). Defaults
	// to stdio when unset.
	Transport TransportMode

	// HTTPAddr is the bind address for the HTTP+SSE transport, used
	// when Transport is http or both.
	HTTPAddr string

	// DataDir holds the master-key file, credential store, credential
	// audit log, and CMDB durable store.
	DataDir string

	// PluginsRoot is the root of the on-disk plugin layout
	// (<plugins_root>/<category>/<plugin-id>/mcp-plugin.json, ...).
	PluginsRoot string

	// CredsKey is the base64-encoded 32-byte master key (MCP_CREDS_KEY).
	// When empty, the vault generates and persists one.
	CredsKey string

	// MemoryAutoSave and MemoryAutoSaveInterval configure the CMDB's
	// background flush (MEMORY_AUTO_SAVE, MEMORY_AUTO_SAVE_INTERVAL).
	MemoryAutoSave         bool
	MemoryAutoSaveInterval time.Duration

	AMQP AMQPConfig
	OAuth OAuthConfig
}

// AMQPConfig configures the AMQP transport when Transport is amqp.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// OAuthConfig mirrors the OAUTH_* environment variables. It is translated
// into an oauthmw.Config by the caller that wires the HTTP transport,
// keeping this package free of an oauthmw import.
type OAuthConfig struct {
	Enabled bool

	ResourceServerURI     string
	Realm                 string
	AuthorizationServer   string
	IntrospectionEndpoint string
	ClientID              string
	ClientSecret          string
	TokenCacheTTL         time.Duration
	SupportedScopes       []string

	Production bool
}
