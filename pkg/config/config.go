// Package config loads node configuration for the orchestrator, master and worker binaries.
//
// Values are layered: built-in defaults, the shared settings file
// (~/.portmap-ai/data/settings.json), the node file passed on the command line (JSON or
// YAML), a .env file next to it, and finally PORTMAP_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"portmap-ai/pkg/model"
)

// ErrConfig marks configuration problems that must abort startup.
var ErrConfig = errors.New("config error")

// State backends.
const (
	BackendFile   = "file"
	BackendConsul = "consul"
)

// Config is the full node configuration. One struct serves every role; each binary
// reads the fields it needs.
type Config struct {
	NodeID       string `json:"node_id" yaml:"node_id"`
	NodeRole     string `json:"node_role" yaml:"node_role"`
	BindIP       string `json:"bind_ip" yaml:"bind_ip"`
	MasterIP     string `json:"master_ip" yaml:"master_ip"`
	Port         int    `json:"port" yaml:"port"`                   // listen port (master/orchestrator) or master port (worker)
	MasterPort   int    `json:"master_port" yaml:"master_port"`     // worker only; falls back to port
	Timeout      int    `json:"timeout" yaml:"timeout"`             // seconds
	ScanInterval int    `json:"scan_interval" yaml:"scan_interval"` // seconds

	OrchestratorURL   string `json:"orchestrator_url" yaml:"orchestrator_url"`
	OrchestratorToken string `json:"orchestrator_token" yaml:"orchestrator_token"`
	AuthToken         string `json:"auth_token" yaml:"auth_token"`
	AuthTokenHash     string `json:"auth_token_hash" yaml:"auth_token_hash"` // bcrypt
	JWTSecret         string `json:"jwt_secret" yaml:"jwt_secret"`

	StateFile    string `json:"state_file" yaml:"state_file"`
	StateBackend string `json:"state_backend" yaml:"state_backend"`
	ConsulAddr   string `json:"consul_addr" yaml:"consul_addr"`

	RemediationMode      string  `json:"remediation_mode" yaml:"remediation_mode"`
	RemediationThreshold float64 `json:"remediation_threshold" yaml:"remediation_threshold"`
	EnableAutolearn      bool    `json:"enable_autolearn" yaml:"enable_autolearn"`

	LogDir         string `json:"log_dir" yaml:"log_dir"`
	LogMaxBytes    int64  `json:"log_max_bytes" yaml:"log_max_bytes"`
	LogBackupCount int    `json:"log_backup_count" yaml:"log_backup_count"`

	AuditDSN    string `json:"audit_dsn" yaml:"audit_dsn"`
	NATSURL     string `json:"nats_url" yaml:"nats_url"`
	NATSSubject string `json:"nats_subject" yaml:"nats_subject"`
	JournalPath string `json:"journal_path" yaml:"journal_path"`

	TLSCert  string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey   string `json:"tls_key" yaml:"tls_key"`
	ClientCA string `json:"client_ca" yaml:"client_ca"`
	CAFile   string `json:"ca_file" yaml:"ca_file"`
	Metrics  bool   `json:"metrics" yaml:"metrics"`

	SettingsFile string `json:"settings_file" yaml:"settings_file"`

	// Path is the node file this config was read from.
	Path string `json:"-" yaml:"-"`
}

// AppRoot is ~/.portmap-ai, falling back to ./.portmap-ai when HOME is unknown.
func AppRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".portmap-ai"
	}
	return filepath.Join(home, ".portmap-ai")
}

// Defaults returns the built-in configuration for a role.
func Defaults(role string) *Config {
	root := AppRoot()
	cfg := &Config{
		NodeRole:             role,
		MasterIP:             "127.0.0.1",
		Port:                 9000,
		Timeout:              5,
		OrchestratorURL:      "http://127.0.0.1:9100",
		OrchestratorToken:    "portmap-dev-token",
		StateFile:            filepath.Join(root, "data", "orchestrator_state.json"),
		StateBackend:         BackendFile,
		ConsulAddr:           "127.0.0.1:8500",
		RemediationMode:      model.ModePrompt,
		RemediationThreshold: 0.75,
		LogDir:               filepath.Join(root, "logs"),
		LogMaxBytes:          5 * 1024 * 1024,
		LogBackupCount:       5,
		NATSSubject:          "portmap.remediation",
		JournalPath:          filepath.Join(root, "data", "agent_journal.db"),
		SettingsFile:         filepath.Join(root, "data", "settings.json"),
	}
	switch role {
	case model.RoleOrchestrator:
		cfg.BindIP = "0.0.0.0"
		cfg.Port = 9100
	case model.RoleMaster:
		cfg.MasterIP = "0.0.0.0"
	}
	return cfg
}

// Load reads the node file at path on top of the role defaults and shared settings.
// Any failure is wrapped in ErrConfig.
func Load(path, role string) (*Config, error) {
	cfg := Defaults(role)
	if path != "" {
		// a settings_file override has to be known before the settings are read
		var probe struct {
			SettingsFile string `json:"settings_file" yaml:"settings_file"`
		}
		if err := decodeFile(path, &probe); err != nil {
			return nil, err
		}
		if probe.SettingsFile != "" {
			cfg.SettingsFile = probe.SettingsFile
		}
	}
	if cfg.SettingsFile != "" {
		if _, err := os.Stat(cfg.SettingsFile); err == nil {
			if err := decodeFile(cfg.SettingsFile, cfg); err != nil {
				return nil, err
			}
		}
	}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.Path = path
		_ = loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	}
	_ = loadDotEnv(".env")
	if cfg.NodeRole == "" {
		cfg.NodeRole = role
	}
	applyEnv(cfg)
	if cfg.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.NodeID = host
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Loader re-reads the configuration the same way it was first loaded.
func (c *Config) Loader() func() (*Config, error) {
	path, role := c.Path, c.NodeRole
	return func() (*Config, error) { return Load(path, role) }
}

// Validate checks the fields every role depends on.
func (c *Config) Validate() error {
	switch c.NodeRole {
	case model.RoleMaster, model.RoleWorker, model.RoleOrchestrator:
	default:
		return fmt.Errorf("%w: unknown node_role %q", ErrConfig, c.NodeRole)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrConfig, c.Port)
	}
	if c.MasterPort < 0 || c.MasterPort > 65535 {
		return fmt.Errorf("%w: master_port %d out of range", ErrConfig, c.MasterPort)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrConfig)
	}
	if c.ScanInterval < 0 {
		return fmt.Errorf("%w: scan_interval cannot be negative", ErrConfig)
	}
	if c.RemediationThreshold < 0 || c.RemediationThreshold > 1 {
		return fmt.Errorf("%w: remediation_threshold must be within [0,1]", ErrConfig)
	}
	if c.NodeRole == model.RoleWorker && c.MasterIP == "" {
		return fmt.Errorf("%w: master_ip cannot be empty", ErrConfig)
	}
	if c.NodeRole == model.RoleOrchestrator {
		switch c.StateBackend {
		case BackendFile, BackendConsul:
		default:
			return fmt.Errorf("%w: unknown state_backend %q", ErrConfig, c.StateBackend)
		}
		if c.StateBackend == BackendFile && c.StateFile == "" {
			return fmt.Errorf("%w: state_file cannot be empty", ErrConfig)
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("%w: tls_cert and tls_key must be set together", ErrConfig)
	}
	return nil
}

// ListenAddr is the address a master or orchestrator binds.
func (c *Config) ListenAddr() string {
	host := c.BindIP
	if host == "" && c.NodeRole == model.RoleMaster {
		host = c.MasterIP
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// MasterAddr is where a worker sends telemetry.
func (c *Config) MasterAddr() string {
	port := c.MasterPort
	if port == 0 {
		port = c.Port
	}
	return net.JoinHostPort(c.MasterIP, strconv.Itoa(port))
}

// ServerToken is the bearer token the orchestrator expects.
func (c *Config) ServerToken() string {
	if c.AuthToken != "" {
		return c.AuthToken
	}
	return c.OrchestratorToken
}

// NetTimeout is the connect/send timeout for peer calls.
func (c *Config) NetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Interval is the worker loop period; continuous mode treats 0 as 5s.
func (c *Config) Interval() time.Duration {
	if c.ScanInterval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ScanInterval) * time.Second
}

func decodeFile(path string, into interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, into); err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
		}
	default:
		if err := json.Unmarshal(b, into); err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
		}
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err == nil {
		return godotenv.Load(path)
	}
	return nil
}

func applyEnv(c *Config) {
	c.NodeID = getEnv("PORTMAP_NODE_ID", c.NodeID)
	c.MasterIP = getEnv("PORTMAP_MASTER_IP", c.MasterIP)
	c.Port = getIntEnv("PORTMAP_PORT", c.Port)
	c.OrchestratorURL = getEnv("PORTMAP_ORCHESTRATOR_URL", c.OrchestratorURL)
	c.OrchestratorToken = getEnv("PORTMAP_ORCHESTRATOR_TOKEN", c.OrchestratorToken)
	c.AuthToken = getEnv("PORTMAP_AUTH_TOKEN", c.AuthToken)
	c.JWTSecret = getEnv("PORTMAP_JWT_SECRET", c.JWTSecret)
	c.RemediationMode = getEnv("PORTMAP_REMEDIATION_MODE", c.RemediationMode)
	c.RemediationThreshold = getFloat64Env("PORTMAP_REMEDIATION_THRESHOLD", c.RemediationThreshold)
	c.AuditDSN = getEnv("PORTMAP_AUDIT_DSN", c.AuditDSN)
	c.NATSURL = getEnv("PORTMAP_NATS_URL", c.NATSURL)
	c.LogDir = getEnv("PORTMAP_LOG_DIR", c.LogDir)
	c.StateFile = getEnv("PORTMAP_STATE_FILE", c.StateFile)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat64Env(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
