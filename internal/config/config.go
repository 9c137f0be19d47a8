package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig global application configuration, populated by LoadConfig.
var AppConfig *Config

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Settlement SettlementConfig `yaml:"settlement"`
	Claim      ClaimConfig      `yaml:"claim"`
	CORS       CORSConfig       `yaml:"cors"`
	Auth       AuthConfig       `yaml:"auth"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL            string `yaml:"url"`
	Enabled        bool   `yaml:"enabled"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
}

// BlockchainConfig settlement chain configuration
type BlockchainConfig struct {
	DefaultNetwork string                   `yaml:"default_network"`
	Networks       map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig per-network settlement configuration
type NetworkConfig struct {
	ChainID       int    `yaml:"chainId"`
	Name          string `yaml:"name"`
	RPCEndpoint   string `yaml:"rpcEndpoint"`
	TokenContract string `yaml:"tokenContract"` // settlement token; empty means native transfer
	PrivateKey    string `yaml:"privateKey"`    // loaded from env, never from the file
	GasLimit      uint64 `yaml:"gasLimit"`
}

// SettlementConfig settlement queue tuning
type SettlementConfig struct {
	Workers        int `yaml:"workers"`
	PollInterval   int `yaml:"poll_interval"`   // seconds
	MaxRetries     int `yaml:"max_retries"`
	ReceiptTimeout int `yaml:"receipt_timeout"` // seconds
}

// ClaimConfig claim window tuning
type ClaimConfig struct {
	TTLMinutes    int `yaml:"ttl_minutes"`
	MaxReclaims   int `yaml:"max_reclaims"`
	SweepInterval int `yaml:"sweep_interval"` // seconds
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// AuthConfig JWT authentication configuration
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	TokenExpiry int    `yaml:"token_expiry"` // hours
}

// AdminConfig admin access configuration for quota administration.
// PasswordHash is a bcrypt hash; TOTPSecret feeds the authenticator check.
type AdminConfig struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	TOTPSecret   string   `yaml:"totp_secret"`
	AllowedIPs   []string `yaml:"allowed_ips"` // extra IPs/CIDRs beyond loopback
}

// LoadConfig reads the yaml configuration file and applies environment
// overrides. An empty path falls back to config.yaml, preferring
// config.local.yaml when present.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	fmt.Printf("✅ [%s] Loading configuration from %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)

	applyDefaults(&config)
	overrideFromEnv(&config)

	AppConfig = &config
	return nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "postgres"
	}
	if config.NATS.ConnectTimeout == 0 {
		config.NATS.ConnectTimeout = 5
	}
	if config.Blockchain.DefaultNetwork == "" {
		config.Blockchain.DefaultNetwork = "eth"
	}
	if config.Settlement.Workers == 0 {
		config.Settlement.Workers = 3
	}
	if config.Settlement.PollInterval == 0 {
		config.Settlement.PollInterval = 5
	}
	if config.Settlement.MaxRetries == 0 {
		config.Settlement.MaxRetries = 3
	}
	if config.Settlement.ReceiptTimeout == 0 {
		config.Settlement.ReceiptTimeout = 120
	}
	if config.Claim.TTLMinutes == 0 {
		config.Claim.TTLMinutes = 30
	}
	if config.Claim.MaxReclaims == 0 {
		config.Claim.MaxReclaims = 3
	}
	if config.Claim.SweepInterval == 0 {
		config.Claim.SweepInterval = 60
	}
	if config.Auth.TokenExpiry == 0 {
		config.Auth.TokenExpiry = 24
	}
}

// overrideFromEnv applies environment variable overrides on top of the file.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
		config.NATS.Enabled = true
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		config.Admin.PasswordHash = hash
	}
	if totp := os.Getenv("ADMIN_TOTP_SECRET"); totp != "" {
		config.Admin.TOTPSecret = totp
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = strings.Split(origins, ",")
	}

	// Per-network secrets are env-only. ETH_RPC_URL / ETH_PRIVATE_KEY and
	// the like, with PRIVATE_KEY as the generic fallback.
	for networkName, networkConfig := range config.Blockchain.Networks {
		upper := strings.ToUpper(networkName)
		if rpc := os.Getenv(upper + "_RPC_URL"); rpc != "" {
			networkConfig.RPCEndpoint = rpc
		}
		if key := os.Getenv(upper + "_PRIVATE_KEY"); key != "" {
			networkConfig.PrivateKey = key
		} else if key := os.Getenv("PRIVATE_KEY"); key != "" && networkConfig.PrivateKey == "" {
			networkConfig.PrivateKey = key
		}
		if token := os.Getenv(upper + "_TOKEN_CONTRACT"); token != "" {
			networkConfig.TokenContract = token
		}
		if gasLimit := os.Getenv(upper + "_GAS_LIMIT"); gasLimit != "" {
			if limit, err := strconv.ParseUint(gasLimit, 10, 64); err == nil {
				networkConfig.GasLimit = limit
			}
		}
		config.Blockchain.Networks[networkName] = networkConfig
	}
}

// GetNetworkConfig returns the configuration for a named network.
func GetNetworkConfig(networkName string) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	network, ok := AppConfig.Blockchain.Networks[networkName]
	if !ok {
		return nil, fmt.Errorf("network %s not configured", networkName)
	}
	return &network, nil
}

// ClaimTTL returns the configured claim payment window.
func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.Claim.TTLMinutes) * time.Minute
}

// SweepInterval returns the configured sweeper cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Claim.SweepInterval) * time.Second
}

// SettlementPollInterval returns the worker poll cadence.
func (c *Config) SettlementPollInterval() time.Duration {
	return time.Duration(c.Settlement.PollInterval) * time.Second
}

// SettlementReceiptTimeout returns the receipt wait bound.
func (c *Config) SettlementReceiptTimeout() time.Duration {
	return time.Duration(c.Settlement.ReceiptTimeout) * time.Second
}
