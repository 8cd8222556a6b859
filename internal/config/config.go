package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chordring/internal/logger"
)

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	ServiceName string        `yaml:"serviceName"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// RingConfig carries the ring-maintenance parameters: identifier width,
// successor-list length, the listener port and every timing constant the
// maintenance loop runs on.
type RingConfig struct {
	IDBits                int           `yaml:"idBits"`
	SuccessorListSize     int           `yaml:"successorListSize"`
	ListenPort            int           `yaml:"listenPort"`
	TickInterval          time.Duration `yaml:"tickInterval"`
	StabilizeInterval     time.Duration `yaml:"stabilizeInterval"`
	JoinRetryInterval     time.Duration `yaml:"joinRetryInterval"`
	RPCTimeoutMaintenance time.Duration `yaml:"rpcTimeoutMaintenance"`
	RPCTimeoutJoin        time.Duration `yaml:"rpcTimeoutJoin"`
	RPCTimeoutCert        time.Duration `yaml:"rpcTimeoutCert"`
}

type RegisterConfig struct {
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
	TTL          int64  `yaml:"ttl"`
}

type DiscoveryConfig struct {
	Port     int           `yaml:"port"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DockerBootstrapConfig struct {
	Label   string `yaml:"label"`
	Network string `yaml:"network"`
	Port    int    `yaml:"port"`
}

// BootstrapConfig selects and parameterizes how this peer finds its first
// neighbor: a fixed peer list, LAN broadcast discovery, DNS SRV records
// backed by Route53, or sibling Docker containers.
type BootstrapConfig struct {
	Mode      string                `yaml:"mode"`
	Peers     []string              `yaml:"peers"`
	Discovery DiscoveryConfig       `yaml:"discovery"`
	Route53   RegisterConfig        `yaml:"route53"`
	DNSName   string                `yaml:"dnsName"`
	Docker    DockerBootstrapConfig `yaml:"docker"`
}

type NodeConfig struct {
	// Mode picks which local interface Listen() advertises when Host is
	// empty: "private" prefers an RFC1918 address, "public" the first
	// non-private one.
	Mode string `yaml:"mode"`
	Bind string `yaml:"bind"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ID, if set, overrides address-derived identifier assignment with a
	// fixed hex-encoded id — mainly useful for reproducible test rings.
	ID string `yaml:"id"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Ring      RingConfig      `yaml:"ring"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Node      NodeConfig      `yaml:"node"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig reads and parses a YAML configuration file.
//
// This performs only syntactic parsing; call ValidateConfig afterwards to
// check for missing or out-of-range fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration, so a container deployment never needs a baked-in file for
// deployment-specific values.
//
//	NODE_HOST              -> cfg.Node.Host
//	NODE_PORT              -> cfg.Node.Port
//	BOOTSTRAP_MODE         -> cfg.Bootstrap.Mode
//	BOOTSTRAP_PEERS        -> cfg.Bootstrap.Peers (comma-separated)
//	BOOTSTRAP_DNSNAME      -> cfg.Bootstrap.DNSName
//	ROUTE53_ZONE_ID        -> cfg.Bootstrap.Route53.HostedZoneID
//	ROUTE53_SUFFIX         -> cfg.Bootstrap.Route53.DomainSuffix
//	ROUTE53_TTL            -> cfg.Bootstrap.Route53.TTL
//	TRACE_ENABLED          -> cfg.Telemetry.Tracing.Enabled
//	TRACE_EXPORTER         -> cfg.Telemetry.Tracing.Exporter
//	TRACE_ENDPOINT         -> cfg.Telemetry.Tracing.Endpoint
//	LOGGER_LEVEL           -> cfg.Logger.Level
//	LOGGER_ENCODING        -> cfg.Logger.Encoding
//	LOGGER_MODE            -> cfg.Logger.Mode
//	LOGGER_FILE_PATH       -> cfg.Logger.File.Path
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_HOST"); v != "" {
		cfg.Node.Host = v
	}
	if v := os.Getenv("NODE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Node.Port = port
		}
	}
	if v := os.Getenv("BOOTSTRAP_MODE"); v != "" {
		cfg.Bootstrap.Mode = v
	}
	if v := os.Getenv("BOOTSTRAP_PEERS"); v != "" {
		cfg.Bootstrap.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("BOOTSTRAP_DNSNAME"); v != "" {
		cfg.Bootstrap.DNSName = v
	}
	if v := os.Getenv("ROUTE53_ZONE_ID"); v != "" {
		cfg.Bootstrap.Route53.HostedZoneID = v
	}
	if v := os.Getenv("ROUTE53_SUFFIX"); v != "" {
		cfg.Bootstrap.Route53.DomainSuffix = v
	}
	if v := os.Getenv("ROUTE53_TTL"); v != "" {
		if ttl, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Bootstrap.Route53.TTL = ttl
		}
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACE_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
}

// ValidateConfig accumulates every structural violation in the loaded
// configuration and returns them as a single error, or nil if none are
// found.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.Ring.IDBits <= 0 {
		errs = append(errs, "ring.idBits must be > 0")
	}
	if cfg.Ring.SuccessorListSize <= 0 {
		errs = append(errs, "ring.successorListSize must be > 0")
	}
	if cfg.Ring.ListenPort <= 0 || cfg.Ring.ListenPort > 65535 {
		errs = append(errs, fmt.Sprintf("ring.listenPort must be in (0,65535], got %d", cfg.Ring.ListenPort))
	}
	if cfg.Ring.TickInterval <= 0 {
		errs = append(errs, "ring.tickInterval must be > 0")
	}
	if cfg.Ring.StabilizeInterval <= 0 {
		errs = append(errs, "ring.stabilizeInterval must be > 0")
	}
	if cfg.Ring.JoinRetryInterval <= 0 {
		errs = append(errs, "ring.joinRetryInterval must be > 0")
	}
	if cfg.Ring.RPCTimeoutMaintenance <= 0 {
		errs = append(errs, "ring.rpcTimeoutMaintenance must be > 0")
	}
	if cfg.Ring.RPCTimeoutJoin <= 0 {
		errs = append(errs, "ring.rpcTimeoutJoin must be > 0")
	}
	if cfg.Ring.RPCTimeoutCert <= 0 {
		errs = append(errs, "ring.rpcTimeoutCert must be > 0")
	}

	b := cfg.Bootstrap
	switch b.Mode {
	case "static":
		for _, p := range b.Peers {
			if _, _, err := net.SplitHostPort(p); err != nil {
				errs = append(errs, fmt.Sprintf("invalid peer address %q in bootstrap.peers: %v", p, err))
			}
		}
	case "discovery":
		if b.Discovery.Port <= 0 {
			errs = append(errs, "bootstrap.discovery.port must be > 0 in mode=discovery")
		}
	case "route53":
		if b.DNSName == "" {
			errs = append(errs, "bootstrap.dnsName is required in mode=route53")
		}
		if b.Route53.HostedZoneID == "" {
			errs = append(errs, "bootstrap.route53.hostedZoneId is required in mode=route53")
		}
		if b.Route53.DomainSuffix == "" {
			errs = append(errs, "bootstrap.route53.domainSuffix is required in mode=route53")
		}
		if b.Route53.TTL <= 0 {
			errs = append(errs, "bootstrap.route53.ttl must be > 0 in mode=route53")
		}
	case "docker":
		if b.Docker.Label == "" {
			errs = append(errs, "bootstrap.docker.label is required in mode=docker")
		}
		if b.Docker.Port <= 0 {
			errs = append(errs, "bootstrap.docker.port must be > 0 in mode=docker")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be static, discovery, route53, docker or none)", b.Mode))
	}

	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}
	switch cfg.Node.Mode {
	case "", "private", "public":
	default:
		errs = append(errs, fmt.Sprintf("invalid node.mode: %s (must be private or public)", cfg.Node.Mode))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
		if cfg.Telemetry.Tracing.Exporter == "otlp" && cfg.Telemetry.Tracing.Endpoint == "" {
			errs = append(errs, "telemetry.tracing.endpoint is required when exporter=otlp")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig emits the resolved configuration at Info level once at startup.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Info("loaded configuration",
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),

		logger.F("ring.idBits", cfg.Ring.IDBits),
		logger.F("ring.successorListSize", cfg.Ring.SuccessorListSize),
		logger.F("ring.listenPort", cfg.Ring.ListenPort),
		logger.F("ring.tickInterval", cfg.Ring.TickInterval.String()),
		logger.F("ring.stabilizeInterval", cfg.Ring.StabilizeInterval.String()),
		logger.F("ring.joinRetryInterval", cfg.Ring.JoinRetryInterval.String()),

		logger.F("bootstrap.mode", cfg.Bootstrap.Mode),
		logger.F("bootstrap.peers", cfg.Bootstrap.Peers),
		logger.F("bootstrap.dnsName", cfg.Bootstrap.DNSName),

		logger.F("node.host", cfg.Node.Host),
		logger.F("node.port", cfg.Node.Port),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
	)
}

// DefaultConfig returns the out-of-the-box configuration matching the
// defaults named throughout this system: a 160-bit identifier space, a
// successor list of length 3, port 5000, and the stated tick/stabilize/
// timeout constants.
func DefaultConfig() Config {
	return Config{
		Logger: LoggerConfig{Level: "info", Encoding: "console", Mode: "stdout"},
		Ring: RingConfig{
			IDBits:                160,
			SuccessorListSize:     3,
			ListenPort:            5000,
			TickInterval:          20 * time.Millisecond,
			StabilizeInterval:     200 * time.Millisecond,
			JoinRetryInterval:     2 * time.Second,
			RPCTimeoutMaintenance: 200 * time.Millisecond,
			RPCTimeoutJoin:        1 * time.Second,
			RPCTimeoutCert:        500 * time.Millisecond,
		},
		Bootstrap: BootstrapConfig{
			Mode:      "discovery",
			Discovery: DiscoveryConfig{Port: 5001, Interval: 1 * time.Second, Timeout: 2 * time.Second},
		},
		Node: NodeConfig{Host: "0.0.0.0", Port: 5000},
	}
}
