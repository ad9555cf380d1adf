package main

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	SDR        SDRConfig        `yaml:"sdr"`
	Streaming  StreamingConfig  `yaml:"streaming"`
	Spectrum   SpectrumConfig   `yaml:"spectrum"`
	Recording  RecordingConfig  `yaml:"recording"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Listen     string `yaml:"listen"`      // HTTP listen address (default: ":8080")
	EnableCORS bool   `yaml:"enable_cors"` // Allow cross-origin WebSocket/API access
}

// SDRConfig contains radio hardware settings
type SDRConfig struct {
	Device     string `yaml:"device"`      // Device URI (e.g., "ip:192.168.2.1", "loopback")
	SampleRate int    `yaml:"sample_rate"` // Complex sample rate in Hz (default: 2000000)
	RXGain     int    `yaml:"rx_gain"`     // Receive gain in dB
	TXGain     int    `yaml:"tx_gain"`     // Transmit attenuation in dB (negative)
	Side       string `yaml:"side"`        // Which side's signal table to use: "red" or "blue"
}

// StreamingConfig contains demodulation pipeline settings
type StreamingConfig struct {
	QueueSize    int `yaml:"queue_size"`     // IQ block queue depth per channel (default: 10)
	BlockSize    int `yaml:"block_size"`     // Samples per receive block (default: 65536)
	PollMs       int `yaml:"poll_ms"`        // Consumer dequeue timeout in milliseconds (default: 500)
	JoinTimeoutS int `yaml:"join_timeout_s"` // Worker shutdown join timeout in seconds (default: 1)
}

// SpectrumConfig contains spectrum preview settings
type SpectrumConfig struct {
	Enabled     bool `yaml:"enabled"`      // Enable/disable spectrum preview computation
	FFTSize     int  `yaml:"fft_size"`     // FFT length (default: 2048)
	Segments    int  `yaml:"segments"`     // Number of averaged segments (default: 8)
	PreviewBins int  `yaml:"preview_bins"` // Downsampled bin count sent to clients (default: 512)
}

// RecordingConfig contains IQ capture settings
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`  // Record received IQ blocks to disk
	DataDir string `yaml:"data_dir"` // Directory for capture files (default: "captures")
}

// PrometheusConfig contains Prometheus metrics settings
type PrometheusConfig struct {
	Enabled      bool     `yaml:"enabled"`       // Enable/disable Prometheus metrics endpoint
	AllowedHosts []string `yaml:"allowed_hosts"` // List of IPs/CIDRs allowed to access metrics

	allowedNets []*net.IPNet // Parsed CIDR networks (internal use)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`          // Enable/disable MQTT publishing
	Broker          string        `yaml:"broker"`           // MQTT broker URL (e.g., tcp://mqtt.example.com:1883)
	Username        string        `yaml:"username"`         // MQTT authentication username
	Password        string        `yaml:"password"`         // MQTT authentication password
	TopicPrefix     string        `yaml:"topic_prefix"`     // Topic prefix for all messages
	PublishInterval int           `yaml:"publish_interval"` // Metric snapshot interval in seconds
	QoS             byte          `yaml:"qos"`              // MQTT Quality of Service level (0, 1, or 2)
	Retain          bool          `yaml:"retain"`           // Retain flag for MQTT messages
	TLS             MQTTTLSConfig `yaml:"tls"`              // TLS/SSL settings
}

// MQTTTLSConfig contains MQTT TLS/SSL settings
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Enable/disable TLS
	CACert     string `yaml:"ca_cert"`     // Path to CA certificate file
	ClientCert string `yaml:"client_cert"` // Path to client certificate file (optional)
	ClientKey  string `yaml:"client_key"`  // Path to client key file (optional)
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Prometheus.Enabled {
		if err := config.Prometheus.parseAllowedHosts(); err != nil {
			return nil, fmt.Errorf("failed to parse prometheus.allowed_hosts: %w", err)
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.SDR.Device == "" {
		c.SDR.Device = "loopback"
	}
	if c.SDR.SampleRate == 0 {
		c.SDR.SampleRate = 2_000_000
	}
	if c.SDR.Side == "" {
		c.SDR.Side = "red"
	}
	if c.Streaming.QueueSize == 0 {
		c.Streaming.QueueSize = 10
	}
	if c.Streaming.BlockSize == 0 {
		c.Streaming.BlockSize = 65536
	}
	if c.Streaming.PollMs == 0 {
		c.Streaming.PollMs = 500
	}
	if c.Streaming.JoinTimeoutS == 0 {
		c.Streaming.JoinTimeoutS = 1
	}
	if c.Spectrum.FFTSize == 0 {
		c.Spectrum.FFTSize = 2048
	}
	if c.Spectrum.Segments == 0 {
		c.Spectrum.Segments = 8
	}
	if c.Spectrum.PreviewBins == 0 {
		c.Spectrum.PreviewBins = 512
	}
	if c.Recording.DataDir == "" {
		c.Recording.DataDir = "captures"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "sharkradio"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for common errors
func (c *Config) Validate() error {
	if c.SDR.SampleRate <= 0 {
		return fmt.Errorf("sdr.sample_rate must be positive, got %d", c.SDR.SampleRate)
	}
	if c.SDR.Side != "red" && c.SDR.Side != "blue" {
		return fmt.Errorf("sdr.side must be \"red\" or \"blue\", got %q", c.SDR.Side)
	}
	if c.Streaming.QueueSize < 1 {
		return fmt.Errorf("streaming.queue_size must be at least 1, got %d", c.Streaming.QueueSize)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when MQTT is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
	}
	if c.Spectrum.FFTSize&(c.Spectrum.FFTSize-1) != 0 {
		return fmt.Errorf("spectrum.fft_size must be a power of two, got %d", c.Spectrum.FFTSize)
	}
	return nil
}

// parseAllowedHosts parses the AllowedHosts list into IP networks
func (pc *PrometheusConfig) parseAllowedHosts() error {
	pc.allowedNets = nil
	for _, host := range pc.AllowedHosts {
		cidr := host
		if ip := net.ParseIP(host); ip != nil {
			if ip.To4() != nil {
				cidr = host + "/32"
			} else {
				cidr = host + "/128"
			}
		}
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			return fmt.Errorf("invalid IP or CIDR %q: %w", host, err)
		}
		pc.allowedNets = append(pc.allowedNets, ipnet)
	}
	return nil
}

// IsIPAllowed checks if an IP is allowed to access the metrics endpoint.
// An empty allowed_hosts list allows everyone.
func (pc *PrometheusConfig) IsIPAllowed(ipStr string) bool {
	if len(pc.allowedNets) == 0 {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipnet := range pc.allowedNets {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}
