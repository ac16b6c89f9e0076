// Package config loads the node's YAML configuration file and applies
// environment-variable overrides, the way flavio-simonelli-KoordeDHT's
// internal/config does for its DHT node.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
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
	Tracing TracingConfig `yaml:"tracing"`
}

// MeshConfig mirrors spec.md §6's "Runtime tunables" table.
type MeshConfig struct {
	BufferPoolCount          int `yaml:"bufferPoolCount"`
	BufferDataSize           int `yaml:"bufferDataSize"`
	NodeTableCapacity        int `yaml:"nodeTableCapacity"`
	PathsPerNode             int `yaml:"pathsPerNode"`
	TranslationTableCapacity int `yaml:"translationTableCapacity"`
	SeqnoExpectedRange       int `yaml:"seqnoExpectedRange"`
	SeqnoMaxAgeSeconds       int `yaml:"seqnoMaxAgeSeconds"`
	SeqnoCacheSize           int `yaml:"seqnoCacheSize"`
	LocalTxBufferSize        int `yaml:"localTxBufferSize"`
}

// DefaultMeshConfig returns spec.md §6's documented defaults.
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		BufferPoolCount:          16,
		BufferDataSize:           1024,
		NodeTableCapacity:        16,
		PathsPerNode:             2,
		TranslationTableCapacity: 16,
		SeqnoExpectedRange:       10,
		SeqnoMaxAgeSeconds:       3,
		SeqnoCacheSize:           8,
		LocalTxBufferSize:        512,
	}
}

type NodeConfig struct {
	Id    string   `yaml:"id"`
	Ports []string `yaml:"ports"`
}

type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Logger    LoggerConfig    `yaml:"logger"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig reads and parses a YAML configuration file. It performs only
// syntactic parsing; call Validate afterwards.
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

// ApplyEnvOverrides overrides selected fields from MESHNODE_*-prefixed
// environment variables, mirroring the override table style of
// flavio-simonelli-KoordeDHT's ApplyEnvOverrides.
//
//	MESHNODE_ID            -> cfg.Node.Id
//	MESHNODE_PORTS         -> cfg.Node.Ports (comma-separated)
//	MESHNODE_LOGGER_LEVEL  -> cfg.Logger.Level
//	MESHNODE_LOGGER_MODE   -> cfg.Logger.Mode
//	MESHNODE_TRACE_ENABLED -> cfg.Telemetry.Tracing.Enabled
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MESHNODE_ID"); v != "" {
		cfg.Node.Id = v
	}
	if v := os.Getenv("MESHNODE_PORTS"); v != "" {
		cfg.Node.Ports = strings.Split(v, ",")
	}
	if v := os.Getenv("MESHNODE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MESHNODE_LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("MESHNODE_TRACE_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1" || v == "yes"
	}
}

// Validate rejects configurations that would violate the routing core's
// table-capacity or sequence-number invariants (design note 4: reject
// ranges that would admit a seqno above SeqnoMax).
func (cfg *Config) Validate() error {
	m := cfg.Mesh
	if m.NodeTableCapacity <= 0 {
		return fmt.Errorf("config: nodeTableCapacity must be positive, got %d", m.NodeTableCapacity)
	}
	if m.PathsPerNode <= 0 {
		return fmt.Errorf("config: pathsPerNode must be positive, got %d", m.PathsPerNode)
	}
	if m.TranslationTableCapacity <= 0 {
		return fmt.Errorf("config: translationTableCapacity must be positive, got %d", m.TranslationTableCapacity)
	}
	if m.SeqnoCacheSize <= 0 {
		return fmt.Errorf("config: seqnoCacheSize must be positive, got %d", m.SeqnoCacheSize)
	}
	if m.SeqnoExpectedRange < 0 || m.SeqnoExpectedRange > 23 {
		return fmt.Errorf("config: seqnoExpectedRange must be within [0,23], got %d", m.SeqnoExpectedRange)
	}
	if m.SeqnoMaxAgeSeconds <= 0 {
		return fmt.Errorf("config: seqnoMaxAgeSeconds must be positive, got %d", m.SeqnoMaxAgeSeconds)
	}
	if m.BufferPoolCount <= 0 || m.BufferDataSize <= 0 {
		return fmt.Errorf("config: bufferPoolCount and bufferDataSize must be positive")
	}
	return nil
}

// ApplyMeshDefaults replaces the whole mesh section with the defaults when
// nodeTableCapacity is zero, as happens when a config file omits the mesh
// section entirely; zero-valued fields of a section that sets
// nodeTableCapacity are left as they are.
func (cfg *Config) ApplyMeshDefaults() {
	if cfg.Mesh.NodeTableCapacity == 0 {
		cfg.Mesh = DefaultMeshConfig()
	}
}
