package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/claimgate/internal/flagx"
	"github.com/dmitrijs2005/claimgate/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations accept both strings
// such as "60s" and integer nanoseconds. Fields left out of the file keep
// their default.
type FileConfig struct {
	HTTPAddr        string         `json:"http_addr" yaml:"http_addr"`
	GRPCHealthAddr  string         `json:"grpc_health_addr" yaml:"grpc_health_addr"`
	DatabaseDSN     string         `json:"database_dsn" yaml:"database_dsn"`
	JWTSecret       string         `json:"jwt_secret" yaml:"jwt_secret"`
	LogLevel        string         `json:"log_level" yaml:"log_level"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	ConfidenceThreshold float64        `json:"confidence_threshold" yaml:"confidence_threshold"`
	ClassifierURL       string         `json:"classifier_url" yaml:"classifier_url"`
	ClassifierTimeout   timex.Duration `json:"classifier_timeout" yaml:"classifier_timeout"`

	SearchEndpoint  string         `json:"search_endpoint" yaml:"search_endpoint"`
	SearchResults   int            `json:"search_results" yaml:"search_results"`
	SearchRPS       float64        `json:"search_rps" yaml:"search_rps"`
	EvidenceMaxLen  int            `json:"evidence_max_len" yaml:"evidence_max_len"`
	FetchTimeout    timex.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
	CaptureMaxChars int            `json:"capture_max_chars" yaml:"capture_max_chars"`

	EmbedderURL     string         `json:"embedder_url" yaml:"embedder_url"`
	EmbedderModel   string         `json:"embedder_model" yaml:"embedder_model"`
	EmbedderTimeout timex.Duration `json:"embedder_timeout" yaml:"embedder_timeout"`
	ChunkSize       int            `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap    *int           `json:"chunk_overlap" yaml:"chunk_overlap"`

	VerifyCost          *int64 `json:"verify_cost" yaml:"verify_cost"`
	StorageCostPerChunk *int64 `json:"storage_cost_per_chunk" yaml:"storage_cost_per_chunk"`
	SearchCost          *int64 `json:"search_cost" yaml:"search_cost"`
	VerifiedMemoryCost  *int64 `json:"verified_memory_cost" yaml:"verified_memory_cost"`

	BearerCacheTTL     timex.Duration `json:"bearer_cache_ttl" yaml:"bearer_cache_ttl"`
	BearerCacheSize    int            `json:"bearer_cache_size" yaml:"bearer_cache_size"`
	KeyCacheTTL        timex.Duration `json:"key_cache_ttl" yaml:"key_cache_ttl"`
	KeyCacheSize       int            `json:"key_cache_size" yaml:"key_cache_size"`
	MigrationMarkerTTL timex.Duration `json:"migration_marker_ttl" yaml:"migration_marker_ttl"`
	LegacyScanLimit    int            `json:"legacy_scan_limit" yaml:"legacy_scan_limit"`
	BcryptCost         int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`

	BlocklistPath string `json:"blocklist_path" yaml:"blocklist_path"`

	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3AccessKey    string `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
}

// parseFile overlays the file named by -c/-config onto config. Files ending
// in .yaml or .yml are read as YAML, anything else as JSON.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, c)
	default:
		err = json.Unmarshal(raw, c)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.LogLevel, c.LogLevel)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)

	if c.ConfidenceThreshold != 0 {
		config.ConfidenceThreshold = c.ConfidenceThreshold
	}
	setString(&config.ClassifierURL, c.ClassifierURL)
	setDuration(&config.ClassifierTimeout, c.ClassifierTimeout)

	setString(&config.SearchEndpoint, c.SearchEndpoint)
	setInt(&config.SearchResults, c.SearchResults)
	if c.SearchRPS != 0 {
		config.SearchRPS = c.SearchRPS
	}
	setInt(&config.EvidenceMaxLen, c.EvidenceMaxLen)
	setDuration(&config.FetchTimeout, c.FetchTimeout)
	setInt(&config.CaptureMaxChars, c.CaptureMaxChars)

	setString(&config.EmbedderURL, c.EmbedderURL)
	setString(&config.EmbedderModel, c.EmbedderModel)
	setDuration(&config.EmbedderTimeout, c.EmbedderTimeout)
	setInt(&config.ChunkSize, c.ChunkSize)
	if c.ChunkOverlap != nil {
		config.ChunkOverlap = *c.ChunkOverlap
	}

	setCost(&config.VerifyCost, c.VerifyCost)
	setCost(&config.StorageCostPerChunk, c.StorageCostPerChunk)
	setCost(&config.SearchCost, c.SearchCost)
	setCost(&config.VerifiedMemoryCost, c.VerifiedMemoryCost)

	setDuration(&config.BearerCacheTTL, c.BearerCacheTTL)
	setInt(&config.BearerCacheSize, c.BearerCacheSize)
	setDuration(&config.KeyCacheTTL, c.KeyCacheTTL)
	setInt(&config.KeyCacheSize, c.KeyCacheSize)
	setDuration(&config.MigrationMarkerTTL, c.MigrationMarkerTTL)
	setInt(&config.LegacyScanLimit, c.LegacyScanLimit)
	setInt(&config.BcryptCost, c.BcryptCost)

	setString(&config.BlocklistPath, c.BlocklistPath)

	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// setCost takes a pointer so that an explicit zero (a free operation) is
// distinguishable from an absent key.
func setCost(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
