// Package config provides configuration loading for ragd.
//
// Configuration is read from an optional YAML file, overridden by environment
// variables and completed with defaults. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Config holds the complete ragd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "openai", "tei" or "fastembed".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	// Dimension is only consulted when the provider cannot report it.
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`
}

// VectorStoreConfig selects and configures the vector store.
type VectorStoreConfig struct {
	// Provider is one of "chromem" or "qdrant".
	Provider   string `koanf:"provider"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`

	QdrantHost   string `koanf:"qdrant_host"`
	QdrantPort   int    `koanf:"qdrant_port"`
	QdrantUseTLS bool   `koanf:"qdrant_use_tls"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Folder string `koanf:"folder"`
	Suffix string `koanf:"suffix"`
	// Exclude holds doublestar patterns matched against file names.
	Exclude          []string `koanf:"exclude"`
	ChunkSize        int      `koanf:"chunk_size"`
	ChunkOverlap     int      `koanf:"chunk_overlap"`
	DocumentType     string   `koanf:"document_type"`
	BatchSize        int      `koanf:"batch_size"`
	BatchesPerSecond float64  `koanf:"batches_per_second"`
	// RedactSecrets masks detected credentials before splitting. Off by
	// default: chunks are then verbatim substrings of their file.
	RedactSecrets bool `koanf:"redact_secrets"`
	// SecretsAllowlist is a TOML file of patterns never redacted.
	SecretsAllowlist string `koanf:"secrets_allowlist"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
}

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidCollectionName reports whether name is a usable collection name:
// 1 to 64 letters, digits, hyphens or underscores.
func ValidCollectionName(name string) bool {
	return collectionNamePattern.MatchString(name)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Embeddings.Provider {
	case "openai", "tei", "fastembed":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider %q is not supported", c.Embeddings.Provider))
	}
	if c.Embeddings.BaseURL != "" {
		u, err := url.Parse(c.Embeddings.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("embeddings.base_url must be an http(s) URL, got %q", c.Embeddings.BaseURL))
		}
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Path == "" {
			errs = append(errs, errors.New("vectorstore.path is required for chromem"))
		}
	case "qdrant":
		if c.VectorStore.QdrantPort < 1 || c.VectorStore.QdrantPort > 65535 {
			errs = append(errs, fmt.Errorf("vectorstore.qdrant_port must be between 1 and 65535, got %d", c.VectorStore.QdrantPort))
		}
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider %q is not supported", c.VectorStore.Provider))
	}
	if !ValidCollectionName(c.VectorStore.Collection) {
		errs = append(errs, fmt.Errorf("vectorstore.collection %q is invalid", c.VectorStore.Collection))
	}

	if c.Ingest.Suffix == "" {
		errs = append(errs, errors.New("ingest.suffix must not be empty"))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, errors.New("ingest.chunk_size must be positive"))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, errors.New("ingest.batch_size must be positive"))
	}
	if c.Ingest.BatchesPerSecond < 0 {
		errs = append(errs, errors.New("ingest.batches_per_second must not be negative"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not supported", c.Logging.Format))
	}

	if c.Observability.EnableTelemetry {
		switch c.Observability.Protocol {
		case "grpc", "http/protobuf":
		default:
			errs = append(errs, fmt.Errorf("observability.protocol %q is not supported", c.Observability.Protocol))
		}
	}

	return errors.Join(errs...)
}
