package qdrant

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:        strings.TrimSpace(os.Getenv("QDRANT_URL")),
		Collection: strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")),
	}
	rawDim := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_DIM"))
	if rawDim != "" {
		dim, err := strconv.Atoi(rawDim)
		if err != nil || dim <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: rawDim}
		}
		cfg.VectorDim = dim
	}
	if cfg.Collection == "" {
		cfg.Collection = "scigraph"
	}
	if cfg.VectorDim == 0 {
		cfg.VectorDim = 1536
	}
	return cfg, ValidateConfig(cfg)
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
