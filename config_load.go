package cocgw

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var configSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("config.schema.json", configSchemaJSON)
	})
	return schema, schemaErr
}

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). Account passwords of
// the form ${NAME} are replaced by the NAME environment variable.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	for i := range cfg.Accounts {
		cfg.Accounts[i].Password = os.ExpandEnv(cfg.Accounts[i].Password)
	}
	return &cfg, nil
}

// ValidateConfig validates a Config against the embedded JSON schema and
// checks what the schema cannot express.
func ValidateConfig(cfg Config) error {
	s, err := configSchema()
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]int, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		if err := a.Credential().Validate(); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if j, dup := seen[email]; dup {
			return fmt.Errorf("accounts[%d]: email %q duplicates accounts[%d]", i, a.Email, j)
		}
		seen[email] = i
	}
	return nil
}
