package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a catalog from a local file.
//
// The format is chosen by extension (.yaml/.yml or .json); anything else is
// tried as YAML, then JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading catalog: %s", path)
		}
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader reads and validates a catalog from r.
func LoadFromReader(r io.Reader, path string) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a catalog.
//
// Schema validation runs on the raw document so unknown keys are rejected
// rather than silently dropped by struct decoding. Checks the schema cannot
// express (duplicate flow names) run after decoding.
func LoadFromBytes(data []byte, path string) (*Catalog, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("catalog file is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	var c Catalog
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c.ApplyDefaults()

	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) check() error {
	var errs ValidationErrors
	seen := make(map[string]int, len(c.Flows))
	for i, f := range c.Flows {
		key := strings.ToLower(f.Name)
		if prev, ok := seen[key]; ok {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("/flows/%d/name", i),
				Message: fmt.Sprintf("duplicate flow name %q (also /flows/%d)", f.Name, prev),
			})
			continue
		}
		seen[key] = i
	}
	if _, err := c.StatusMapping(); err != nil {
		errs = append(errs, ValidationError{Path: "/status_map", Message: err.Error()})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// toJSON normalizes the input to JSON for schema validation and decoding.
func toJSON(data []byte, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in catalog: %w", err)
		}
		return data, nil

	case ".yaml", ".yml":
		return yamlToJSON(data)

	default:
		jsonData, err := yamlToJSON(data)
		if err == nil {
			return jsonData, nil
		}
		var raw any
		if jsonErr := json.Unmarshal(data, &raw); jsonErr == nil {
			return data, nil
		}
		return nil, fmt.Errorf("failed to parse catalog (tried YAML and JSON): %w", err)
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in catalog: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert catalog to JSON: %w", err)
	}
	return jsonData, nil
}
