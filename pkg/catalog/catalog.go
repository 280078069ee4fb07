// Package catalog loads the static configuration tables that cannot be
// derived from the job record store: flow topology, extra raw status
// spellings, and expected runtimes.
//
// A catalog is YAML or JSON, validated against an embedded JSON schema, and
// read from a local file or an s3:// URI. When no catalog is configured the
// embedded default is used.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/jobscope/pkg/jobstatus"
)

// CurrentVersion is the only catalog format version understood.
const CurrentVersion = 1

// ErrNotFound indicates the catalog source does not exist.
var ErrNotFound = errors.New("catalog not found")

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the decoded configuration document.
type Catalog struct {
	Version int `json:"version,omitempty" yaml:"version,omitempty"`

	// Flows in display order.
	Flows []Flow `json:"flows,omitempty" yaml:"flows,omitempty"`

	// StatusMap adds raw spellings, keyed by canonical status name.
	StatusMap map[string][]string `json:"status_map,omitempty" yaml:"status_map,omitempty"`

	// Baselines holds expected runtimes in minutes, keyed by job id.
	Baselines map[string]int `json:"baselines,omitempty" yaml:"baselines,omitempty"`
}

// Flow is one application's ordered pipeline.
type Flow struct {
	// Name addresses the flow; defaults to ApplicationCode.
	Name            string  `json:"name,omitempty" yaml:"name,omitempty"`
	ApplicationCode string  `json:"aplctn_cd" yaml:"aplctn_cd"`
	Stages          []Stage `json:"stages" yaml:"stages"`
}

// Stage is a job id with its human label.
type Stage struct {
	JobID string `json:"job_id" yaml:"job_id"`
	Name  string `json:"name" yaml:"name"`
}

// ApplyDefaults fills optional fields.
func (c *Catalog) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	for i := range c.Flows {
		f := &c.Flows[i]
		f.ApplicationCode = strings.TrimSpace(f.ApplicationCode)
		if strings.TrimSpace(f.Name) == "" {
			f.Name = f.ApplicationCode
		}
	}
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	c, err := LoadFromBytes(defaultCatalogYAML, "default_catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	return c, nil
}

// StatusMapping builds the resolver vocabulary: the built-in table plus
// StatusMap. Conflicting spellings are an error.
func (c *Catalog) StatusMapping() (*jobstatus.Mapping, error) {
	m, err := jobstatus.NewMapping(c.StatusMap)
	if err != nil {
		return nil, fmt.Errorf("catalog status_map: %w", err)
	}
	return m, nil
}

// BaselineDurations converts Baselines to durations.
func (c *Catalog) BaselineDurations() map[string]time.Duration {
	if len(c.Baselines) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.Baselines))
	for id, minutes := range c.Baselines {
		out[id] = time.Duration(minutes) * time.Minute
	}
	return out
}

// Flow returns the flow named name (case-insensitive).
func (c *Catalog) Flow(name string) (Flow, bool) {
	want := strings.TrimSpace(name)
	for _, f := range c.Flows {
		if strings.EqualFold(f.Name, want) {
			return f, true
		}
	}
	return Flow{}, false
}

// JobNames maps each staged job id to its display name. A job staged in more
// than one flow keeps the first name.
func (c *Catalog) JobNames() map[string]string {
	out := make(map[string]string)
	for _, f := range c.Flows {
		for _, st := range f.Stages {
			if _, ok := out[st.JobID]; ok || st.Name == "" {
				continue
			}
			out[st.JobID] = st.Name
		}
	}
	return out
}
