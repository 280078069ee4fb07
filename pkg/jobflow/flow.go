// Package jobflow composes statically configured job pipelines with the
// current status of each stage.
//
// Topology comes from the catalog and is fixed for the life of a Builder.
// Status is resolved per request; the two never mix, so a topology change is
// a configuration edit only.
package jobflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/jobscope/pkg/catalog"
	"github.com/3leaps/jobscope/pkg/jobstatus"
)

// ErrUnknownFlow is returned for flow names absent from the catalog.
var ErrUnknownFlow = errors.New("unknown flow")

// Stage is one step of a flow. Status is empty in skeletons.
type Stage struct {
	JobID       string
	DisplayName string
	Status      jobstatus.Status
}

// Flow is a named, ordered pipeline for one application.
type Flow struct {
	Name            string
	ApplicationCode string
	Stages          []Stage
}

type flowDef struct {
	name   string
	app    string
	stages []Stage
}

// Builder holds validated flow topology and produces per-request skeletons.
// It is immutable and safe for concurrent use.
type Builder struct {
	flows []flowDef
	index map[string]int
}

// NewBuilder validates flows and returns a Builder.
func NewBuilder(flows []catalog.Flow) (*Builder, error) {
	b := &Builder{index: make(map[string]int, len(flows))}
	for i, f := range flows {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = strings.TrimSpace(f.ApplicationCode)
		}
		if name == "" {
			return nil, fmt.Errorf("flow %d: name or application code is required", i)
		}
		key := strings.ToLower(name)
		if _, dup := b.index[key]; dup {
			return nil, fmt.Errorf("flow %q: duplicate name", name)
		}
		if len(f.Stages) == 0 {
			return nil, fmt.Errorf("flow %q: no stages", name)
		}

		def := flowDef{name: name, app: strings.TrimSpace(f.ApplicationCode), stages: make([]Stage, 0, len(f.Stages))}
		for j, s := range f.Stages {
			if err := jobstatus.ValidateJobID(s.JobID); err != nil {
				return nil, fmt.Errorf("flow %q stage %d: %w", name, j, err)
			}
			def.stages = append(def.stages, Stage{JobID: s.JobID, DisplayName: s.Name})
		}

		b.index[key] = len(b.flows)
		b.flows = append(b.flows, def)
	}
	return b, nil
}

// Names lists flow names in configured order.
func (b *Builder) Names() []string {
	out := make([]string, 0, len(b.flows))
	for _, f := range b.flows {
		out = append(out, f.name)
	}
	return out
}

// Skeleton returns a copy of the named flow with stage status unset.
func (b *Builder) Skeleton(name string) (Flow, error) {
	i, ok := b.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Flow{}, fmt.Errorf("%w: %q", ErrUnknownFlow, name)
	}
	return b.flows[i].skeleton(), nil
}

func (d flowDef) skeleton() Flow {
	stages := make([]Stage, len(d.stages))
	copy(stages, d.stages)
	return Flow{Name: d.name, ApplicationCode: d.app, Stages: stages}
}

// Composer fills skeletons with resolved status.
type Composer struct {
	builder  *Builder
	resolver *jobstatus.Resolver
}

// NewComposer pairs topology with a resolver.
func NewComposer(b *Builder, r *jobstatus.Resolver) *Composer {
	if r == nil {
		r = jobstatus.NewResolver(nil)
	}
	return &Composer{builder: b, resolver: r}
}

// Builder returns the topology the composer was built with.
func (c *Composer) Builder() *Builder {
	return c.builder
}

// Compose resolves every stage of the named flow. Stages keep configured
// order whatever their status. Any store error fails the whole flow.
func (c *Composer) Compose(ctx context.Context, lookup jobstatus.Lookup, name string) (Flow, error) {
	flow, err := c.builder.Skeleton(name)
	if err != nil {
		return Flow{}, err
	}
	return c.fill(ctx, lookup, flow)
}

// ComposeAll resolves every configured flow in catalog order.
func (c *Composer) ComposeAll(ctx context.Context, lookup jobstatus.Lookup) ([]Flow, error) {
	out := make([]Flow, 0, len(c.builder.flows))
	for _, def := range c.builder.flows {
		flow, err := c.fill(ctx, lookup, def.skeleton())
		if err != nil {
			return nil, err
		}
		out = append(out, flow)
	}
	return out, nil
}

func (c *Composer) fill(ctx context.Context, lookup jobstatus.Lookup, flow Flow) (Flow, error) {
	for i := range flow.Stages {
		res, err := c.resolver.Resolve(ctx, lookup, flow.Stages[i].JobID)
		if err != nil {
			return Flow{}, fmt.Errorf("flow %s stage %s: %w", flow.Name, flow.Stages[i].JobID, err)
		}
		flow.Stages[i].Status = res.Status
	}
	return flow, nil
}
