package jobstatus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/3leaps/jobscope/pkg/jobstore"
)

// MaxJobIDLength bounds job ids accepted from callers.
const MaxJobIDLength = 128

// ErrInvalidJobID is returned before any store access for malformed ids.
var ErrInvalidJobID = errors.New("invalid job id")

// Source names the record set that decided a resolution.
type Source string

const (
	SourceProcessed Source = "processed"
	SourceWaiting   Source = "waiting"
	SourceSkipped   Source = "skipped"
	SourceNone      Source = "none"
)

// Lookup reads the three record sets for a single job.
//
// LatestProcessed returns nil (and no error) when the job has no processed row.
type Lookup interface {
	LatestProcessed(ctx context.Context, jobID string) (*jobstore.Record, error)
	InWaiting(ctx context.Context, jobID string) (bool, error)
	InSkipped(ctx context.Context, jobID string) (bool, error)
}

var _ Lookup = (*jobstore.Session)(nil)

// Resolution is the outcome of resolving one job.
type Resolution struct {
	JobID  string
	Status Status
	Source Source

	// Record is the processed row when Source is SourceProcessed.
	Record *jobstore.Record
}

// Resolver owns the vocabulary table. It is the only component that reads
// raw status strings; everything downstream sees canonical values.
type Resolver struct {
	mapping *Mapping
}

// NewResolver returns a resolver over m, or the default vocabulary when m is nil.
func NewResolver(m *Mapping) *Resolver {
	if m == nil {
		m = DefaultMapping()
	}
	return &Resolver{mapping: m}
}

// Mapping exposes the vocabulary for display (e.g. listing raw spellings).
func (r *Resolver) Mapping() *Mapping {
	return r.mapping
}

// Classify maps a processed row's raw status to its canonical value.
func (r *Resolver) Classify(rec jobstore.Record) Status {
	return r.mapping.Canonical(rec.StatusRaw)
}

// Resolve determines the canonical status of jobID.
//
// Precedence is processed, then waiting, then skipped; a job in none of them
// is PENDING. A store error stops resolution rather than falling through to a
// lower-precedence set.
func (r *Resolver) Resolve(ctx context.Context, lookup Lookup, jobID string) (Resolution, error) {
	if err := ValidateJobID(jobID); err != nil {
		return Resolution{}, err
	}
	res := Resolution{JobID: jobID}

	rec, err := lookup.LatestProcessed(ctx, jobID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %s: %w", jobID, err)
	}
	if rec != nil {
		res.Status = r.Classify(*rec)
		res.Source = SourceProcessed
		res.Record = rec
		return res, nil
	}

	waiting, err := lookup.InWaiting(ctx, jobID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %s: %w", jobID, err)
	}
	if waiting {
		res.Status = StatusWaiting
		res.Source = SourceWaiting
		return res, nil
	}

	skipped, err := lookup.InSkipped(ctx, jobID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %s: %w", jobID, err)
	}
	if skipped {
		res.Status = StatusSkipped
		res.Source = SourceSkipped
		return res, nil
	}

	res.Status = StatusPending
	res.Source = SourceNone
	return res, nil
}

// ValidateJobID rejects ids that cannot name a job: empty, overlong, or
// containing whitespace or control characters. Ids are opaque and need not
// be numeric.
func ValidateJobID(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidJobID)
	}
	if len(jobID) > MaxJobIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidJobID, MaxJobIDLength)
	}
	for _, r := range jobID {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidJobID)
		}
	}
	return nil
}
