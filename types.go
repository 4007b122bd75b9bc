package guildsync

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resource is the object name of a tracked bucket resource.
type Resource string

const (
	ResourceEvents        Resource = "events.json"
	ResourceOrganisations Resource = "organisations.json"
)

// Resources lists every resource in sync order.
var Resources = []Resource{ResourceEvents, ResourceOrganisations}

func (r Resource) IsValid() bool {
	switch r {
	case ResourceEvents, ResourceOrganisations:
		return true
	default:
		return false
	}
}

func (r Resource) String() string { return string(r) }

// ParseResource accepts a resource name with or without the .json suffix.
func ParseResource(s string) (Resource, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	res := Resource(name)
	if !res.IsValid() {
		return "", fmt.Errorf("parse resource %q: %w (valid resources: events, organisations)", s, ErrUnknownResource)
	}
	return res, nil
}

// ParseResources parses a list of resource names, dropping duplicates.
func ParseResources(names []string) ([]Resource, error) {
	seen := make(map[Resource]bool, len(names))
	out := make([]Resource, 0, len(names))
	for _, n := range names {
		res, err := ParseResource(n)
		if err != nil {
			return nil, err
		}
		if seen[res] {
			continue
		}
		seen[res] = true
		out = append(out, res)
	}
	return out, nil
}

// SyncState is the locally recorded state of one resource.
type SyncState struct {
	Resource     Resource  `json:"resource"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
	SizeBytes    int64     `json:"size_bytes"`
	SyncedAt     time.Time `json:"synced_at"`
	RunID        uuid.UUID `json:"run_id"`
}

// SyncOutcome is the result of syncing one resource.
type SyncOutcome string

const (
	// OutcomeUpdated means a new payload was downloaded and recorded.
	OutcomeUpdated SyncOutcome = "updated"
	// OutcomeUnchanged means the bucket copy is not newer than the local one.
	OutcomeUnchanged SyncOutcome = "unchanged"
	// OutcomeSkipped means the bucket could not be read this cycle; local data is kept.
	OutcomeSkipped SyncOutcome = "skipped"
	// OutcomeFailed means local storage or the state repository returned an error.
	OutcomeFailed SyncOutcome = "failed"
)

// ResourceReport describes what one cycle did for one resource.
type ResourceReport struct {
	Resource     Resource      `json:"resource"`
	Outcome      SyncOutcome   `json:"outcome"`
	LastModified time.Time     `json:"last_modified,omitzero"`
	SizeBytes    int64         `json:"size_bytes,omitempty"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// SyncReport describes one sync cycle.
type SyncReport struct {
	RunID      uuid.UUID        `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Resources  []ResourceReport `json:"resources"`
}

// Updated reports whether any resource was updated in the cycle.
func (r SyncReport) Updated() bool {
	for _, rr := range r.Resources {
		if rr.Outcome == OutcomeUpdated {
			return true
		}
	}
	return false
}

type SaveResult struct {
	BytesWritten int64
	Etag         string
}

// PayloadInfo describes a stored payload file.
type PayloadInfo struct {
	SizeBytes int64
	ModTime   time.Time
}

// Tables holds configurable table names for sync state storage.
// This allows several deployments to share one database.
type Tables struct {
	State string `mapstructure:"state"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.State == "" {
		return errors.New("validate tables: state table name cannot be empty")
	}

	if !IsValidTableName(t.State) {
		return fmt.Errorf("validate tables: invalid state table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.State)
	}

	return nil
}
