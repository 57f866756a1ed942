package types

import "encoding/json"

// EnvID identifies a single environment instance for the lifetime of the
// router. IDs are allocated monotonically and never reused, so the owning
// worker for id e is always e mod P.
type EnvID = int

// WorkerID is a worker's index in [0, P).
type WorkerID = int

// CreateResult is the payload of a successful create.
type CreateResult struct {
	EnvID EnvID `json:"env_id"`
}

// StepResult is the payload of a successful step. Info is an
// adapter-scoped bag (available_actions, task_type, ...).
type StepResult struct {
	Observation string         `json:"observation"`
	Reward      float64        `json:"reward"`
	Done        bool           `json:"done"`
	Info        map[string]any `json:"info"`
}

// ResetOptions are passed through to the adapter verbatim. Well-known keys
// are listed below; adapters validate the ones they recognize.
type ResetOptions map[string]any

// Well-known reset option keys.
const (
	OptionTaskID    = "task_id"    // deterministic task selector
	OptionWorldType = "world_type" // alfworld: "Text", "Embody" or "Hybrid"
	OptionDataIdx   = "data_idx"   // sciworld task variation index
)

// TaskID extracts the task_id option as an int. JSON numbers arrive as
// float64; both forms are accepted.
func (o ResetOptions) TaskID() (int, bool) {
	return o.Int(OptionTaskID)
}

// Int extracts an integer-valued option.
func (o ResetOptions) Int(key string) (int, bool) {
	v, ok := o[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// String extracts a string-valued option.
func (o ResetOptions) String(key string) (string, bool) {
	v, ok := o[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
