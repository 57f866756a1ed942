package wrapper

import "github.com/brick-pid/simplegym/pkg/types"

// Meta is the per-instance bookkeeping every adapter carries: the last
// observation/reward, the admissible-action set, and the done/deleted
// lifecycle flags. Reset-dependent fields (task id, world type, task
// description) live in Extra.
type Meta struct {
	Observation      string
	Reward           float64
	AvailableActions []string
	Done             bool
	Deleted          bool
	WasReset         bool
	Extra            map[string]any
}

// Table tracks environment instances inside one wrapper. It implements
// the lifecycle checks of the environment state machine:
//
//	created --reset--> active --step*--> active | terminal
//	terminal --reset--> active
//	any --close--> deleted (all further ops fail)
//
// Table is not synchronized; the worker's serial loop is the only caller.
type Table struct {
	metas map[types.EnvID]*Meta
	order []types.EnvID
}

// NewTable creates an empty instance table.
func NewTable() *Table {
	return &Table{metas: make(map[types.EnvID]*Meta)}
}

// Add registers a freshly created instance in pre-reset state.
func (t *Table) Add(envID types.EnvID) *Meta {
	meta := &Meta{Extra: make(map[string]any)}
	t.metas[envID] = meta
	t.order = append(t.order, envID)
	return meta
}

// Get returns the meta for envID without lifecycle checks.
func (t *Table) Get(envID types.EnvID) (*Meta, bool) {
	meta, ok := t.metas[envID]
	return meta, ok
}

// Check validates that envID may serve a step-like operation: it must
// exist, not be deleted, and not be in a terminal or pre-reset state.
func (t *Table) Check(envID types.EnvID) (*Meta, error) {
	return t.check(envID, false)
}

// CheckForReset validates that envID may serve reset or close: terminal
// and pre-reset instances are acceptable, deleted ones are not.
func (t *Table) CheckForReset(envID types.EnvID) (*Meta, error) {
	return t.check(envID, true)
}

func (t *Table) check(envID types.EnvID, forReset bool) (*Meta, error) {
	meta, ok := t.metas[envID]
	if !ok {
		return nil, types.ErrEnvNotFound(envID)
	}
	if meta.Deleted {
		return nil, types.ErrEnvClosed(envID)
	}
	if !forReset && (meta.Done || !meta.WasReset) {
		// A created-but-never-reset instance has no episode to step;
		// it is reported as the nearest kind, same as a finished one.
		return nil, types.ErrEpisodeFinished(envID)
	}
	return meta, nil
}

// MarkReset moves an instance to the active state.
func (m *Meta) MarkReset() {
	m.Done = false
	m.WasReset = true
	m.Reward = 0
}

// MarkDeleted moves an instance to the deleted state. Idempotent; callers
// decide whether a second delete is an error.
func (m *Meta) MarkDeleted() {
	m.Deleted = true
}

// Live returns ids that were added and not yet deleted, in creation order.
func (t *Table) Live() []types.EnvID {
	live := make([]types.EnvID, 0, len(t.order))
	for _, envID := range t.order {
		if meta := t.metas[envID]; meta != nil && !meta.Deleted {
			live = append(live, envID)
		}
	}
	return live
}
