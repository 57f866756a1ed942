package mockenv

import (
	"fmt"
	"strings"
	"time"

	"github.com/brick-pid/simplegym/pkg/types"
	"github.com/brick-pid/simplegym/pkg/wrapper"
)

// Name is the registry name of the mock wrapper.
const Name = "mock"

func init() {
	wrapper.Register(Name, func(cfg wrapper.Config) (wrapper.EnvWrapper, error) {
		return New(cfg)
	})
}

// DefaultNumTasks is the task-catalog size when the config does not set
// num_tasks.
const DefaultNumTasks = 16

var worldTypes = map[string]bool{"Text": true, "Embody": true, "Hybrid": true}

// goalItems is the deterministic task catalog: task t's goal is
// goalItems[t % len(goalItems)], its room is rooms[t % len(rooms)].
var goalItems = []string{
	"brass key", "red potion", "silver coin", "old map",
	"glass lens", "iron gear", "blue crystal", "torn page",
}

var rooms = []string{"kitchen", "cellar", "library", "workshop"}

// Env is a deterministic text-adventure simulator used as the reference
// adapter and by the pool tests. Each task places a goal item in a room;
// the episode ends with reward 1 when the agent takes it.
type Env struct {
	numTasks int
	table    *wrapper.Table
	tasks    map[types.EnvID]*episode
}

type episode struct {
	taskID    int
	worldType string
	steps     int
}

// New builds a mock wrapper. Config keys: num_tasks (int, default 16).
func New(cfg wrapper.Config) (*Env, error) {
	numTasks := DefaultNumTasks
	if raw, ok := cfg["num_tasks"]; ok {
		n, ok := types.ResetOptions(cfg).Int("num_tasks")
		if !ok || n <= 0 {
			return nil, fmt.Errorf("invalid num_tasks %v", raw)
		}
		numTasks = n
	}
	return &Env{
		numTasks: numTasks,
		table:    wrapper.NewTable(),
		tasks:    make(map[types.EnvID]*episode),
	}, nil
}

// NumTasks reports the catalog size.
func (e *Env) NumTasks() int { return e.numTasks }

// CreateWithID registers a fresh instance in pre-reset state.
func (e *Env) CreateWithID(envID types.EnvID) (any, error) {
	if _, exists := e.table.Get(envID); exists {
		return nil, types.NewErrorf(types.CodeInternalError, "environment %d already exists", envID)
	}
	e.table.Add(envID)
	e.tasks[envID] = &episode{taskID: -1}
	return types.CreateResult{EnvID: envID}, nil
}

// Reset validates options, binds the instance to a task and returns the
// opening observation. Recognized options: task_id (default 0),
// world_type (default "Text").
func (e *Env) Reset(envID types.EnvID, options types.ResetOptions) (any, error) {
	worldType, ok := options.String(types.OptionWorldType)
	if !ok {
		worldType = "Text"
	}
	if !worldTypes[worldType] {
		return nil, types.NewErrorf(types.CodeInvalidAction,
			`world_type must be one of "Text", "Embody" and "Hybrid"`)
	}

	taskID, ok := options.TaskID()
	if !ok {
		taskID = 0
	}
	if taskID < 0 || taskID >= e.numTasks {
		return nil, types.NewErrorf(types.CodeTaskOutOfRange,
			"task_id %d out of range [0, %d)", taskID, e.numTasks)
	}

	meta, err := e.table.CheckForReset(envID)
	if err != nil {
		return nil, err
	}

	ep := e.tasks[envID]
	ep.taskID = taskID
	ep.worldType = worldType
	ep.steps = 0

	meta.MarkReset()
	meta.Observation = openingObservation(taskID)
	meta.AvailableActions = availableActions(taskID)
	meta.Extra["task_id"] = taskID
	meta.Extra["world_type"] = worldType
	meta.Extra["task_type"] = taskType(taskID)

	return map[string]any{
		"env_id":            envID,
		"observation":       meta.Observation,
		"available_actions": meta.AvailableActions,
		"task_type":         taskType(taskID),
		"task_id":           taskID,
	}, nil
}

// Step executes one action. The goal action ends the episode with reward
// 1; "sleep <duration>" stalls the worker, which tests use to exercise
// IPC timeouts.
func (e *Env) Step(envID types.EnvID, action string) (any, error) {
	meta, err := e.table.Check(envID)
	if err != nil {
		return nil, err
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return nil, types.NewErrorf(types.CodeInvalidAction, "action must not be empty")
	}

	if d, ok := strings.CutPrefix(action, "sleep "); ok {
		dur, err := time.ParseDuration(strings.TrimSpace(d))
		if err != nil {
			return nil, types.NewErrorf(types.CodeInvalidAction, "bad sleep duration %q", d)
		}
		time.Sleep(dur)
	}

	ep := e.tasks[envID]
	ep.steps++

	observation, reward, done := e.observe(ep, action)
	meta.Observation = observation
	meta.Reward = reward
	meta.Done = done

	return types.StepResult{
		Observation: observation,
		Reward:      reward,
		Done:        done,
		Info: map[string]any{
			"available_actions": meta.AvailableActions,
			"task_type":         taskType(ep.taskID),
			"steps":             ep.steps,
		},
	}, nil
}

// Close releases the instance. A created-but-never-reset instance closes
// cleanly; a second close is ENV_CLOSED.
func (e *Env) Close(envID types.EnvID) (bool, error) {
	meta, err := e.table.CheckForReset(envID)
	if err != nil {
		return false, err
	}
	meta.MarkDeleted()
	delete(e.tasks, envID)
	return true, nil
}

// Live returns the ids of not-yet-closed instances.
func (e *Env) Live() []types.EnvID {
	return e.table.Live()
}

func (e *Env) observe(ep *episode, action string) (observation string, reward float64, done bool) {
	goal := goalItems[ep.taskID%len(goalItems)]
	room := rooms[ep.taskID%len(rooms)]

	switch {
	case action == "take "+goal:
		return fmt.Sprintf("You take the %s. Task complete.", goal), 1, true
	case action == "look":
		return openingObservation(ep.taskID), 0, false
	case action == "inventory":
		return "You are carrying nothing.", 0, false
	case strings.HasPrefix(action, "sleep "):
		return "You doze off for a moment.", 0, false
	case strings.HasPrefix(action, "go to "):
		return fmt.Sprintf("You walk around the %s.", room), 0, false
	default:
		return fmt.Sprintf(
			"Nothing happens. Your action is not valid in current environment. Available action includes %v.",
			availableActions(ep.taskID)), 0, false
	}
}

func openingObservation(taskID int) string {
	goal := goalItems[taskID%len(goalItems)]
	room := rooms[taskID%len(rooms)]
	return fmt.Sprintf("You are in the %s. Somewhere here lies the %s. Your task is to: take the %s.",
		room, goal, goal)
}

func availableActions(taskID int) []string {
	goal := goalItems[taskID%len(goalItems)]
	room := rooms[taskID%len(rooms)]
	return []string{"look", "inventory", "go to " + room, "take " + goal}
}

func taskType(taskID int) string {
	return fmt.Sprintf("pick_and_place/task-%d", taskID)
}
