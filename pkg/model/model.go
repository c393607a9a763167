package model

import (
	"fmt"
	"sort"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/types"
)

// Model is one versioned BPMN graph: tasks keyed by numeric id, events
// keyed by (taskID, eventID), gateways keyed by element id. A model is
// immutable once handed to the ModelManager.
type Model struct {
	Definition Definition
	tasks      map[int]*Task
	events     map[eventKey]*Event
	gateways   map[string]*Gateway
}

// Definition is the top-level model profile.
type Definition struct {
	Version string
	Groups  []string
}

// Task is a resting state of a workitem.
type Task struct {
	ID             int
	Name           string
	WorkflowGroup  string
	WorkflowStatus string
	// Items carries the task's extension attributes, including the ACL
	// annotations (keyupdateacl, namaddreadaccess, keyaddwritefields, ...).
	Items       *document.ItemCollection
	DataObjects map[string]string
}

// Event is a transition out of a task.
type Event struct {
	TaskID  int
	EventID int
	Name    string
	// NextTaskID is the successor task. It is ignored when the event's
	// outgoing path enters a gateway.
	NextTaskID int
	// GatewayID points at a conditional or split gateway when set.
	GatewayID string
	// FollowUpEventID enqueues another event on the reached task.
	FollowUpEventID int
	Items           *document.ItemCollection
	DataObjects     map[string]string
}

// GatewayKind distinguishes conditional routing from parallel splits.
type GatewayKind string

const (
	GatewayConditional GatewayKind = "conditional"
	GatewaySplit       GatewayKind = "split"
)

// Gateway routes an event's outgoing path.
type Gateway struct {
	ID   string
	Kind GatewayKind
	// Edges in model-declared order. For conditional gateways the first
	// edge whose script evaluates true wins and exactly one edge must be
	// the else edge. For split gateways every true edge spawns a sibling
	// and exactly one edge is the primary path.
	Edges []Edge
}

// Edge is one outgoing path of a gateway. Exactly one of TargetTaskID and
// TargetGatewayID is set.
type Edge struct {
	Script          string
	TargetTaskID    int
	TargetGatewayID string
	Else            bool
	Primary         bool
}

type eventKey struct {
	taskID  int
	eventID int
}

// NewModel creates an empty model for the given version.
func NewModel(version string) *Model {
	return &Model{
		Definition: Definition{Version: version},
		tasks:      make(map[int]*Task),
		events:     make(map[eventKey]*Event),
		gateways:   make(map[string]*Gateway),
	}
}

// Version returns the model version.
func (m *Model) Version() string {
	return m.Definition.Version
}

// AddTask registers a task. Task ids must be unique within a model.
func (m *Model) AddTask(task *Task) error {
	if task == nil || task.ID == 0 {
		return types.NewWorkflowError("model", types.CodeInvalidModel, "task id is missing")
	}
	if _, exists := m.tasks[task.ID]; exists {
		return types.NewWorkflowError("model", types.CodeInvalidModel,
			fmt.Sprintf("duplicate task id %d", task.ID))
	}
	if task.Items == nil {
		task.Items = document.New()
	}
	m.tasks[task.ID] = task
	if task.WorkflowGroup != "" && !contains(m.Definition.Groups, task.WorkflowGroup) {
		m.Definition.Groups = append(m.Definition.Groups, task.WorkflowGroup)
	}
	return nil
}

// AddEvent registers an event. Duplicate (taskID, eventID) pairs are a
// model validation error.
func (m *Model) AddEvent(event *Event) error {
	if event == nil || event.TaskID == 0 || event.EventID == 0 {
		return types.NewWorkflowError("model", types.CodeInvalidModel, "event id is missing")
	}
	key := eventKey{event.TaskID, event.EventID}
	if _, exists := m.events[key]; exists {
		return types.NewWorkflowError("model", types.CodeDuplicateEvent,
			fmt.Sprintf("duplicate event %d.%d", event.TaskID, event.EventID))
	}
	if event.Items == nil {
		event.Items = document.New()
	}
	m.events[key] = event
	return nil
}

// AddGateway registers a gateway.
func (m *Model) AddGateway(gateway *Gateway) error {
	if gateway == nil || gateway.ID == "" {
		return types.NewWorkflowError("model", types.CodeInvalidModel, "gateway id is missing")
	}
	if _, exists := m.gateways[gateway.ID]; exists {
		return types.NewWorkflowError("model", types.CodeInvalidModel,
			fmt.Sprintf("duplicate gateway %s", gateway.ID))
	}
	m.gateways[gateway.ID] = gateway
	return nil
}

// Task resolves a task by id.
func (m *Model) Task(id int) (*Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, types.NewWorkflowError("model", types.CodeUndefinedModel,
			fmt.Sprintf("undefined task %d in model %s", id, m.Version()))
	}
	return task, nil
}

// Event resolves an event by its (taskID, eventID) key.
func (m *Model) Event(taskID, eventID int) (*Event, error) {
	event, ok := m.events[eventKey{taskID, eventID}]
	if !ok {
		return nil, types.NewWorkflowError("model", types.CodeUndefinedModel,
			fmt.Sprintf("undefined event %d.%d in model %s", taskID, eventID, m.Version()))
	}
	return event, nil
}

// Gateway resolves a gateway by element id.
func (m *Model) Gateway(id string) (*Gateway, error) {
	gateway, ok := m.gateways[id]
	if !ok {
		return nil, types.NewWorkflowError("model", types.CodeUndefinedModel,
			fmt.Sprintf("undefined gateway %s in model %s", id, m.Version()))
	}
	return gateway, nil
}

// EventsByTask returns all events of a task ordered by event id.
func (m *Model) EventsByTask(taskID int) []*Event {
	var events []*Event
	for key, event := range m.events {
		if key.taskID == taskID {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].EventID < events[j].EventID })
	return events
}

// TasksByGroup returns all tasks of a workflow group ordered by task id.
func (m *Model) TasksByGroup(group string) []*Task {
	var tasks []*Task
	for _, task := range m.tasks {
		if task.WorkflowGroup == group {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// Tasks returns all tasks ordered by id.
func (m *Model) Tasks() []*Task {
	tasks := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// Validate checks the graph for dangling edges: every event must terminate
// in a known task, possibly via gateways, and every gateway edge must point
// at a known target.
func (m *Model) Validate() error {
	for key, event := range m.events {
		if event.GatewayID != "" {
			if _, ok := m.gateways[event.GatewayID]; !ok {
				return types.NewWorkflowError("model", types.CodeInvalidModel,
					fmt.Sprintf("event %d.%d references undefined gateway %s", key.taskID, key.eventID, event.GatewayID))
			}
			continue
		}
		if _, ok := m.tasks[event.NextTaskID]; !ok {
			return types.NewWorkflowError("model", types.CodeInvalidModel,
				fmt.Sprintf("event %d.%d references undefined task %d", key.taskID, key.eventID, event.NextTaskID))
		}
	}
	for id, gateway := range m.gateways {
		elseEdges := 0
		for _, edge := range gateway.Edges {
			if edge.TargetGatewayID != "" {
				if _, ok := m.gateways[edge.TargetGatewayID]; !ok {
					return types.NewWorkflowError("model", types.CodeInvalidModel,
						fmt.Sprintf("gateway %s references undefined gateway %s", id, edge.TargetGatewayID))
				}
			} else if _, ok := m.tasks[edge.TargetTaskID]; !ok {
				return types.NewWorkflowError("model", types.CodeInvalidModel,
					fmt.Sprintf("gateway %s references undefined task %d", id, edge.TargetTaskID))
			}
			if edge.Else {
				elseEdges++
			}
		}
		if gateway.Kind == GatewayConditional && elseEdges != 1 {
			return types.NewWorkflowError("model", types.CodeInvalidModel,
				fmt.Sprintf("conditional gateway %s requires exactly one else edge", id))
		}
	}
	return nil
}

// DataObject returns the literal payload of a data object attached to a
// task or event element.
func DataObject(objects map[string]string, name string) (string, bool) {
	value, ok := objects[name]
	return value, ok
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
