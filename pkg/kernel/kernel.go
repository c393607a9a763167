package kernel

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowmill/flowmill/pkg/acl"
	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/metrics"
	"github.com/flowmill/flowmill/pkg/model"
	"github.com/flowmill/flowmill/pkg/plugin"
	"github.com/flowmill/flowmill/pkg/rule"
	"github.com/flowmill/flowmill/pkg/types"
)

// Kernel executes single process steps on workitems. One Process call
// runs the plugin chain, resolves gateways, commits the task transition
// and drains queued follow-up events. The kernel never persists; storing
// the returned workitem is the caller's job.
//
// A Kernel is not safe for concurrent Process calls.
type Kernel struct {
	context  *plugin.WorkflowContext
	registry *plugin.Registry
	rules    *rule.Engine
	broker   *events.Broker
	splits   []*document.ItemCollection
	now      func() time.Time
}

func New(ctx *plugin.WorkflowContext, registry *plugin.Registry, rules *rule.Engine, broker *events.Broker) *Kernel {
	return &Kernel{
		context:  ctx,
		registry: registry,
		rules:    rules,
		broker:   broker,
		now:      time.Now,
	}
}

// SplitWorkitems returns the sibling workitems created at split gateways
// during the last Process call.
func (k *Kernel) SplitWorkitems() []*document.ItemCollection {
	return k.splits
}

type eventKey struct {
	taskID  int
	eventID int
}

// Process runs one step. The workitem must carry $modelversion, $taskid
// and $eventid; $eventid may be 0 when the $activityidlist queue holds
// follow-up events.
func (k *Kernel) Process(workitem *document.ItemCollection) (*document.ItemCollection, error) {
	start := time.Now()
	k.splits = nil
	group := workitem.WorkflowGroup()

	m, err := k.context.Models.ModelByWorkitem(workitem)
	if err != nil {
		return nil, err
	}

	if err := k.checkWriteAccess(workitem); err != nil {
		metrics.ProcessedTotal.WithLabelValues(group, "denied").Inc()
		return nil, err
	}

	if err := k.stampWorkitem(workitem); err != nil {
		return nil, err
	}

	eventID := workitem.EventID()
	if eventID == 0 {
		eventID, err = dequeueActivity(workitem)
		if err != nil {
			return nil, err
		}
	}
	if eventID == 0 {
		return nil, types.NewWorkflowError("kernel", types.CodeProcessingError,
			"no $eventid set and no queued follow-up event")
	}

	k.broker.Publish(&events.Event{Phase: events.PhaseBeforeProcess, Workitem: workitem, EventID: eventID})

	chain := k.registry.Chain()
	names := k.registry.Names()
	ran := 0

	fail := func(err error) (*document.ItemCollection, error) {
		k.closePlugins(chain[:ran], true)
		k.broker.Publish(&events.Event{Phase: events.PhaseProcessFailed, Workitem: workitem,
			EventID: eventID, Message: err.Error()})
		metrics.ProcessedTotal.WithLabelValues(group, "error").Inc()
		return nil, err
	}

	// a failed Init rolls back the plugins already initialized
	for i, p := range chain {
		if err := p.Init(k.context); err != nil {
			ran = i
			return fail(types.WrapWorkflowError("kernel", types.CodePluginError,
				fmt.Sprintf("plugin %s init failed", names[i]), err))
		}
	}

	visited := make(map[eventKey]bool)

	for eventID != 0 {
		key := eventKey{taskID: workitem.TaskID(), eventID: eventID}
		if visited[key] {
			return fail(types.NewWorkflowError("kernel", types.CodeCyclicFollowUp,
				fmt.Sprintf("cyclic follow-up at event %d.%d", key.taskID, key.eventID)))
		}
		visited[key] = true

		event, err := m.Event(key.taskID, eventID)
		if err != nil {
			return fail(err)
		}
		eventDoc := buildEventDoc(event)

		for i, p := range chain {
			if i+1 > ran {
				ran = i + 1
			}
			out, err := p.Run(workitem, eventDoc)
			if err != nil {
				metrics.PluginErrorsTotal.WithLabelValues(names[i]).Inc()
				return fail(types.WrapWorkflowError("kernel", types.CodePluginError,
					fmt.Sprintf("plugin %s failed at event %d.%d", names[i], key.taskID, eventID), err))
			}
			if out != nil {
				workitem = out
			}
		}

		nextTask, siblingTasks, err := k.resolveNext(m, event, workitem, eventDoc)
		if err != nil {
			return fail(err)
		}

		// siblings fork from the post-plugin, pre-commit state
		for _, siblingTask := range siblingTasks {
			sibling := workitem.Clone()
			if err := sibling.ReplaceItemValue(types.ItemUniqueID, uuid.New().String()); err != nil {
				return fail(err)
			}
			if err := acl.Update(sibling, event, siblingTask); err != nil {
				return fail(err)
			}
			if err := acl.AddParticipant(sibling, k.context.Caller); err != nil {
				return fail(err)
			}
			if err := k.commit(sibling, siblingTask, eventID); err != nil {
				return fail(err)
			}
			k.splits = append(k.splits, sibling)
			metrics.SplitWorkitemsTotal.Inc()
			k.broker.Publish(&events.Event{Phase: events.PhaseSplitCreated, Workitem: sibling, EventID: eventID})
		}

		if err := acl.Update(workitem, event, nextTask); err != nil {
			return fail(err)
		}
		if err := acl.AddParticipant(workitem, k.context.Caller); err != nil {
			return fail(err)
		}
		if err := k.commit(workitem, nextTask, eventID); err != nil {
			return fail(err)
		}

		if event.FollowUpEventID != 0 {
			eventID = event.FollowUpEventID
			continue
		}
		eventID, err = dequeueActivity(workitem)
		if err != nil {
			return fail(err)
		}
	}

	workitem.SetEventID(0)

	k.broker.Publish(&events.Event{Phase: events.PhaseAfterProcess, Workitem: workitem})
	for _, sibling := range k.splits {
		k.broker.Publish(&events.Event{Phase: events.PhaseAfterProcess, Workitem: sibling})
	}

	k.closePlugins(chain, false)

	metrics.ProcessedTotal.WithLabelValues(group, "ok").Inc()
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	return workitem, nil
}

// Eval resolves the target task of an event chain without running
// plugins or mutating the workitem.
func (k *Kernel) Eval(workitem *document.ItemCollection) (*model.Task, error) {
	m, err := k.context.Models.ModelByWorkitem(workitem)
	if err != nil {
		return nil, err
	}

	w := workitem.Clone()
	eventID := w.EventID()
	if eventID == 0 {
		if eventID, err = dequeueActivity(w); err != nil {
			return nil, err
		}
	}
	if eventID == 0 {
		return nil, types.NewWorkflowError("kernel", types.CodeProcessingError,
			"no $eventid set and no queued follow-up event")
	}

	visited := make(map[eventKey]bool)
	var task *model.Task
	for eventID != 0 {
		key := eventKey{taskID: w.TaskID(), eventID: eventID}
		if visited[key] {
			return nil, types.NewWorkflowError("kernel", types.CodeCyclicFollowUp,
				fmt.Sprintf("cyclic follow-up at event %d.%d", key.taskID, key.eventID))
		}
		visited[key] = true

		event, err := m.Event(key.taskID, eventID)
		if err != nil {
			return nil, err
		}
		next, _, err := k.resolveNext(m, event, w, buildEventDoc(event))
		if err != nil {
			return nil, err
		}
		task = next
		w.SetTaskID(next.ID)

		if event.FollowUpEventID != 0 {
			eventID = event.FollowUpEventID
			continue
		}
		if eventID, err = dequeueActivity(w); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// resolveNext follows the event's successor. It returns the task the
// main workitem transitions to plus the target tasks of any active split
// paths.
func (k *Kernel) resolveNext(m *model.Model, event *model.Event, workitem, eventDoc *document.ItemCollection) (*model.Task, []*model.Task, error) {
	if event.GatewayID == "" {
		task, err := m.Task(event.NextTaskID)
		return task, nil, err
	}
	gateway, err := m.Gateway(event.GatewayID)
	if err != nil {
		return nil, nil, err
	}
	return k.resolveGateway(m, gateway, workitem, eventDoc)
}

func (k *Kernel) resolveGateway(m *model.Model, gateway *model.Gateway, workitem, eventDoc *document.ItemCollection) (*model.Task, []*model.Task, error) {
	switch gateway.Kind {
	case model.GatewayConditional:
		var elseEdge *model.Edge
		for i := range gateway.Edges {
			edge := &gateway.Edges[i]
			if edge.Else {
				elseEdge = edge
				continue
			}
			ok, err := k.rules.EvalBoolean(edge.Script, workitem, eventDoc)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				return k.resolveEdge(m, edge, workitem, eventDoc)
			}
		}
		if elseEdge == nil {
			return nil, nil, types.NewWorkflowError("kernel", types.CodeInvalidModel,
				fmt.Sprintf("gateway %s has no else edge", gateway.ID))
		}
		return k.resolveEdge(m, elseEdge, workitem, eventDoc)

	case model.GatewaySplit:
		var primary *model.Edge
		var siblings []*model.Task
		for i := range gateway.Edges {
			edge := &gateway.Edges[i]
			active := edge.Script == ""
			if !active {
				ok, err := k.rules.EvalBoolean(edge.Script, workitem, eventDoc)
				if err != nil {
					return nil, nil, err
				}
				active = ok
			}
			if !active {
				continue
			}
			if edge.Primary && primary == nil {
				primary = edge
				continue
			}
			task, nested, err := k.resolveEdge(m, edge, workitem, eventDoc)
			if err != nil {
				return nil, nil, err
			}
			siblings = append(siblings, task)
			siblings = append(siblings, nested...)
		}
		if primary == nil {
			return nil, nil, types.NewWorkflowError("kernel", types.CodeProcessingError,
				fmt.Sprintf("split gateway %s: primary path not active", gateway.ID))
		}
		task, nested, err := k.resolveEdge(m, primary, workitem, eventDoc)
		if err != nil {
			return nil, nil, err
		}
		return task, append(siblings, nested...), nil
	}
	return nil, nil, types.NewWorkflowError("kernel", types.CodeInvalidModel,
		fmt.Sprintf("unknown gateway kind %q", gateway.Kind))
}

func (k *Kernel) resolveEdge(m *model.Model, edge *model.Edge, workitem, eventDoc *document.ItemCollection) (*model.Task, []*model.Task, error) {
	if edge.TargetGatewayID != "" {
		gateway, err := m.Gateway(edge.TargetGatewayID)
		if err != nil {
			return nil, nil, err
		}
		return k.resolveGateway(m, gateway, workitem, eventDoc)
	}
	task, err := m.Task(edge.TargetTaskID)
	return task, nil, err
}

// commit applies the task transition to the workitem.
func (k *Kernel) commit(workitem *document.ItemCollection, task *model.Task, eventID int) error {
	now := k.now().UTC()
	workitem.SetTaskID(task.ID)
	if err := workitem.ReplaceItemValue(types.ItemWorkflowStatus, task.WorkflowStatus); err != nil {
		return err
	}
	if err := workitem.ReplaceItemValue(types.ItemWorkflowGroup, task.WorkflowGroup); err != nil {
		return err
	}
	if err := workitem.ReplaceItemValue(types.ItemLastEventDate, now); err != nil {
		return err
	}
	if err := workitem.ReplaceItemValue(types.ItemLastEventID, eventID); err != nil {
		return err
	}
	return workitem.AppendItemValue(types.ItemEventLog, eventID)
}

// stampWorkitem sets the one-time identity items on first processing and
// refreshes $modified.
func (k *Kernel) stampWorkitem(workitem *document.ItemCollection) error {
	now := k.now().UTC()
	if workitem.UniqueID() == "" {
		if err := workitem.ReplaceItemValue(types.ItemUniqueID, uuid.New().String()); err != nil {
			return err
		}
	}
	if !workitem.HasItem(types.ItemCreated) {
		if err := workitem.ReplaceItemValue(types.ItemCreated, now); err != nil {
			return err
		}
		if err := workitem.ReplaceItemValue(types.ItemCreator, k.context.Caller); err != nil {
			return err
		}
	}
	if workitem.Type() == "" {
		workitem.SetType(types.TypeWorkitem)
	}
	return workitem.ReplaceItemValue(types.ItemModified, now)
}

// checkWriteAccess enforces $writeaccess. An empty list leaves the
// workitem open; an empty caller is the engine itself and always passes.
func (k *Kernel) checkWriteAccess(workitem *document.ItemCollection) error {
	access := workitem.GetItemValueStringList(types.ItemWriteAccess)
	if len(access) == 0 || k.context.Caller == "" {
		return nil
	}
	for _, name := range access {
		if name == k.context.Caller {
			return nil
		}
	}
	return types.NewWorkflowError("kernel", types.CodeAccessDenied,
		fmt.Sprintf("caller %s has no write access to %s", k.context.Caller, workitem.UniqueID()))
}

func (k *Kernel) closePlugins(chain []plugin.Plugin, rollback bool) {
	names := k.registry.Names()
	for i := len(chain) - 1; i >= 0; i-- {
		if err := chain[i].Close(rollback); err != nil {
			log.WithComponent("kernel").Error().Err(err).
				Str("plugin", names[i]).Bool("rollback", rollback).
				Msg("plugin close failed")
		}
	}
}

// buildEventDoc exposes the event's model items to plugins and rule
// scripts, together with its coordinates.
func buildEventDoc(event *model.Event) *document.ItemCollection {
	doc := event.Items.Clone()
	doc.SetTaskID(event.TaskID)
	doc.SetEventID(event.EventID)
	if !doc.HasItem("name") {
		_ = doc.SetItemValue("name", event.Name)
	}
	return doc
}

// dequeueActivity pops the next event id off the $activityidlist queue.
func dequeueActivity(workitem *document.ItemCollection) (int, error) {
	queue := workitem.GetItemValueIntegerList(types.ItemActivityIDList)
	if len(queue) == 0 {
		return 0, nil
	}
	next := queue[0]
	if len(queue) == 1 {
		workitem.RemoveItem(types.ItemActivityIDList)
	} else if err := workitem.ReplaceItemValue(types.ItemActivityIDList, queue[1:]); err != nil {
		return 0, err
	}
	return next, nil
}
