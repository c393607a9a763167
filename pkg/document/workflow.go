package document

import (
	"github.com/flowmill/flowmill/pkg/types"
)

// Accessors for the reserved workflow items. The deprecated pairs
// $processid/$taskid and $activityid/$eventid are still accepted on read;
// reading through the deprecated item heals the canonical one.

// TaskID returns $taskid, falling back to the deprecated $processid.
func (d *ItemCollection) TaskID() int {
	result := d.GetItemValueInteger(types.ItemTaskID)
	if result == 0 && d.HasItem(types.ItemProcessIDDeprecated) {
		if deprecated := d.GetItemValueInteger(types.ItemProcessIDDeprecated); deprecated != 0 {
			result = deprecated
			d.items[types.ItemTaskID] = []any{result}
		}
	}
	return result
}

// SetTaskID sets $taskid and mirrors the deprecated $processid.
func (d *ItemCollection) SetTaskID(taskID int) {
	d.items[types.ItemTaskID] = []any{taskID}
	d.items[types.ItemProcessIDDeprecated] = []any{taskID}
}

// Task sets $taskid and returns the collection for chaining.
func (d *ItemCollection) Task(taskID int) *ItemCollection {
	d.SetTaskID(taskID)
	return d
}

// EventID returns $eventid, falling back to the deprecated $activityid.
func (d *ItemCollection) EventID() int {
	result := d.GetItemValueInteger(types.ItemEventID)
	if result == 0 && d.HasItem(types.ItemActivityIDDeprecated) {
		if deprecated := d.GetItemValueInteger(types.ItemActivityIDDeprecated); deprecated != 0 {
			result = deprecated
			d.items[types.ItemEventID] = []any{result}
		}
	}
	return result
}

// SetEventID sets $eventid. The deprecated $activityid is mirrored only
// when it is already present on the workitem.
func (d *ItemCollection) SetEventID(eventID int) {
	d.items[types.ItemEventID] = []any{eventID}
	if d.HasItem(types.ItemActivityIDDeprecated) {
		d.items[types.ItemActivityIDDeprecated] = []any{eventID}
	}
}

// Event sets $eventid and returns the collection for chaining. If an event
// is already pending, the id is appended to the follow-up queue instead.
func (d *ItemCollection) Event(eventID int) *ItemCollection {
	if d.EventID() == 0 {
		d.SetEventID(eventID)
	} else {
		_ = d.AppendItemValue(types.ItemActivityIDList, eventID)
	}
	return d
}

// ModelVersion returns $modelversion.
func (d *ItemCollection) ModelVersion() string {
	return d.GetItemValueString(types.ItemModelVersion)
}

// SetModelVersion sets $modelversion.
func (d *ItemCollection) SetModelVersion(version string) {
	d.items[types.ItemModelVersion] = []any{version}
}

// Model sets $modelversion and returns the collection for chaining.
func (d *ItemCollection) Model(version string) *ItemCollection {
	d.SetModelVersion(version)
	return d
}

// WorkflowGroup returns $workflowgroup.
func (d *ItemCollection) WorkflowGroup() string {
	return d.GetItemValueString(types.ItemWorkflowGroup)
}

// Group sets $workflowgroup and returns the collection for chaining.
func (d *ItemCollection) Group(group string) *ItemCollection {
	d.items[types.ItemWorkflowGroup] = []any{group}
	return d
}

// UniqueID returns $uniqueid.
func (d *ItemCollection) UniqueID() string {
	return d.GetItemValueString(types.ItemUniqueID)
}

// Type returns the type item.
func (d *ItemCollection) Type() string {
	return d.GetItemValueString(types.ItemType)
}

// SetType sets the type item.
func (d *ItemCollection) SetType(t string) {
	d.items[types.ItemType] = []any{t}
}
