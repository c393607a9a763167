package plugin

import (
	"strings"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/model"
	"github.com/flowmill/flowmill/pkg/storage"
)

// WorkflowContext is handed to every plugin on Init. It carries the
// caller identity of the current processing step plus the engine
// collaborators a plugin may need.
type WorkflowContext struct {
	// Caller is the identity processing the current step.
	Caller string
	Models *model.Manager
	Store  storage.DocumentStore
}

// Plugin extends a processing step. Run receives the workitem and the
// event document (the model event's items plus $taskid/$eventid) and
// returns the workitem to hand to the next plugin. After the chain
// finished, Close is called in reverse registration order; rollback is
// true when an earlier plugin failed.
type Plugin interface {
	Init(ctx *WorkflowContext) error
	Run(workitem, event *document.ItemCollection) (*document.ItemCollection, error)
	Close(rollback bool) error
}

// UniqueList removes duplicates from a name list preserving the first
// occurrence; empty entries are dropped.
func UniqueList(entries []string) []string {
	seen := make(map[string]bool, len(entries))
	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true
		result = append(result, entry)
	}
	return result
}

// MergeFieldList appends the values of the workitem items named in
// fields to values. A field wrapped in square or curly brackets is an
// inline literal list, not an item reference.
func MergeFieldList(workitem *document.ItemCollection, values []string, fields []string) []string {
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if len(field) >= 2 &&
			((field[0] == '[' && field[len(field)-1] == ']') ||
				(field[0] == '{' && field[len(field)-1] == '}')) {
			for _, entry := range strings.Split(field[1:len(field)-1], ",") {
				values = append(values, strings.TrimSpace(entry))
			}
			continue
		}
		values = append(values, workitem.GetItemValueStringList(field)...)
	}
	return values
}
