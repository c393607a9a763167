package plugin

import (
	"fmt"
	"time"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/text"
)

const (
	itemHistory       = "txtworkflowhistory"
	itemHistoryLog    = "txtworkflowhistorylog"
	itemHistoryLength = "numworkflowhistorylength"
)

// HistoryPlugin appends a "date|user|comment" line to the workitem's
// txtworkflowhistory whenever the processed event defines a
// txtworkflowhistorylog comment. The comment runs through text
// substitution first. A positive numworkflowhistorylength on the event
// caps the list by trimming the oldest entries.
type HistoryPlugin struct {
	caller string
	now    func() time.Time
}

func NewHistoryPlugin() *HistoryPlugin {
	return &HistoryPlugin{now: time.Now}
}

func (p *HistoryPlugin) Init(ctx *WorkflowContext) error {
	p.caller = ctx.Caller
	return nil
}

func (p *HistoryPlugin) Run(workitem, event *document.ItemCollection) (*document.ItemCollection, error) {
	comment := event.GetItemValueString(itemHistoryLog)
	if comment == "" {
		return workitem, nil
	}
	now := p.now()
	comment = text.Adapt(comment, workitem, now)

	entry := fmt.Sprintf("%s|%s|%s", now.UTC().Format(time.RFC3339), p.caller, comment)
	history := append(workitem.GetItemValueStringList(itemHistory), entry)

	if max := event.GetItemValueInteger(itemHistoryLength); max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	return workitem, workitem.ReplaceItemValue(itemHistory, history)
}

func (p *HistoryPlugin) Close(rollback bool) error {
	return nil
}
