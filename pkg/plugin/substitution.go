package plugin

import (
	"time"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/text"
)

const (
	itemEventSummary  = "txtworkflowsummary"
	itemEventAbstract = "txtworkflowabstract"
	itemMailSubject   = "txtmailsubject"
	itemMailBody      = "rtfmailbody"

	itemSummary  = "$workflowsummary"
	itemAbstract = "$workflowabstract"
)

// SubstitutionPlugin resolves the template items of the processed event
// against the workitem: the event's summary and abstract templates are
// written to $workflowsummary/$workflowabstract, and the mail subject and
// body are adapted in place on the event document for a downstream mail
// transport.
type SubstitutionPlugin struct {
	now func() time.Time
}

func NewSubstitutionPlugin() *SubstitutionPlugin {
	return &SubstitutionPlugin{now: time.Now}
}

func (p *SubstitutionPlugin) Init(ctx *WorkflowContext) error {
	return nil
}

func (p *SubstitutionPlugin) Run(workitem, event *document.ItemCollection) (*document.ItemCollection, error) {
	now := p.now()

	if tmpl := event.GetItemValueString(itemEventSummary); tmpl != "" {
		if err := workitem.ReplaceItemValue(itemSummary, text.Adapt(tmpl, workitem, now)); err != nil {
			return nil, err
		}
	}
	if tmpl := event.GetItemValueString(itemEventAbstract); tmpl != "" {
		if err := workitem.ReplaceItemValue(itemAbstract, text.Adapt(tmpl, workitem, now)); err != nil {
			return nil, err
		}
	}

	for _, item := range []string{itemMailSubject, itemMailBody} {
		if tmpl := event.GetItemValueString(item); tmpl != "" {
			if err := event.ReplaceItemValue(item, text.Adapt(tmpl, workitem, now)); err != nil {
				return nil, err
			}
		}
	}
	return workitem, nil
}

func (p *SubstitutionPlugin) Close(rollback bool) error {
	return nil
}
