package model

import (
	"encoding/xml"
	"strings"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/types"
)

// The parser consumes BPMN 2.0 XML carrying the engine's extension
// attributes: a task element must set numprocessid and a workflow group, an
// intermediateCatchEvent must set numprocessid (its source task),
// numactivityid (its event id) and numnextprocessid (its successor task).
// Extension items are <item name="..."><value>...</value></item> children;
// dataObject children carry their payload as literal text. Sequence flows
// wire events into gateways and gateways into tasks.

type xmlDefinitions struct {
	XMLName xml.Name   `xml:"definitions"`
	Process xmlProcess `xml:"process"`
}

type xmlProcess struct {
	ID                string        `xml:"id,attr"`
	Name              string        `xml:"name,attr"`
	Extension         xmlExtension  `xml:"extensionElements"`
	Tasks             []xmlTask     `xml:"task"`
	Events            []xmlEvent    `xml:"intermediateCatchEvent"`
	ExclusiveGateways []xmlGateway  `xml:"exclusiveGateway"`
	InclusiveGateways []xmlGateway  `xml:"inclusiveGateway"`
	Flows             []xmlFlow     `xml:"sequenceFlow"`
}

type xmlExtension struct {
	Items []xmlItem `xml:"item"`
}

type xmlItem struct {
	Name   string   `xml:"name,attr"`
	Values []string `xml:"value"`
}

type xmlTask struct {
	ID             string          `xml:"id,attr"`
	Name           string          `xml:"name,attr"`
	ProcessID      int             `xml:"numprocessid,attr"`
	WorkflowGroup  string          `xml:"workflowgroup,attr"`
	WorkflowStatus string          `xml:"workflowstatus,attr"`
	Extension      xmlExtension    `xml:"extensionElements"`
	DataObjects    []xmlDataObject `xml:"dataObject"`
}

type xmlEvent struct {
	ID            string          `xml:"id,attr"`
	Name          string          `xml:"name,attr"`
	ProcessID     int             `xml:"numprocessid,attr"`
	ActivityID    int             `xml:"numactivityid,attr"`
	NextProcessID int             `xml:"numnextprocessid,attr"`
	FollowUpID    int             `xml:"numfollowupactivityid,attr"`
	Extension     xmlExtension    `xml:"extensionElements"`
	DataObjects   []xmlDataObject `xml:"dataObject"`
}

type xmlGateway struct {
	ID      string `xml:"id,attr"`
	Name    string `xml:"name,attr"`
	Default string `xml:"default,attr"`
}

type xmlFlow struct {
	ID        string `xml:"id,attr"`
	SourceRef string `xml:"sourceRef,attr"`
	TargetRef string `xml:"targetRef,attr"`
	Condition string `xml:"conditionExpression"`
}

type xmlDataObject struct {
	Name    string `xml:"name,attr"`
	Payload string `xml:",chardata"`
}

// Parse reads BPMN XML bytes and builds a validated Model. The model
// version is taken from the process extension item
// 'txtworkflowmodelversion'.
func Parse(data []byte) (*Model, error) {
	var defs xmlDefinitions
	if err := xml.Unmarshal(data, &defs); err != nil {
		return nil, types.WrapWorkflowError("model", types.CodeInvalidModel, "cannot parse BPMN document", err)
	}

	version := extensionValue(defs.Process.Extension, "txtworkflowmodelversion")
	if version == "" {
		return nil, types.NewWorkflowError("model", types.CodeInvalidModel,
			"missing model version item 'txtworkflowmodelversion'")
	}
	m := NewModel(version)

	// element id -> resolved node, needed to wire sequence flows
	taskByElement := make(map[string]*Task)
	eventByElement := make(map[string]*Event)

	for _, xt := range defs.Process.Tasks {
		if xt.ProcessID == 0 {
			return nil, types.NewWorkflowError("model", types.CodeInvalidModel,
				"task '"+xt.ID+"' is missing numprocessid")
		}
		group := xt.WorkflowGroup
		if group == "" {
			group = defs.Process.Name
		}
		if group == "" {
			return nil, types.NewWorkflowError("model", types.CodeInvalidModel,
				"task '"+xt.ID+"' is missing a workflow group")
		}
		task := &Task{
			ID:             xt.ProcessID,
			Name:           xt.Name,
			WorkflowGroup:  group,
			WorkflowStatus: xt.WorkflowStatus,
			Items:          extensionItems(xt.Extension),
			DataObjects:    dataObjects(xt.DataObjects),
		}
		if task.WorkflowStatus == "" {
			task.WorkflowStatus = xt.Name
		}
		if err := m.AddTask(task); err != nil {
			return nil, err
		}
		taskByElement[xt.ID] = task
	}

	for _, xe := range defs.Process.Events {
		if xe.ProcessID == 0 || xe.ActivityID == 0 {
			return nil, types.NewWorkflowError("model", types.CodeInvalidModel,
				"event '"+xe.ID+"' is missing numprocessid or numactivityid")
		}
		event := &Event{
			TaskID:          xe.ProcessID,
			EventID:         xe.ActivityID,
			Name:            xe.Name,
			NextTaskID:      xe.NextProcessID,
			FollowUpEventID: xe.FollowUpID,
			Items:           extensionItems(xe.Extension),
			DataObjects:     dataObjects(xe.DataObjects),
		}
		if err := m.AddEvent(event); err != nil {
			return nil, err
		}
		eventByElement[xe.ID] = event
	}

	gateways := make(map[string]*xmlGateway)
	kinds := make(map[string]GatewayKind)
	for i := range defs.Process.ExclusiveGateways {
		g := &defs.Process.ExclusiveGateways[i]
		gateways[g.ID] = g
		kinds[g.ID] = GatewayConditional
	}
	for i := range defs.Process.InclusiveGateways {
		g := &defs.Process.InclusiveGateways[i]
		gateways[g.ID] = g
		kinds[g.ID] = GatewaySplit
	}

	for id, xg := range gateways {
		gateway := &Gateway{ID: id, Kind: kinds[id]}
		for _, flow := range defs.Process.Flows {
			if flow.SourceRef != id {
				continue
			}
			edge := Edge{Script: strings.TrimSpace(flow.Condition)}
			if target, ok := taskByElement[flow.TargetRef]; ok {
				edge.TargetTaskID = target.ID
			} else if _, ok := gateways[flow.TargetRef]; ok {
				edge.TargetGatewayID = flow.TargetRef
			} else {
				return nil, types.NewWorkflowError("model", types.CodeInvalidModel,
					"flow '"+flow.ID+"' targets unknown element '"+flow.TargetRef+"'")
			}
			switch gateway.Kind {
			case GatewayConditional:
				edge.Else = edge.Script == ""
			case GatewaySplit:
				edge.Primary = xg.Default == flow.ID
			}
			gateway.Edges = append(gateway.Edges, edge)
		}
		if gateway.Kind == GatewaySplit && len(gateway.Edges) > 0 && xg.Default == "" {
			gateway.Edges[0].Primary = true
		}
		if err := m.AddGateway(gateway); err != nil {
			return nil, err
		}
	}

	// wire events into gateways via their outgoing flows
	for _, flow := range defs.Process.Flows {
		event, ok := eventByElement[flow.SourceRef]
		if !ok {
			continue
		}
		if _, isGateway := gateways[flow.TargetRef]; isGateway {
			event.GatewayID = flow.TargetRef
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func extensionValue(ext xmlExtension, name string) string {
	for _, item := range ext.Items {
		if strings.EqualFold(item.Name, name) && len(item.Values) > 0 {
			return strings.TrimSpace(item.Values[0])
		}
	}
	return ""
}

func extensionItems(ext xmlExtension) *document.ItemCollection {
	items := document.New()
	for _, item := range ext.Items {
		values := make([]any, 0, len(item.Values))
		for _, v := range item.Values {
			values = append(values, strings.TrimSpace(v))
		}
		// extension items are opaque strings; invalid names are skipped
		_ = items.SetItemValue(item.Name, values)
	}
	return items
}

func dataObjects(objects []xmlDataObject) map[string]string {
	if len(objects) == 0 {
		return nil
	}
	out := make(map[string]string, len(objects))
	for _, obj := range objects {
		out[obj.Name] = strings.TrimSpace(obj.Payload)
	}
	return out
}
