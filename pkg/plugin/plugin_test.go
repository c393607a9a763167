package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/document"
)

func TestUniqueList(t *testing.T) {
	assert.Equal(t, []string{"joe", "sam"}, UniqueList([]string{"joe", "sam", "joe", "", " "}))
	assert.Empty(t, UniqueList(nil))
}

func TestMergeFieldList(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("namteam", []any{"anna", "ben"}))

	values := MergeFieldList(workitem, []string{"joe"}, []string{"namteam", "[guest,audit]", "missing"})
	assert.Equal(t, []string{"joe", "anna", "ben", "guest", "audit"}, values)
}

func TestRegistryOrder(t *testing.T) {
	registry := NewRegistry()
	history := NewHistoryPlugin()
	substitution := NewSubstitutionPlugin()

	require.NoError(t, registry.Register("substitution", substitution))
	require.NoError(t, registry.Register("history", history))
	require.Error(t, registry.Register("history", history))

	assert.Equal(t, []string{"substitution", "history"}, registry.Names())

	chain := registry.Chain()
	require.Len(t, chain, 2)
	assert.Same(t, Plugin(substitution), chain[0])
	assert.Same(t, Plugin(history), chain[1])

	p, ok := registry.Get("history")
	require.True(t, ok)
	assert.Same(t, Plugin(history), p)
}

func TestHistoryPluginAppendsEntry(t *testing.T) {
	p := NewHistoryPlugin()
	p.now = func() time.Time { return time.Date(2026, time.August, 24, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, p.Init(&WorkflowContext{Caller: "anna"}))

	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("txtname", "millsite"))
	event := document.New()
	require.NoError(t, event.SetItemValue("txtworkflowhistorylog", "submitted <itemvalue>txtname</itemvalue>"))

	_, err := p.Run(workitem, event)
	require.NoError(t, err)

	history := workitem.GetItemValueStringList("txtworkflowhistory")
	require.Len(t, history, 1)
	assert.Equal(t, "2026-08-24T10:00:00Z|anna|submitted millsite", history[0])
}

func TestHistoryPluginCapsLength(t *testing.T) {
	p := NewHistoryPlugin()
	require.NoError(t, p.Init(&WorkflowContext{Caller: "anna"}))

	workitem := document.New()
	event := document.New()
	require.NoError(t, event.SetItemValue("txtworkflowhistorylog", "step"))
	require.NoError(t, event.SetItemValue("numworkflowhistorylength", 2))

	for i := 0; i < 4; i++ {
		_, err := p.Run(workitem, event)
		require.NoError(t, err)
	}
	assert.Len(t, workitem.GetItemValueStringList("txtworkflowhistory"), 2)
}

func TestHistoryPluginSkipsWithoutComment(t *testing.T) {
	p := NewHistoryPlugin()
	require.NoError(t, p.Init(&WorkflowContext{Caller: "anna"}))

	workitem := document.New()
	_, err := p.Run(workitem, document.New())
	require.NoError(t, err)
	assert.False(t, workitem.HasItem("txtworkflowhistory"))
}

func TestSubstitutionPluginWritesSummary(t *testing.T) {
	p := NewSubstitutionPlugin()
	require.NoError(t, p.Init(&WorkflowContext{}))

	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("txtname", "millsite"))
	event := document.New()
	require.NoError(t, event.SetItemValue("txtworkflowsummary", "Ticket: <itemvalue>txtname</itemvalue>"))
	require.NoError(t, event.SetItemValue("txtmailsubject", "[<itemvalue>txtname</itemvalue>] update"))

	_, err := p.Run(workitem, event)
	require.NoError(t, err)

	assert.Equal(t, "Ticket: millsite", workitem.GetItemValueString("$workflowsummary"))
	assert.Equal(t, "[millsite] update", event.GetItemValueString("txtmailsubject"))
}
