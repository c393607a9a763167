package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/model"
	"github.com/flowmill/flowmill/pkg/types"
)

func newTask(t *testing.T, items map[string]any) *model.Task {
	t.Helper()
	ic, err := document.FromMap(items)
	require.NoError(t, err)
	return &model.Task{ID: 300, Items: ic}
}

func newEvent(t *testing.T, items map[string]any) *model.Event {
	t.Helper()
	ic, err := document.FromMap(items)
	require.NoError(t, err)
	return &model.Event{TaskID: 100, EventID: 10, Items: ic}
}

func TestUpdateReplacesWriteAccess(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue(types.ItemWriteAccess, []any{"kevin", "julian"}))

	task := newTask(t, map[string]any{
		"keyupdateacl":      true,
		"namaddwriteaccess": []any{"joe", "sam"},
	})

	require.NoError(t, Update(workitem, newEvent(t, nil), task))

	// replacement, not merge
	assert.Equal(t, []string{"joe", "sam"}, workitem.GetItemValueStringList(types.ItemWriteAccess))
	assert.Empty(t, workitem.GetItemValueStringList(types.ItemReadAccess))
}

func TestUpdateNoFlagLeavesACLUntouched(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue(types.ItemWriteAccess, "kevin"))

	task := newTask(t, map[string]any{"namaddwriteaccess": "joe"})

	require.NoError(t, Update(workitem, newEvent(t, nil), task))
	assert.Equal(t, []string{"kevin"}, workitem.GetItemValueStringList(types.ItemWriteAccess))
}

func TestUpdateEventWinsOverTask(t *testing.T) {
	workitem := document.New()

	event := newEvent(t, map[string]any{
		"keyupdateacl":      true,
		"namaddwriteaccess": "eventwriter",
	})
	task := newTask(t, map[string]any{
		"keyupdateacl":      true,
		"namaddwriteaccess": "taskwriter",
		"namaddreadaccess":  "taskreader",
	})

	require.NoError(t, Update(workitem, event, task))

	// annotations never merge across event and task
	assert.Equal(t, []string{"eventwriter"}, workitem.GetItemValueStringList(types.ItemWriteAccess))
	assert.Empty(t, workitem.GetItemValueStringList(types.ItemReadAccess))
}

func TestUpdateResolvesFields(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("namteam", []any{"anna", "ben"}))

	task := newTask(t, map[string]any{
		"keyupdateacl":     true,
		"namaddreadaccess": "manfred",
		"keyaddreadfields": []any{"namteam", "[guest, audit]"},
	})

	require.NoError(t, Update(workitem, newEvent(t, nil), task))
	assert.Equal(t, []string{"manfred", "anna", "ben", "guest", "audit"},
		workitem.GetItemValueStringList(types.ItemReadAccess))
}

func TestUpdateNamesExpandThroughSubstitution(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("namteam", []any{"anna", "ben"}))

	task := newTask(t, map[string]any{
		"keyupdateacl":      true,
		"namaddwriteaccess": "<itemvalue>namteam</itemvalue>",
	})

	require.NoError(t, Update(workitem, newEvent(t, nil), task))
	assert.Equal(t, []string{"anna", "ben"}, workitem.GetItemValueStringList(types.ItemWriteAccess))
}

func TestUpdateDeduplicatesAndDropsEmpties(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("namteam", []any{"joe", "", "sam"}))

	task := newTask(t, map[string]any{
		"keyupdateacl":      true,
		"namaddwriteaccess": []any{"joe", " "},
		"keyaddwritefields": "namteam",
	})

	require.NoError(t, Update(workitem, newEvent(t, nil), task))
	assert.Equal(t, []string{"joe", "sam"}, workitem.GetItemValueStringList(types.ItemWriteAccess))
}

func TestUpdateIsIdempotent(t *testing.T) {
	workitem := document.New()
	task := newTask(t, map[string]any{
		"keyupdateacl":      true,
		"namaddwriteaccess": []any{"joe", "sam"},
	})
	event := newEvent(t, nil)

	require.NoError(t, Update(workitem, event, task))
	first := workitem.GetItemValueStringList(types.ItemWriteAccess)
	require.NoError(t, Update(workitem, event, task))
	assert.Equal(t, first, workitem.GetItemValueStringList(types.ItemWriteAccess))
}

func TestUpdateOwnerMirrorsLegacyItem(t *testing.T) {
	workitem := document.New()

	task := newTask(t, map[string]any{
		"keyupdateacl":      true,
		"namownershipnames": "anna",
	})

	require.NoError(t, Update(workitem, newEvent(t, nil), task))
	assert.Equal(t, []string{"anna"}, workitem.GetItemValueStringList(types.ItemOwner))
	assert.Equal(t, []string{"anna"}, workitem.GetItemValueStringList(types.ItemOwnerDeprecated))
}

func TestAddParticipant(t *testing.T) {
	workitem := document.New()

	require.NoError(t, AddParticipant(workitem, "anna"))
	require.NoError(t, AddParticipant(workitem, "ben"))
	require.NoError(t, AddParticipant(workitem, "anna"))
	require.NoError(t, AddParticipant(workitem, ""))

	assert.Equal(t, []string{"anna", "ben"}, workitem.GetItemValueStringList(types.ItemParticipants))
}
