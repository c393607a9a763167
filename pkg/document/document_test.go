package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetItemValueNormalization tests that writes are normalized into
// value lists of basic types
func TestSetItemValueNormalization(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		value    any
		expected []any
	}{
		{
			name:     "single string becomes singleton list",
			value:    "hello",
			expected: []any{"hello"},
		},
		{
			name:     "string slice is flattened",
			value:    []string{"a", "b"},
			expected: []any{"a", "b"},
		},
		{
			name:     "int32 is widened to int",
			value:    int32(7),
			expected: []any{7},
		},
		{
			name:     "float32 is widened to float64",
			value:    float32(1.5),
			expected: []any{1.5},
		},
		{
			name:     "timestamp is normalized to UTC instant",
			value:    now,
			expected: []any{now.UTC()},
		},
		{
			name:     "nil entries are dropped from lists",
			value:    []any{"a", nil, "b"},
			expected: []any{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := New()
			require.NoError(t, doc.SetItemValue("item", tt.value))
			assert.Equal(t, tt.expected, doc.GetItemValue("item"))
		})
	}
}

func TestSetItemValueRejectsNonBasicTypes(t *testing.T) {
	doc := New()
	err := doc.SetItemValue("bad", struct{ X int }{1})
	assert.Error(t, err)

	err = doc.SetItemValue("bad", make(chan int))
	assert.Error(t, err)
}

func TestItemNamesAreCaseFolded(t *testing.T) {
	doc := New()
	require.NoError(t, doc.SetItemValue("  SubJect ", "hello"))

	assert.Equal(t, "hello", doc.GetItemValueString("subject"))
	assert.Equal(t, "hello", doc.GetItemValueString("SUBJECT"))
	assert.True(t, doc.HasItem("Subject"))
}

func TestSetItemValueNilRemovesItem(t *testing.T) {
	doc := New()
	require.NoError(t, doc.SetItemValue("a", "value"))
	require.NoError(t, doc.SetItemValue("a", nil))
	assert.False(t, doc.HasItem("a"))
}

func TestAppendItemValueUnique(t *testing.T) {
	doc := New()
	require.NoError(t, doc.AppendItemValueUnique("team", []string{"anna", "tom"}))
	require.NoError(t, doc.AppendItemValueUnique("team", []string{"tom", "", "eddy"}))

	assert.Equal(t, []string{"anna", "tom", "eddy"}, doc.GetItemValueStringList("team"))
}

func TestTypedGetterCoercion(t *testing.T) {
	doc := New()
	require.NoError(t, doc.SetItemValue("count", "42"))
	require.NoError(t, doc.SetItemValue("rate", 3))
	require.NoError(t, doc.SetItemValue("flag", "true"))

	assert.Equal(t, 42, doc.GetItemValueInteger("count"))
	assert.Equal(t, int64(42), doc.GetItemValueLong("count"))
	assert.Equal(t, 3.0, doc.GetItemValueDouble("rate"))
	assert.True(t, doc.GetItemValueBoolean("flag"))
	assert.Equal(t, "", doc.GetItemValueString("missing"))
	assert.Equal(t, 0, doc.GetItemValueInteger("missing"))
}

// TestCloneIsolation verifies that mutating nested structures on a clone
// leaves the source untouched
func TestCloneIsolation(t *testing.T) {
	doc := New()
	require.NoError(t, doc.SetItemValue("nested", map[string]any{
		"inner": []string{"a", "b"},
	}))
	require.NoError(t, doc.SetItemValue("data", []byte{1, 2, 3}))

	clone := doc.Clone()
	assert.True(t, clone.Equals(doc))

	// mutate clone's nested map and byte slice
	nested := clone.GetItemValue("nested")[0].(map[string][]any)
	nested["inner"][0] = "mutated"
	clone.GetItemValue("data")[0].([]byte)[0] = 99

	original := doc.GetItemValue("nested")[0].(map[string][]any)
	assert.Equal(t, "a", original["inner"][0])
	assert.Equal(t, byte(1), doc.GetItemValue("data")[0].([]byte)[0])
	assert.False(t, clone.Equals(doc))
}

func TestDeprecatedTaskIDAlias(t *testing.T) {
	// a workitem carrying only the deprecated $processid is still readable
	doc := New()
	require.NoError(t, doc.SetItemValue("$processid", 100))
	assert.Equal(t, 100, doc.TaskID())
	// the read heals the canonical item
	assert.Equal(t, 100, doc.GetItemValueInteger("$taskid"))

	// SetTaskID mirrors the deprecated item
	doc.SetTaskID(200)
	assert.Equal(t, 200, doc.GetItemValueInteger("$processid"))
}

func TestDeprecatedEventIDAlias(t *testing.T) {
	doc := New()
	require.NoError(t, doc.SetItemValue("$activityid", 10))
	assert.Equal(t, 10, doc.EventID())

	// mirror happens only while the deprecated item is present
	doc.SetEventID(20)
	assert.Equal(t, 20, doc.GetItemValueInteger("$activityid"))

	fresh := New()
	fresh.SetEventID(30)
	assert.False(t, fresh.HasItem("$activityid"))
}

func TestNameOwnerAliasMirror(t *testing.T) {
	doc := New()
	require.NoError(t, doc.SetItemValue("name", "invoice-4711"))
	assert.Equal(t, "invoice-4711", doc.GetItemValueString("txtname"))

	require.NoError(t, doc.SetItemValue("$owner", []string{"anna"}))
	assert.Equal(t, []string{"anna"}, doc.GetItemValueStringList("namowner"))
}

func TestEventQueuesFollowUps(t *testing.T) {
	doc := New()
	doc.Event(10)
	assert.Equal(t, 10, doc.EventID())

	// a second event while one is pending goes to the follow-up queue
	doc.Event(20)
	assert.Equal(t, 10, doc.EventID())
	assert.Equal(t, []int{20}, doc.GetItemValueIntegerList("$activityidlist"))
}

func TestJSONCodecRoundTrip(t *testing.T) {
	stamp := time.Date(2026, 4, 12, 9, 30, 0, 0, time.UTC)

	doc := New()
	require.NoError(t, doc.SetItemValue("subject", "order"))
	require.NoError(t, doc.SetItemValue("amount", int64(120000)))
	require.NoError(t, doc.SetItemValue("rate", 0.19))
	require.NoError(t, doc.SetItemValue("approved", true))
	require.NoError(t, doc.SetItemValue("due", stamp))
	require.NoError(t, doc.SetItemValue("payload", []byte{0xde, 0xad}))
	require.NoError(t, doc.SetItemValue("nested", map[string]any{"k": []string{"x", "y"}}))

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	restored := New()
	require.NoError(t, json.Unmarshal(data, restored))

	assert.True(t, restored.Equals(doc))
	// exact types survive the round trip
	assert.IsType(t, int64(0), restored.GetItemValue("amount")[0])
	assert.IsType(t, time.Time{}, restored.GetItemValue("due")[0])
	assert.IsType(t, []byte{}, restored.GetItemValue("payload")[0])
	assert.Equal(t, stamp, restored.GetItemValueDate("due"))
}
