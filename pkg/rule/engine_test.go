package rule

import (
	"testing"
	"time"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalBooleanExpressions(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("a", 1))
	require.NoError(t, workitem.SetItemValue("b", "DE"))

	engine := NewEngine()

	tests := []struct {
		name     string
		script   string
		expected bool
	}{
		{
			name:     "bare item references",
			script:   `a == 1 && b == "DE"`,
			expected: true,
		},
		{
			name:     "bare item references not matching",
			script:   `a == 1 && b == "I"`,
			expected: false,
		},
		{
			name:     "typed accessors",
			script:   `workitem.GetItemValueDouble("a") == 1`,
			expected: true,
		},
		{
			name:     "existence check",
			script:   `workitem.HasItem("a") && !workitem.HasItem("missing")`,
			expected: true,
		},
		{
			name:     "constant expression",
			script:   "true",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.EvalBoolean(tt.script, workitem, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvalBooleanWithEventContext(t *testing.T) {
	workitem := document.New()
	event := document.New()
	require.NoError(t, event.SetItemValue("keymailinactive", "true"))

	engine := NewEngine()
	result, err := engine.EvalBoolean(`event.GetItemValueBoolean("keymailinactive")`, workitem, event)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvalBooleanErrors(t *testing.T) {
	engine := NewEngine(WithTimeout(2 * time.Second))
	workitem := document.New()

	// compile error
	_, err := engine.EvalBoolean("this is no go", workitem, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeRuleError))

	// non-boolean result
	_, err = engine.EvalBoolean(`"a string"`, workitem, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeRuleError))
}

func TestEvalScriptMergesResult(t *testing.T) {
	workitem := document.New()
	require.NoError(t, workitem.SetItemValue("amount", 250))

	engine := NewEngine()
	script := `
if workitem.GetItemValueDouble("amount") > 100 {
	result.SetItemValue("approvallevel", "manager")
}
result.SetItemValue("checked", true)
`
	require.NoError(t, engine.EvalScript(script, workitem, nil))

	assert.Equal(t, "manager", workitem.GetItemValueString("approvallevel"))
	assert.True(t, workitem.GetItemValueBoolean("checked"))
	// untouched items survive
	assert.Equal(t, 250, workitem.GetItemValueInteger("amount"))
}
