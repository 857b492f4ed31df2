package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopExecute(ctx context.Context, args map[string]any) (string, error) {
	return "ok", nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	err := r.Register(&Tool{
		Name:     "sample",
		Category: CategoryGeneral,
		Execute:  noopExecute,
	})
	require.NoError(t, err)

	assert.True(t, r.Has("sample"))
	assert.NotNil(t, r.Get("sample"))
	assert.Nil(t, r.Get("absent"))
	assert.Equal(t, 1, r.Count())
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	err := r.Register(&Tool{Name: "", Execute: noopExecute})
	assert.ErrorIs(t, err, ErrToolNameEmpty)

	err = r.Register(&Tool{Name: "no-exec"})
	assert.ErrorIs(t, err, ErrToolExecuteNil)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	tool := &Tool{Name: "dup", Execute: noopExecute}

	require.NoError(t, r.Register(tool))
	err := r.Register(tool)
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)
}

func TestMustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{Name: "once", Execute: noopExecute})

	assert.Panics(t, func() {
		r.MustRegister(&Tool{Name: "once", Execute: noopExecute})
	})
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{Name: "zeta", Execute: noopExecute})
	r.MustRegister(&Tool{Name: "alpha", Execute: noopExecute})

	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

func TestGetByCategory(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{Name: "m1", Category: CategoryMath, Execute: noopExecute})
	r.MustRegister(&Tool{Name: "v1", Category: CategoryVisual, Execute: noopExecute})

	math := r.GetByCategory(CategoryMath)
	require.Len(t, math, 1)
	assert.Equal(t, "m1", math[0].Name)
	assert.Empty(t, r.GetByCategory(CategoryNarrative))
}

func TestBuiltinsRegistered(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	assert.Equal(t, 3, r.Count())
	for _, name := range []string{MathToolName, VisualToolName, NarrativeToolName} {
		assert.True(t, r.Has(name), name)
	}
}

func TestDefinitions(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	defs := r.Definitions(MathToolName, "absent", NarrativeToolName)
	require.Len(t, defs, 2)
	assert.Equal(t, MathToolName, defs[0].Name)

	schema := defs[0].InputSchema
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t, []string{"equations", "definitions", "interpretation"}, schema["required"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "typical_values")
}

func TestBuiltinEchoValidatesRequired(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	tool := r.Get(NarrativeToolName)

	_, err := tool.Execute(context.Background(), map[string]any{
		"concept_order": []any{"a"},
	})
	assert.ErrorIs(t, err, ErrMissingRequiredArg)

	out, err := tool.Execute(context.Background(), map[string]any{
		"concept_order":  []any{"a", "b"},
		"verbose_prompt": "the journey",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "verbose_prompt")
}
