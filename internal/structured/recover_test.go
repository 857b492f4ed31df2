package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverListDirectJSON(t *testing.T) {
	list, strategy, err := RecoverList(`["calculus", "linear algebra", "mechanics"]`)
	require.NoError(t, err)
	assert.Equal(t, "direct-json", strategy)
	assert.Equal(t, []string{"calculus", "linear algebra", "mechanics"}, list)
}

func TestRecoverListCodeFence(t *testing.T) {
	text := "Here are the prerequisites:\n```json\n[\"vectors\", \"limits\"]\n```\nHope that helps!"
	list, strategy, err := RecoverList(text)
	require.NoError(t, err)
	assert.Equal(t, "code-fence", strategy)
	assert.Equal(t, []string{"vectors", "limits"}, list)
}

func TestRecoverListBracketScan(t *testing.T) {
	text := `The concepts you need are ["derivatives", "integrals"] as discussed.`
	list, strategy, err := RecoverList(text)
	require.NoError(t, err)
	assert.Equal(t, "bracket-scan", strategy)
	assert.Equal(t, []string{"derivatives", "integrals"}, list)
}

func TestRecoverListQuotedStrings(t *testing.T) {
	text := `You should study "group theory" and then "topology" before this.`
	list, strategy, err := RecoverList(text)
	require.NoError(t, err)
	assert.Equal(t, "quoted-strings", strategy)
	assert.Equal(t, []string{"group theory", "topology"}, list)
}

func TestRecoverListCap(t *testing.T) {
	list, _, err := RecoverList(`["a","b","c","d","e","f","g"]`)
	require.NoError(t, err)
	assert.Len(t, list, MaxListItems)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, list)
}

func TestRecoverListUnrecoverable(t *testing.T) {
	_, _, err := RecoverList("no structure here at all")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnrecoverable)
}

func TestRecoverListStrategyOrder(t *testing.T) {
	// A reply that would satisfy multiple strategies must be claimed
	// by the earliest one.
	text := `["exact", "match"]`
	_, strategy, err := RecoverList(text)
	require.NoError(t, err)
	assert.Equal(t, ListStrategies[0].Name, strategy)
}

func TestRecoverListSkipsNonStrings(t *testing.T) {
	list, _, err := RecoverList(`["real", 42, null, "also real"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"real", "also real"}, list)
}

func TestRecoverObjectDirect(t *testing.T) {
	obj, strategy, err := RecoverObject(`{"core_concept": "fourier transform", "level": "undergraduate"}`)
	require.NoError(t, err)
	assert.Equal(t, "direct-json", strategy)
	assert.Equal(t, "fourier transform", obj["core_concept"])
}

func TestRecoverObjectCodeFence(t *testing.T) {
	text := "Sure!\n```json\n{\"domain\": \"physics\"}\n```"
	obj, strategy, err := RecoverObject(text)
	require.NoError(t, err)
	assert.Equal(t, "code-fence", strategy)
	assert.Equal(t, "physics", obj["domain"])
}

func TestRecoverObjectBraceScan(t *testing.T) {
	text := `Analysis complete: {"goal": "intuition", "nested": {"ok": true}} - done.`
	obj, strategy, err := RecoverObject(text)
	require.NoError(t, err)
	assert.Equal(t, "brace-scan", strategy)
	assert.Equal(t, "intuition", obj["goal"])
}

func TestRecoverObjectUnrecoverable(t *testing.T) {
	_, _, err := RecoverObject("nothing object shaped")
	assert.ErrorIs(t, err, ErrUnrecoverable)
}
