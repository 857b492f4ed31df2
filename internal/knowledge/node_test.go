package knowledge

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestTree returns:
//
//	special relativity (0)
//	├── galilean relativity (1)  [FOUNDATION]
//	└── speed of light (1)
//	    └── electromagnetism (2) [FOUNDATION]
func buildTestTree() *Node {
	root := NewNode("special relativity", 0)

	galilean := NewNode("galilean relativity", 1)
	galilean.IsFoundation = true

	light := NewNode("speed of light", 1)
	em := NewNode("electromagnetism", 2)
	em.IsFoundation = true
	light.AddPrerequisite(em)

	root.AddPrerequisite(galilean)
	root.AddPrerequisite(light)
	return root
}

func TestCountNodes(t *testing.T) {
	root := buildTestTree()
	assert.Equal(t, 4, root.CountNodes())

	single := NewNode("arithmetic", 0)
	assert.Equal(t, 1, single.CountNodes())
}

func TestMaxDepth(t *testing.T) {
	root := buildTestTree()
	assert.Equal(t, 2, root.MaxDepth())
	assert.Equal(t, 0, NewNode("x", 0).MaxDepth())
}

func TestConceptsPreOrder(t *testing.T) {
	root := buildTestTree()
	want := []string{
		"special relativity",
		"galilean relativity",
		"speed of light",
		"electromagnetism",
	}
	assert.Equal(t, want, root.Concepts())
}

func TestGroupByDepth(t *testing.T) {
	root := buildTestTree()
	groups := root.GroupByDepth()

	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 1)
	assert.Len(t, groups[1], 2)
	assert.Len(t, groups[2], 1)
	assert.Equal(t, "electromagnetism", groups[2][0].Concept)

	assert.Equal(t, groups[1], root.NodesAtDepth(1))
	assert.Empty(t, root.NodesAtDepth(7))
}

func TestIsEnriched(t *testing.T) {
	n := NewNode("wave equation", 1)
	assert.False(t, n.IsEnriched())

	n.Equations = []string{`\partial_t^2 u = c^2 \nabla^2 u`}
	assert.False(t, n.IsEnriched(), "equations alone are not enough")

	n.Definitions = map[string]string{"u": "displacement field"}
	assert.True(t, n.IsEnriched())
}

func TestSetVisualDefault(t *testing.T) {
	n := NewNode("vector", 2)
	assert.False(t, n.HasVisualSpec())

	n.SetVisualDefault("interpretation", "arrow in space")
	n.SetVisualDefault("interpretation", "should not overwrite")

	require.True(t, n.HasVisualSpec())
	assert.Equal(t, "arrow in space", n.VisualSpec["interpretation"])
}

func TestJSONRoundTrip(t *testing.T) {
	root := buildTestTree()
	root.Equations = []string{"E = mc^2"}
	root.Definitions = map[string]string{"E": "energy", "m": "rest mass"}
	root.VisualSpec = map[string]any{"color_scheme": "blue on black"}
	root.Narrative = "a sixty second journey"

	data, err := root.ToJSON()
	require.NoError(t, err)

	got, err := FromJSON(data)
	require.NoError(t, err)

	if diff := cmp.Diff(root, got); diff != "" {
		t.Errorf("tree changed across serialization (-want +got):\n%s", diff)
	}
}

func TestFromJSONRejectsGarbage(t *testing.T) {
	_, err := FromJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestPrintTree(t *testing.T) {
	var sb strings.Builder
	buildTestTree().PrintTree(&sb)
	out := sb.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "- special relativity", lines[0])
	assert.Equal(t, "  - galilean relativity [FOUNDATION]", lines[1])
	assert.Equal(t, "    - electromagnetism [FOUNDATION]", lines[3])
}
