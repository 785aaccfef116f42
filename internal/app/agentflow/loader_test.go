package agentflow_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

const haikuGraph = `
entry: greeter
safety: safety
agents:
  - name: greeter
    description: Agent that greets the user
    voice: sage
    tools: [fetchHistoryContext]
    handoffs: [haikuWriter, safety]
  - name: haikuWriter
    description: Agent that writes haikus
    tools: [fetchHistoryContext]
    handoffs: [safety]
  - name: safety
    tools: [fetchUserProfile, updateProgress]
`

func TestLoadGraph(t *testing.T) {
	g, err := agentflow.LoadGraph(strings.NewReader(haikuGraph))
	require.NoError(t, err)

	assert.Equal(t, domain.AgentID("greeter"), g.EntryPoint().ID)
	assert.True(t, g.CanHandoff("greeter", "haikuWriter"))
	assert.False(t, g.CanHandoff("haikuWriter", "greeter"))
	assert.NoError(t, g.Authorize("safety", domain.ToolAppendProgress))
	assert.ErrorIs(t, g.Authorize("haikuWriter", domain.ToolAppendProgress), domain.ErrToolNotAllowed)

	n, err := g.Resolve("greeter")
	require.NoError(t, err)
	assert.Equal(t, "sage", n.Voice)
}

func TestLoadGraphFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(haikuGraph), 0o600))

	g, err := agentflow.LoadGraphFile(path)
	require.NoError(t, err)
	assert.Len(t, g.Nodes(), 3)

	_, err = agentflow.LoadGraphFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoadGraphRejects(t *testing.T) {
	tests := map[string]struct {
		doc  string
		want error
	}{
		"unknown field": {
			doc:  "entry: a\nsafety: a\nagents:\n  - name: a\n    colour: blue\n",
			want: domain.ErrConfiguration,
		},
		"empty document": {
			doc:  "",
			want: domain.ErrConfiguration,
		},
		"dangling handoff": {
			doc:  "entry: a\nsafety: s\nagents:\n  - name: a\n    handoffs: [s, nowhere]\n  - name: s\n",
			want: domain.ErrConfiguration,
		},
		"no crisis path": {
			doc:  "entry: a\nsafety: s\nagents:\n  - name: a\n  - name: s\n",
			want: domain.ErrUnsafeGraph,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := agentflow.LoadGraph(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegistry(t *testing.T) {
	r, err := agentflow.DefaultRegistry()
	require.NoError(t, err)

	g, err := r.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, agentflow.AgentGreet, g.EntryPoint().ID)
	assert.Equal(t, domain.DefaultScenario, r.Scenario(""))
	assert.Equal(t, []string{domain.DefaultScenario}, r.Scenarios())

	_, err = r.Lookup("chatSupervisor")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
