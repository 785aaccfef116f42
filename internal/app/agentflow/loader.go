package agentflow

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// graphFile is the YAML shape of a graph definition:
//
//	entry: greetAgent
//	safety: safetyAgent
//	agents:
//	  - name: greetAgent
//	    description: ...
//	    instructions: ...
//	    tools: [fetchUserProfile, fetchHistoryContext]
//	    handoffs: [safetyAgent]
type graphFile struct {
	Entry  string      `yaml:"entry"`
	Safety string      `yaml:"safety"`
	Agents []agentFile `yaml:"agents"`
}

type agentFile struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Instructions string   `yaml:"instructions"`
	Voice        string   `yaml:"voice"`
	Tools        []string `yaml:"tools"`
	Handoffs     []string `yaml:"handoffs"`
}

// LoadGraph decodes a YAML graph definition. Unknown fields are rejected. All
// nodes are declared before any edge, then the usual validation applies.
func LoadGraph(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f graphFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty graph definition", domain.ErrConfiguration)
		}
		return nil, fmt.Errorf("%w: decode graph: %v", domain.ErrConfiguration, err)
	}

	b := NewBuilder()
	for _, a := range f.Agents {
		tools := make([]domain.ToolName, 0, len(a.Tools))
		for _, t := range a.Tools {
			tools = append(tools, domain.ToolName(t))
		}
		b.AddNode(Node{
			ID:           domain.AgentID(a.Name),
			Description:  a.Description,
			Instructions: a.Instructions,
			Voice:        a.Voice,
			Tools:        tools,
		})
	}
	for _, a := range f.Agents {
		for _, h := range a.Handoffs {
			b.AddEdge(domain.AgentID(a.Name), domain.AgentID(h))
		}
	}

	return b.Entry(domain.AgentID(f.Entry)).Safety(domain.AgentID(f.Safety)).Build()
}

// LoadGraphFile reads a graph definition from path.
func LoadGraphFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open graph file: %v", domain.ErrConfiguration, err)
	}
	defer f.Close()
	return LoadGraph(f)
}
