package tools

import (
	"github.com/znerol74/call/internal/model/agent"
	"github.com/znerol74/call/internal/service/llm"
)

// Catalog is the static set of tools one session may call.
type Catalog struct {
	defs   []agent.ToolDefinition
	byName map[string]int
}

// NewCatalog indexes defs by name. Later duplicates are ignored; descriptors
// are validated for unique names before they get here.
func NewCatalog(defs []agent.ToolDefinition) Catalog {
	c := Catalog{byName: make(map[string]int, len(defs))}
	for _, d := range defs {
		if _, dup := c.byName[d.Name]; dup {
			continue
		}
		c.byName[d.Name] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c
}

// Len reports the number of tools.
func (c Catalog) Len() int { return len(c.defs) }

// Lookup finds a tool by exact name.
func (c Catalog) Lookup(name string) (agent.ToolDefinition, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return agent.ToolDefinition{}, false
	}
	return c.defs[idx], true
}

// Describe converts the catalog into generator tool specs. An empty catalog
// yields an empty slice.
func (c Catalog) Describe() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(c.defs))
	for _, d := range c.defs {
		specs = append(specs, llm.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return specs
}
