package assembler

import (
	"github.com/richinex/contextloom/intent"
	"github.com/richinex/contextloom/knowledge"
	"github.com/richinex/contextloom/workspace"
)

// Policy is the inclusion policy for one intent category. History is always
// the bounded view.
type Policy struct {
	// Catalog includes the full cached catalog fragment.
	Catalog bool
	// Workspace includes a workspace snapshot rendered in WorkspaceMode.
	Workspace     bool
	WorkspaceMode workspace.Mode
	// Retrieve runs retrieval restricted by Filter.
	Retrieve bool
	Filter   knowledge.Filter
}

// PolicyFor returns the inclusion policy for category.
//
//	question: retrieved node types and examples stand in for the catalog; no workspace
//	create:   full catalog, summarized workspace, retrieved examples and patterns
//	update:   full catalog, full workspace, no retrieval
func PolicyFor(category intent.Category) Policy {
	switch category {
	case intent.Create:
		return Policy{
			Catalog:       true,
			Workspace:     true,
			WorkspaceMode: workspace.ModeSummary,
			Retrieve:      true,
			Filter:        knowledge.Filter{Kinds: []knowledge.Kind{knowledge.KindExample, knowledge.KindPattern}},
		}
	case intent.Update:
		return Policy{
			Catalog:       true,
			Workspace:     true,
			WorkspaceMode: workspace.ModeFull,
		}
	default:
		return Policy{
			Retrieve: true,
			Filter:   knowledge.Filter{Kinds: []knowledge.Kind{knowledge.KindNodeType, knowledge.KindExample}},
		}
	}
}
