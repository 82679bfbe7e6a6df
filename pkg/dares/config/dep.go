package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/heimdalr/dag"
)

// referencedRoots returns the distinct root names of the variables an
// expression uses.
func referencedRoots(expr hcl.Expression) []string {
	var roots []string
	seen := make(map[string]bool)
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots
}

// SortAttributesByDependencies orders attributes so that each one comes after
// the attributes it references. References to names outside attrs are left
// for evaluation to resolve.
func SortAttributesByDependencies(attrs hcl.Attributes) ([]*hcl.Attribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	graph := dag.NewDAG()

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := attrs[name]
		if err := graph.AddVertexByID(name, attr); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to add attribute to dependency graph",
				Detail:   fmt.Sprintf("Error adding attribute %s: %s", name, err),
				Subject:  &attr.NameRange,
			})
		}
	}

	for _, name := range names {
		attr := attrs[name]
		for _, ref := range referencedRoots(attr.Expr) {
			if _, exists := attrs[ref]; !exists {
				continue
			}
			if ref == name {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Constant %s refers to itself", name),
					Subject:  &attr.Range,
				})
				continue
			}
			if err := graph.AddEdge(ref, name); err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Cannot add dependency from %s to %s: %s", ref, name, err),
					Subject:  &attr.Range,
				})
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	visitor := &attributeVertexVisitor{}
	graph.OrderedWalk(visitor)

	return visitor.attrs, diags
}

type attributeVertexVisitor struct {
	attrs []*hcl.Attribute
}

func (v *attributeVertexVisitor) Visit(vertex dag.Vertexer) {
	_, value := vertex.Vertex()
	v.attrs = append(v.attrs, value.(*hcl.Attribute))
}
