package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a Model as a Mermaid flowchart string.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	// Session overlay class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef current fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef visited fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")

	for _, node := range model.Nodes {
		if node.Status == nil {
			continue
		}
		switch {
		case node.Status.Current:
			b.WriteString(fmt.Sprintf("    class %s current\n", mermaidSafeID(node.ID)))
		case node.Status.Visited:
			b.WriteString(fmt.Sprintf("    class %s visited\n", mermaidSafeID(node.ID)))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape for its kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case NodeKindStart:
		return fmt.Sprintf("%s((%q))", id, label)
	case NodeKindQuestion:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindDecision:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindSolution:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindTest:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindCollection:
		return fmt.Sprintf("%s[/%q/]", id, label)
	default: // action
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel strips characters that break Mermaid edge labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer("|", "/", "\n", " ")
	return r.Replace(s)
}
