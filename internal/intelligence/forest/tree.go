package forest

import (
	"fmt"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/trees"

	"github.com/turtacn/ChemPredict/pkg/errors"
)

const leaf = -1

// Node is one exported tree node.  A numeric split sends x[Feature] <=
// Threshold to Low and the rest to High; a categorical split follows
// Branches keyed by category code.  Class is the node's majority class code:
// it answers at leaves and whenever the branch for x was never grown.  A
// child index of 0 means "no child", since children always follow their
// parent.
type Node struct {
	Feature   int         `json:"f"`
	Threshold float64     `json:"t,omitempty"`
	Low       int         `json:"lo,omitempty"`
	High      int         `json:"hi,omitempty"`
	Branches  map[int]int `json:"b,omitempty"`
	Class     int         `json:"c"`
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.Feature == leaf }

// Tree is a flat node table; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(s *Schema, x []float64) int {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Class
		}
		var next int
		switch {
		case !s.Columns[n.Feature].Numeric():
			next = n.Branches[int(x[n.Feature])]
		case x[n.Feature] <= n.Threshold:
			next = n.Low
		default:
			next = n.High
		}
		if next == 0 {
			return n.Class
		}
		i = next
	}
}

// exporter flattens golearn ID3 trees into Nodes.
type exporter struct {
	schema  *Schema
	columns map[string]int
	classes map[string]int
	values  []map[string]int
	nodes   []Node
}

func newExporter(s *Schema) *exporter {
	e := &exporter{
		schema:  s,
		columns: s.columnIndex(),
		classes: codes(s.Classes),
		values:  make([]map[string]int, len(s.Columns)),
	}
	for i, c := range s.Columns {
		e.values[i] = codes(c.Values)
	}
	return e
}

func (e *exporter) export(root *trees.DecisionTreeNode) (*Tree, error) {
	e.nodes = nil
	if _, err := e.add(root); err != nil {
		return nil, err
	}
	return &Tree{Nodes: e.nodes}, nil
}

func (e *exporter) add(n *trees.DecisionTreeNode) (int, error) {
	class, ok := e.classes[n.Class]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeTrainingFailed, "tree predicts unknown class %q", n.Class)
	}
	idx := len(e.nodes)
	e.nodes = append(e.nodes, Node{Feature: leaf, Class: class})
	if len(n.Children) == 0 || n.SplitRule == nil || n.SplitRule.SplitAttr == nil {
		return idx, nil
	}

	name := n.SplitRule.SplitAttr.GetName()
	f, ok := e.columns[name]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeTrainingFailed, "tree splits on unknown column %q", name)
	}
	node := Node{Feature: f, Class: class}

	if _, numeric := n.SplitRule.SplitAttr.(*base.FloatAttribute); numeric {
		// golearn labels the <= side "0" and the > side "1".
		node.Threshold = n.SplitRule.SplitVal
		sides := []struct {
			key string
			dst *int
		}{{"0", &node.Low}, {"1", &node.High}}
		for _, side := range sides {
			child := n.Children[side.key]
			if child == nil {
				continue
			}
			ci, err := e.add(child)
			if err != nil {
				return 0, err
			}
			*side.dst = ci
		}
	} else {
		node.Branches = make(map[int]int, len(n.Children))
		for value, child := range n.Children {
			code, ok := e.values[f][value]
			if !ok {
				return 0, errors.Newf(errors.ErrCodeTrainingFailed, "tree branches on unknown %s value %q", name, value)
			}
			ci, err := e.add(child)
			if err != nil {
				return 0, err
			}
			node.Branches[code] = ci
		}
	}
	e.nodes[idx] = node
	return idx, nil
}

func (t *Tree) validate(s *Schema, ti int) error {
	if t == nil || len(t.Nodes) == 0 {
		return errors.Newf(errors.ErrCodeArtifactCorrupt, "tree %d is empty", ti)
	}
	bad := func(ni int, what string) error {
		return errors.Newf(errors.ErrCodeArtifactCorrupt, "tree %d node %d: %s", ti, ni, what)
	}
	child := func(ni, c int) bool { return c == 0 || (c > ni && c < len(t.Nodes)) }

	for ni := range t.Nodes {
		n := &t.Nodes[ni]
		if n.Class < 0 || n.Class >= len(s.Classes) {
			return bad(ni, fmt.Sprintf("class %d out of range", n.Class))
		}
		if n.IsLeaf() {
			continue
		}
		if n.Feature < 0 || n.Feature >= len(s.Columns) {
			return bad(ni, fmt.Sprintf("feature %d out of range", n.Feature))
		}
		col := s.Columns[n.Feature]
		if col.Numeric() {
			if !child(ni, n.Low) || !child(ni, n.High) {
				return bad(ni, "child index out of range")
			}
			continue
		}
		for code, c := range n.Branches {
			if code < 0 || code >= len(col.Values) || c == 0 || !child(ni, c) {
				return bad(ni, "branch out of range")
			}
		}
	}
	return nil
}
