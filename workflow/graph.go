package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNodeNotFound is returned when a graph mutation cannot locate its target
// node. Whether this is fatal depends on the target: the prompt, size and
// seed nodes are required by the text2image template, while a graph is
// allowed to have no LoRA loader at all.
var ErrNodeNotFound = errors.New("node not found in workflow")

// Node is one entry of an API-format workflow: a class type naming the
// node's role on the server, and its named inputs. Input values are scalars,
// [node_id, slot] connection pairs, or nested objects for composite inputs
// such as LoRA slots.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Graph is a ComfyUI API-format workflow: a mapping of node id to node.
// Node ids are stable strings assigned by whoever authored the workflow.
// Iteration follows the order the entries appeared in the source document,
// so role lookups are deterministic for identical input.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// Role selects nodes by class type. When Match is set it narrows the search
// among nodes of that class; the first node in document order that passes
// wins. The predicates for the well-known template roles are package vars
// that callers may replace if their templates diverge.
type Role struct {
	ClassType string
	Match     func(*Node) bool
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// ParseGraph reads an API-format workflow document.
func ParseGraph(r io.Reader) (*Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	g := &Graph{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ParseGraphFile reads an API-format workflow from a JSON file.
func ParseGraphFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseGraph(f)
}

// AddNode inserts or replaces a node. New ids append to the iteration order.
func (g *Graph) AddNode(id string, node *Node) {
	if g.nodes == nil {
		g.nodes = make(map[string]*Node)
	}
	if _, ok := g.nodes[id]; !ok {
		g.order = append(g.order, id)
	}
	g.nodes[id] = node
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// NodeIDs returns the node ids in document order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Len is the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// FindNode returns the first node in document order whose class type equals
// the role's and that passes its Match predicate when one is set.
func (g *Graph) FindNode(role Role) (string, *Node, error) {
	for _, id := range g.order {
		node := g.nodes[id]
		if node.ClassType != role.ClassType {
			continue
		}
		if role.Match != nil && !role.Match(node) {
			continue
		}
		return id, node, nil
	}
	return "", nil, fmt.Errorf("no %q node: %w", role.ClassType, ErrNodeNotFound)
}

// SetInputs merges the given fields into the target node's inputs,
// overwriting fields that already exist.
func (g *Graph) SetInputs(id string, inputs map[string]any) error {
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %q: %w", id, ErrNodeNotFound)
	}
	if node.Inputs == nil {
		node.Inputs = make(map[string]any, len(inputs))
	}
	for k, v := range inputs {
		node.Inputs[k] = v
	}
	return nil
}

// ReplaceInputs swaps the target node's inputs for the given map.
func (g *Graph) ReplaceInputs(id string, inputs map[string]any) error {
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %q: %w", id, ErrNodeNotFound)
	}
	node.Inputs = inputs
	return nil
}

// UnmarshalJSON decodes the workflow object while recording the order its
// keys appear in, which encoding/json's map decoding would discard.
func (g *Graph) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("workflow: document is not a JSON object")
	}

	g.nodes = make(map[string]*Node)
	g.order = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id := keyTok.(string)
		node := &Node{}
		if err := dec.Decode(node); err != nil {
			return fmt.Errorf("workflow: node %q: %w", id, err)
		}
		g.AddNode(id, node)
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON writes the nodes back out in document order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		node, err := json.Marshal(g.nodes[id])
		if err != nil {
			return nil, err
		}
		buf.Write(node)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
