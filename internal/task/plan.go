package task

import (
	"fmt"
	"strings"
)

// Node is one vertex of a compiled plan.
type Node struct {
	ID int
	// Name is the registered name, or a derived label such as "fetch[1]"
	// for inline children.
	Name     string
	Named    bool
	Kind     Kind
	Children []int
	body     Body
}

// Plan is a validated, acyclic task graph rooted at one requested task.
// Nodes shared by several parents appear once.
type Plan struct {
	Root  int
	nodes []Node
}

// Len returns the number of distinct nodes.
func (p *Plan) Len() int { return len(p.nodes) }

// Node returns the node with the given id.
func (p *Plan) Node(id int) Node { return p.nodes[id] }

// Walk visits the plan depth-first in declaration order. repeat is true when
// a shared node is reached again; its children are not visited twice.
func (p *Plan) Walk(fn func(depth int, n Node, repeat bool)) {
	seen := make([]bool, len(p.nodes))
	var visit func(id, depth int)
	visit = func(id, depth int) {
		n := p.nodes[id]
		if seen[id] {
			fn(depth, n, true)
			return
		}
		seen[id] = true
		fn(depth, n, false)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(p.Root, 0)
}

func (p *Plan) String() string {
	var b strings.Builder
	p.Walk(func(depth int, n Node, repeat bool) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Name)
		if n.Kind != KindFunc {
			fmt.Fprintf(&b, " (%s)", n.Kind)
		}
		if repeat {
			b.WriteString(" [shared]")
		}
		b.WriteByte('\n')
	})
	return b.String()
}

// Compile resolves name and everything it references into a Plan. Unknown
// names and cycles are reported here, before any task body can run.
func Compile(reg *Registry, name string) (*Plan, error) {
	c := &compiler{
		reg:       reg,
		byDef:     map[*def]int{},
		byName:    map[string]int{},
		resolving: map[string]bool{},
		active:    map[*def]string{},
	}
	root, err := c.named(name, "")
	if err != nil {
		return nil, err
	}
	return &Plan{Root: root, nodes: c.nodes}, nil
}

type compiler struct {
	reg       *Registry
	nodes     []Node
	byDef     map[*def]int
	byName    map[string]int
	resolving map[string]bool
	// active maps composites still being compiled to the name that owns them.
	active map[*def]string
	stack  []string
}

func (c *compiler) named(name, from string) (int, error) {
	if id, ok := c.byName[name]; ok {
		return id, nil
	}
	if c.resolving[name] {
		return 0, &CycleError{Path: c.cyclePath(name)}
	}
	ref, err := c.reg.Resolve(name)
	if err != nil {
		return 0, &UnknownTaskError{Name: name, From: from}
	}

	c.resolving[name] = true
	c.stack = append(c.stack, name)
	id, err := c.compile(ref, name, true)
	c.stack = c.stack[:len(c.stack)-1]
	delete(c.resolving, name)
	if err != nil {
		return 0, err
	}
	c.byName[name] = id
	return id, nil
}

func (c *compiler) cyclePath(name string) []string {
	for i, n := range c.stack {
		if n == name {
			path := append([]string(nil), c.stack[i:]...)
			return append(path, name)
		}
	}
	return []string{name, name}
}

func (c *compiler) owner() string {
	if len(c.stack) == 0 {
		return ""
	}
	return c.stack[len(c.stack)-1]
}

func (c *compiler) compile(ref Ref, label string, named bool) (int, error) {
	d := ref.def
	if d == nil {
		return 0, fmt.Errorf("%s: %w", label, ErrNilBody)
	}
	if d.kind == kindName {
		return c.named(d.name, c.owner())
	}
	if owner, ok := c.active[d]; ok {
		return 0, &CycleError{Path: c.cyclePath(owner)}
	}
	if id, ok := c.byDef[d]; ok {
		return id, nil
	}
	if d.kind == KindFunc && d.body == nil {
		return 0, fmt.Errorf("%s: %w", label, ErrNilBody)
	}

	id := len(c.nodes)
	// The DependsOn wrapper stays anonymous; its body carries the task name.
	c.nodes = append(c.nodes, Node{ID: id, Name: label, Named: named && !d.deps, Kind: d.kind, body: d.body})
	c.byDef[d] = id
	c.active[d] = c.owner()
	defer delete(c.active, d)

	children := make([]int, 0, len(d.children))
	for i, child := range d.children {
		childLabel, childNamed := fmt.Sprintf("%s[%d]", label, i), false
		if d.deps && i == 1 {
			childLabel, childNamed = label, named
		}
		cid, err := c.compile(child, childLabel, childNamed)
		if err != nil {
			return 0, err
		}
		children = append(children, cid)
	}
	c.nodes[id].Children = children
	return id, nil
}
