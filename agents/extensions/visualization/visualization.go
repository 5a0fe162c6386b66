// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package visualization renders agent graphs in the Graphviz DOT language.
package visualization

import (
	"fmt"
	"io"
	"strings"

	"github.com/nlpodyssey/agentflow/agents"
)

const (
	StartNode = "__start__"
	EndNode   = "__end__"
)

type NodeKind uint8

const (
	NodeTerminal NodeKind = iota
	NodeAgent
	NodeTool
	NodeHandoff
)

type Node struct {
	Name string
	Kind NodeKind
}

type Edge struct {
	From, To string
	// Tool edges are drawn dotted, in both directions.
	Dotted bool
}

// Graph is an ordered set of nodes and edges. Nodes are identified by name:
// adding a node twice keeps the first insertion, except that a handoff
// target later declared as an agent is promoted to an agent node.
type Graph struct {
	nodes []Node
	index map[string]int
	edges []Edge
	seen  map[Edge]struct{}
}

func NewGraph() *Graph {
	g := &Graph{
		index: make(map[string]int),
		seen:  make(map[Edge]struct{}),
	}
	g.addNode(StartNode, NodeTerminal)
	g.addNode(EndNode, NodeTerminal)
	return g
}

func (g *Graph) Nodes() []Node { return append([]Node(nil), g.nodes...) }
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// AddAgent declares an agent along with the names of its tools and handoff
// targets. The first agent added is connected to the start node; agents
// without handoffs are connected to the end node.
func (g *Graph) AddAgent(name string, tools, handoffTargets []string) {
	first := g.agentCount() == 0
	g.addNode(name, NodeAgent)
	if first {
		g.addEdge(Edge{From: StartNode, To: name})
	}
	for _, tool := range tools {
		g.addNode(tool, NodeTool)
		g.addEdge(Edge{From: name, To: tool, Dotted: true})
		g.addEdge(Edge{From: tool, To: name, Dotted: true})
	}
	for _, target := range handoffTargets {
		g.addNode(target, NodeHandoff)
		g.addEdge(Edge{From: name, To: target})
	}
	if len(handoffTargets) == 0 {
		g.addEdge(Edge{From: name, To: EndNode})
	}
}

func (g *Graph) agentCount() int {
	n := 0
	for _, node := range g.nodes {
		if node.Kind == NodeAgent {
			n++
		}
	}
	return n
}

func (g *Graph) addNode(name string, kind NodeKind) {
	if i, ok := g.index[name]; ok {
		if kind == NodeAgent && g.nodes[i].Kind == NodeHandoff {
			g.nodes[i].Kind = NodeAgent
		}
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, Node{Name: name, Kind: kind})
}

func (g *Graph) addEdge(e Edge) {
	if _, ok := g.seen[e]; ok {
		return
	}
	g.seen[e] = struct{}{}
	g.edges = append(g.edges, e)
}

// FromAgent walks the agent and, recursively, the agents it can hand off to.
// Cycles are visited once.
func FromAgent(agent *agents.Agent) *Graph {
	g := NewGraph()
	visited := make(map[string]struct{})

	var walk func(*agents.Agent)
	walk = func(a *agents.Agent) {
		if _, ok := visited[a.Name]; ok {
			return
		}
		visited[a.Name] = struct{}{}

		tools := make([]string, len(a.Tools))
		for i, tool := range a.Tools {
			tools[i] = tool.ToolName()
		}
		targets := make([]string, 0, len(a.Handoffs)+len(a.AgentHandoffs))
		for _, h := range a.Handoffs {
			targets = append(targets, h.AgentName)
		}
		for _, h := range a.AgentHandoffs {
			targets = append(targets, h.Name)
		}
		g.AddAgent(a.Name, tools, targets)

		for _, h := range a.AgentHandoffs {
			walk(h)
		}
	}
	walk(agent)
	return g
}

// WriteDOT writes the graph in the DOT language.
func (g *Graph) WriteDOT(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("digraph G {\n")
	sb.WriteString("   graph [splines=true];\n")
	sb.WriteString("   node [fontname=\"Arial\"];\n")
	sb.WriteString("   edge [penwidth=1.5];\n")
	for _, node := range g.nodes {
		_, _ = fmt.Fprintf(&sb, "%q [label=%q, %s];\n", node.Name, node.Name, nodeStyle(node.Kind))
	}
	for _, e := range g.edges {
		if e.Dotted {
			_, _ = fmt.Fprintf(&sb, "%q -> %q [style=dotted, penwidth=1.5];\n", e.From, e.To)
		} else {
			_, _ = fmt.Fprintf(&sb, "%q -> %q;\n", e.From, e.To)
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func (g *Graph) String() string {
	var sb strings.Builder
	_ = g.WriteDOT(&sb)
	return sb.String()
}

func nodeStyle(kind NodeKind) string {
	switch kind {
	case NodeTerminal:
		return "shape=ellipse, style=filled, fillcolor=lightblue, width=0.5, height=0.3"
	case NodeTool:
		return "shape=ellipse, style=filled, fillcolor=lightgreen, width=0.5, height=0.3"
	case NodeHandoff:
		return "shape=box, style=filled, style=rounded, fillcolor=lightyellow, width=1.5, height=0.8"
	default:
		return "shape=box, style=filled, fillcolor=lightyellow, width=1.5, height=0.8"
	}
}

// GetMainGraph returns the DOT source of the graph rooted at agent.
func GetMainGraph(agent *agents.Agent) string {
	return FromAgent(agent).String()
}
