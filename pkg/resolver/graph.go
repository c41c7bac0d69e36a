package resolver

import (
	"github.com/Ramsey-B/clover/pkg/models"
)

type identKey struct {
	kind  models.IdentifierKind
	value string
}

// Builder collects record -> identifier edges. It is not safe for concurrent
// use; a rebuild owns one Builder.
type Builder struct {
	index map[identKey]int32
	keys  []identKey
	// distinct records per identifier, and the last record counted so a record
	// that repeats an identifier counts once
	counts     []int32
	lastRecord []int64

	recordIDs []int64
	offsets   []int32
	edges     []int32
}

func NewBuilder() *Builder {
	return &Builder{
		index:   make(map[identKey]int32),
		offsets: []int32{0},
	}
}

// Add records the identifiers of one record. Records without any identifier
// are ignored.
func (b *Builder) Add(recordID int64, email, phone *string) {
	start := len(b.edges)
	if email != nil && *email != "" {
		b.addEdge(recordID, identKey{kind: models.IdentifierEmail, value: *email})
	}
	if phone != nil && *phone != "" {
		b.addEdge(recordID, identKey{kind: models.IdentifierPhone, value: *phone})
	}
	if len(b.edges) == start {
		return
	}
	b.recordIDs = append(b.recordIDs, recordID)
	b.offsets = append(b.offsets, int32(len(b.edges)))
}

func (b *Builder) addEdge(recordID int64, key identKey) {
	idx, ok := b.index[key]
	if !ok {
		idx = int32(len(b.keys))
		b.index[key] = idx
		b.keys = append(b.keys, key)
		b.counts = append(b.counts, 1)
		b.lastRecord = append(b.lastRecord, recordID)
	} else if b.lastRecord[idx] != recordID {
		b.lastRecord[idx] = recordID
		b.counts[idx]++
	}
	b.edges = append(b.edges, idx)
}

// Records is the number of records added that carried an identifier.
func (b *Builder) Records() int {
	return len(b.recordIDs)
}

// Build freezes the graph. Only identifiers carried by at least two distinct
// records link records. A record enters the graph when it carries at least
// one of those; its other identifiers come along as unshared nodes so the
// cluster can report everything its members carry.
func (b *Builder) Build() *Graph {
	g := &Graph{offsets: []int32{0}}
	remap := make([]int32, len(b.keys))
	for i := range remap {
		remap[i] = -1
	}

	for r, recordID := range b.recordIDs {
		edges := b.edges[b.offsets[r]:b.offsets[r+1]]
		linked := false
		for _, e := range edges {
			if b.counts[e] >= 2 {
				linked = true
				break
			}
		}
		if !linked {
			continue
		}

		for _, e := range edges {
			if remap[e] < 0 {
				remap[e] = int32(len(g.nodes))
				g.nodes = append(g.nodes, Node{
					Kind:   b.keys[e].kind,
					Value:  b.keys[e].value,
					Shared: b.counts[e] >= 2,
				})
			}
			g.edges = append(g.edges, remap[e])
		}
		g.records = append(g.records, recordID)
		g.offsets = append(g.offsets, int32(len(g.edges)))
	}

	return g
}

// Node is one identifier in the graph.
type Node struct {
	Kind   models.IdentifierKind
	Value  string
	Shared bool
}

func (n Node) Identifier() models.Identifier {
	return models.Identifier{Kind: n.Kind, Value: n.Value, Shared: n.Shared}
}

// Graph is an immutable bipartite record/identifier graph. Record i carries
// nodes edges[offsets[i]:offsets[i+1]].
type Graph struct {
	nodes   []Node
	records []int64
	offsets []int32
	edges   []int32
}

func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

func (g *Graph) RecordCount() int {
	return len(g.records)
}

func (g *Graph) Node(i int32) Node {
	return g.nodes[i]
}

// RecordID returns the id of the record at index r.
func (g *Graph) RecordID(r int32) int64 {
	return g.records[r]
}

// RecordNodes returns the nodes carried by the record at index r.
func (g *Graph) RecordNodes(r int32) []int32 {
	return g.edges[g.offsets[r]:g.offsets[r+1]]
}
