package resolver

// Component is one connected set of nodes and the records that carry them,
// both as indices into the Graph.
type Component struct {
	Nodes   []int32
	Records []int32
}

type unionFind struct {
	parent []int32
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int32, n),
		rank:   make([]uint8, n),
	}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
	}
	return uf
}

func (uf *unionFind) find(x int32) int32 {
	for uf.parent[x] != x {
		// path halving
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int32) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// Components joins the nodes of every record and returns the connected
// components in order of their first node.
func (g *Graph) Components() []Component {
	uf := newUnionFind(len(g.nodes))
	for r := range g.records {
		nodes := g.RecordNodes(int32(r))
		for _, n := range nodes[1:] {
			uf.union(nodes[0], n)
		}
	}

	slot := make(map[int32]int, len(g.nodes)/2+1)
	var comps []Component
	for n := range g.nodes {
		root := uf.find(int32(n))
		i, ok := slot[root]
		if !ok {
			i = len(comps)
			slot[root] = i
			comps = append(comps, Component{})
		}
		comps[i].Nodes = append(comps[i].Nodes, int32(n))
	}
	for r := range g.records {
		root := uf.find(g.RecordNodes(int32(r))[0])
		i := slot[root]
		comps[i].Records = append(comps[i].Records, int32(r))
	}

	return comps
}
