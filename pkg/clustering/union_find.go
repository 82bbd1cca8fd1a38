package clustering

// unionFind is a disjoint-set forest over string ids with path compression and union by rank
type unionFind struct {
	index  map[string]int
	ids    []string
	parent []int
	rank   []int
}

func newUnionFind() *unionFind {
	return &unionFind{index: make(map[string]int)}
}

func (u *unionFind) add(id string) int {
	if i, ok := u.index[id]; ok {
		return i
	}
	i := len(u.ids)
	u.index[id] = i
	u.ids = append(u.ids, id)
	u.parent = append(u.parent, i)
	u.rank = append(u.rank, 0)
	return i
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(u.add(a)), u.find(u.add(b))
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// groups returns the members of every set, keyed by root
func (u *unionFind) groups() map[int][]string {
	out := make(map[int][]string)
	for i, id := range u.ids {
		root := u.find(i)
		out[root] = append(out[root], id)
	}
	return out
}
