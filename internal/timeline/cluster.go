package timeline

// unionFind tracks overlap clusters by item index.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	return u
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// assignTotalColumns sets TotalColumns to 1 + the highest column used in
// each item's overlap cluster. items must be sorted by Top.
func assignTotalColumns(items []LayoutItem) {
	uf := newUnionFind(len(items))
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			// Later items start no earlier, so none of them can reach i.
			if items[j].Top >= items[i].EndPosition {
				break
			}
			if items[i].overlaps(items[j]) {
				uf.union(i, j)
			}
		}
	}

	maxColumn := make(map[int]int, len(items))
	for i, it := range items {
		root := uf.find(i)
		if c, ok := maxColumn[root]; !ok || it.Column > c {
			maxColumn[root] = it.Column
		}
	}
	for i := range items {
		items[i].TotalColumns = maxColumn[uf.find(i)] + 1
	}
}
