package memstore

// searchTree is the result of a single-source search. Every reached vertex
// has an entry in hops.
type searchTree struct {
	cost map[int64]float64
	hops map[int64]int
	prev map[int64]int64
}

func newSearchTree(source int64) searchTree {
	return searchTree{
		cost: map[int64]float64{source: 0},
		hops: map[int64]int{source: 0},
		prev: map[int64]int64{},
	}
}

// dijkstra settles vertices in cost order from source. It stops early once
// stopAt is settled; pass -1 to explore the whole component.
func (s *Store) dijkstra(source, stopAt int64) searchTree {
	tree := newSearchTree(source)
	settled := make(map[int64]bool)
	var pq minHeap
	pq.Push(source, 0)

	for pq.Len() > 0 {
		item := pq.Pop()
		if settled[item.vertex] {
			continue
		}
		settled[item.vertex] = true
		if item.vertex == stopAt {
			break
		}
		for _, a := range s.adjacency[item.vertex] {
			if settled[a.to] {
				continue
			}
			next := item.cost + a.distance
			if known, ok := tree.cost[a.to]; ok && known <= next {
				continue
			}
			tree.cost[a.to] = next
			tree.hops[a.to] = tree.hops[item.vertex] + 1
			tree.prev[a.to] = item.vertex
			pq.Push(a.to, next)
		}
	}
	return tree
}

// bfs explores up to maxHops segments from source.
func (s *Store) bfs(source int64, maxHops int) searchTree {
	tree := newSearchTree(source)
	frontier := []int64{source}
	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		var next []int64
		for _, v := range frontier {
			for _, a := range s.adjacency[v] {
				if _, seen := tree.hops[a.to]; seen {
					continue
				}
				tree.hops[a.to] = depth
				tree.cost[a.to] = float64(depth)
				tree.prev[a.to] = v
				next = append(next, a.to)
			}
		}
		frontier = next
	}
	return tree
}
