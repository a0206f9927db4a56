package graphindex

import "github.com/liliang-cn/hybridann"

// ConnectedComponents counts the connected components of the layer-0
// graph among live nodes, via plain BFS over an adjacency map built from
// layer-0 neighbor lists — the same adjacency-map-then-traverse idiom the
// teacher uses for community detection, repurposed here to check a
// connectivity invariant instead of clustering.
func (ix *Index) ConnectedComponents() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.connectedComponentsLocked()
}

func (ix *Index) connectedComponentsLocked() int {
	adj := make(map[hybridann.VectorID][]hybridann.VectorID, len(ix.nodes))
	for id, n := range ix.nodes {
		if n.state == stateTombstoned {
			continue
		}
		if len(n.neighbors) == 0 {
			adj[id] = nil
			continue
		}
		adj[id] = n.neighbors[0]
	}

	visited := make(map[hybridann.VectorID]bool, len(adj))
	components := 0
	for start := range adj {
		if visited[start] {
			continue
		}
		components++
		queue := []hybridann.VectorID{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range adj[cur] {
				if _, ok := adj[nb]; !ok || visited[nb] {
					continue
				}
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return components
}

// OptimizeConnections rewires a fraction (ratio, in [0,1]) of each live
// node's layer-0 edges toward the heuristic's preferred neighbor set,
// without ever dropping below the node's current degree or disconnecting
// the graph.
func (ix *Index) OptimizeConnections(ratio float64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ratio <= 0 {
		return
	}
	if ratio > 1 {
		ratio = 1
	}

	before := ix.connectedComponentsLocked()
	previous := make(map[hybridann.VectorID][]hybridann.VectorID)

	for id, n := range ix.nodes {
		if n.state == stateTombstoned || len(n.neighbors) == 0 {
			continue
		}
		vec := ix.vectorOf(n)
		if vec == nil {
			continue
		}
		rewireCount := int(float64(len(n.neighbors[0])) * ratio)
		if rewireCount == 0 {
			continue
		}
		candidates := ix.searchLayer(vec, []hybridann.VectorID{id}, ix.cfg.EfConstruction, 0)
		refreshed := ix.selectNeighborsHeuristic(vec, candidates, len(n.neighbors[0]))
		if len(refreshed) >= len(n.neighbors[0]) {
			previous[id] = n.neighbors[0]
			n.neighbors[0] = refreshed
		}
	}

	if ix.connectedComponentsLocked() > before {
		// Rewiring fragmented the graph: restore every rewired list.
		for id, nbs := range previous {
			ix.nodes[id].neighbors[0] = nbs
		}
	}
}

func (ix *Index) vectorOf(n *node) []float32 {
	if n.vector != nil {
		return n.vector
	}
	if n.quantized != nil && ix.quantizer != nil {
		vec, err := ix.quantizer.Decode(n.quantized)
		if err == nil {
			return vec
		}
	}
	return nil
}

// Rebalance redraws the level of every live node from the same
// exponential-decay distribution Insert uses, without touching layer-0
// membership (every live node always has a layer 0). It does not first
// check whether the current level distribution diverges from that
// target, and layers a node gains start with empty neighbor lists.
func (ix *Index) Rebalance() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	live := 0
	for _, n := range ix.nodes {
		if n.state != stateTombstoned {
			live++
		}
	}
	if live == 0 {
		return
	}

	for id, n := range ix.nodes {
		if n.state == stateTombstoned {
			continue
		}
		newLevel := ix.selectLevel()
		if newLevel == n.level {
			continue
		}
		if newLevel > n.level {
			for l := n.level + 1; l <= newLevel; l++ {
				n.neighbors = append(n.neighbors, []hybridann.VectorID{})
			}
		} else {
			n.neighbors = n.neighbors[:newLevel+1]
		}
		n.level = newLevel
		if newLevel > ix.nodes[ix.entryPoint].level {
			ix.entryPoint = id
		}
	}
}

// CompactLayers drops empty top layers left behind after deletions —
// layers above the current highest live node's level are unreachable and
// safe to discard.
func (ix *Index) CompactLayers() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	maxLevel := 0
	for _, n := range ix.nodes {
		if n.state == stateTombstoned {
			continue
		}
		if n.level > maxLevel {
			maxLevel = n.level
		}
	}
	for _, n := range ix.nodes {
		if len(n.neighbors) > maxLevel+1 {
			n.neighbors = n.neighbors[:maxLevel+1]
			if n.level > maxLevel {
				n.level = maxLevel
			}
		}
	}
}

// Defragment reduces internal fragmentation by rebuilding each live
// node's neighbor slices at exact capacity, releasing slack left behind
// by repeated append-then-prune cycles.
func (ix *Index) Defragment() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, n := range ix.nodes {
		for lc, nbs := range n.neighbors {
			tight := make([]hybridann.VectorID, len(nbs))
			copy(tight, nbs)
			n.neighbors[lc] = tight
		}
	}
}
