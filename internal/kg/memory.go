package kg

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

const (
	// provenanceCap bounds supporting-chunk lists on nodes and edges.
	provenanceCap = 32

	// sameDocDecay damps repeated mentions of one concept inside a single
	// document: the k-th repeat contributes confidence * sameDocDecay^k.
	// Contributions from distinct documents do not damp each other, so
	// merge order across documents cannot change the final importance.
	sameDocDecay = 0.5

	stripeCount = 64
)

type memNode struct {
	Node
	docMentions map[uuid.UUID]int // prior mention count per document
	chunkRefs   map[uuid.UUID]int
}

type memEdge struct {
	Edge
	chunkRefs map[uuid.UUID]int
}

// MemoryGraph is the in-process Graph. Map membership is guarded by mu;
// mutable counters on nodes and edges are guarded by stripe locks keyed by
// canonical, so merges touching disjoint concepts do not serialize.
type MemoryGraph struct {
	log *logger.Logger

	mu         sync.RWMutex
	nodes      map[string]*memNode
	edges      map[string]*memEdge
	adj        map[string]map[string]*memEdge // canonical -> neighbor canonical -> edge
	seenChunks map[uuid.UUID]bool

	stripes [stripeCount]sync.Mutex
}

func NewMemoryGraph(log *logger.Logger) *MemoryGraph {
	return &MemoryGraph{
		log:        log.With("service", "MemoryGraph"),
		nodes:      map[string]*memNode{},
		edges:      map[string]*memEdge{},
		adj:        map[string]map[string]*memEdge{},
		seenChunks: map[uuid.UUID]bool{},
	}
}

func (g *MemoryGraph) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &g.stripes[h.Sum32()%stripeCount]
}

// edgeKey is order-independent for undirected kinds.
func edgeKey(kind, a, b string, directed bool) string {
	if !directed && b < a {
		a, b = b, a
	}
	return kind + "|" + a + "|" + b
}

type mergedMention struct {
	canonical  string
	label      string
	kind       string
	confidence float64
}

func (g *MemoryGraph) MergeChunk(ctx context.Context, obs ChunkObservation) (MergeDelta, error) {
	if err := ctx.Err(); err != nil {
		return MergeDelta{}, err
	}

	// Dedupe within the chunk: one contribution per canonical, keeping the
	// highest confidence and the first-seen label and kind.
	var mentions []mergedMention
	byKey := map[string]int{}
	for _, m := range obs.Mentions {
		key := Canonicalize(m.Label)
		if key == "" {
			continue
		}
		if i, ok := byKey[key]; ok {
			if m.Confidence > mentions[i].confidence {
				mentions[i].confidence = m.Confidence
			}
			continue
		}
		byKey[key] = len(mentions)
		mentions = append(mentions, mergedMention{
			canonical:  key,
			label:      m.Label,
			kind:       m.Kind,
			confidence: m.Confidence,
		})
	}

	type pairKeyed struct {
		a, b, key string
	}
	var pairs []pairKeyed
	pairSeen := map[string]bool{}
	for _, p := range obs.Pairs {
		a, b := Canonicalize(p.A), Canonicalize(p.B)
		if a == "" || b == "" || a == b { // self-loops are never created
			continue
		}
		key := edgeKey(domain.RelationCooccurrence, a, b, false)
		if pairSeen[key] {
			continue
		}
		pairSeen[key] = true
		pairs = append(pairs, pairKeyed{a: a, b: b, key: key})
	}

	var delta MergeDelta

	g.mu.Lock()
	if g.seenChunks[obs.ChunkID] {
		g.mu.Unlock()
		return MergeDelta{}, nil
	}
	g.seenChunks[obs.ChunkID] = true

	touchedNodes := make([]*memNode, 0, len(mentions))
	for _, m := range mentions {
		n, ok := g.nodes[m.canonical]
		if !ok {
			n = &memNode{
				Node: Node{
					ID:        uuid.New(),
					Canonical: m.canonical,
					Label:     m.label,
					Kind:      m.kind,
				},
				docMentions: map[uuid.UUID]int{},
				chunkRefs:   map[uuid.UUID]int{},
			}
			g.nodes[m.canonical] = n
			delta.NewConcepts++
		} else {
			delta.UpdatedConcepts++
		}
		touchedNodes = append(touchedNodes, n)
	}

	touchedEdges := make([]*memEdge, 0, len(pairs))
	for _, p := range pairs {
		src, okA := g.nodes[p.a]
		dst, okB := g.nodes[p.b]
		if !okA || !okB {
			// Pairs reference labels outside the mention set; skip them
			// rather than create unscored nodes.
			continue
		}
		e, ok := g.edges[p.key]
		if !ok {
			e = &memEdge{
				Edge: Edge{
					ID:       uuid.New(),
					SourceID: src.ID,
					TargetID: dst.ID,
					Source:   src.Canonical,
					Target:   dst.Canonical,
					Kind:     domain.RelationCooccurrence,
				},
				chunkRefs: map[uuid.UUID]int{},
			}
			g.edges[p.key] = e
			g.link(e.Source, e.Target, e)
			g.link(e.Target, e.Source, e)
			delta.NewEdges++
		} else {
			delta.UpdatedEdges++
		}
		touchedEdges = append(touchedEdges, e)
	}
	g.mu.Unlock()

	// Counter updates take one stripe at a time, so concurrent merges of
	// disjoint concepts proceed in parallel. AltKinds is updated here too:
	// every mutable node field shares the stripe lock with its snapshots.
	for i, n := range touchedNodes {
		m := mentions[i]
		lock := g.stripe(n.Canonical)
		lock.Lock()
		if m.kind != n.Kind && !containsStr(n.AltKinds, m.kind) {
			n.AltKinds = append(n.AltKinds, m.kind)
		}
		prior := n.docMentions[obs.DocumentID]
		n.Importance += m.confidence * math.Pow(sameDocDecay, float64(prior))
		n.Mentions++
		n.docMentions[obs.DocumentID] = prior + 1
		n.chunkRefs[obs.ChunkID]++
		n.Provenance = appendCapped(n.Provenance, obs.ChunkID)
		delta.Nodes = append(delta.Nodes, snapshotNodeLocked(n))
		lock.Unlock()
	}
	for _, e := range touchedEdges {
		lock := g.stripe(e.Source + "|" + e.Target)
		lock.Lock()
		e.Weight++
		e.chunkRefs[obs.ChunkID]++
		e.Evidence = appendCapped(e.Evidence, obs.ChunkID)
		delta.Edges = append(delta.Edges, snapshotEdgeLocked(e))
		lock.Unlock()
	}

	return delta, nil
}

// link must be called with mu held.
func (g *MemoryGraph) link(from, to string, e *memEdge) {
	m, ok := g.adj[from]
	if !ok {
		m = map[string]*memEdge{}
		g.adj[from] = m
	}
	m[to] = e
}

func (g *MemoryGraph) Concept(canonical string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[Canonicalize(canonical)]
	if !ok {
		return Node{}, false
	}
	return g.snapshotNode(n), true
}

func (g *MemoryGraph) MatchSubstring(query string, limit int) []Node {
	q := Canonicalize(query)
	if q == "" {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Node
	for key, n := range g.nodes {
		if strings.Contains(key, q) {
			out = append(out, g.snapshotNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Canonical < out[j].Canonical
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (g *MemoryGraph) ConceptsByChunks(chunkIDs []uuid.UUID) []Node {
	if len(chunkIDs) == 0 {
		return nil
	}
	want := make(map[uuid.UUID]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Node
	for _, n := range g.nodes {
		lock := g.stripe(n.Canonical)
		lock.Lock()
		hit := false
		for id := range n.chunkRefs {
			if want[id] {
				hit = true
				break
			}
		}
		var snap Node
		if hit {
			snap = snapshotNodeLocked(n)
		}
		lock.Unlock()
		if hit {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Canonical < out[j].Canonical
	})
	return out
}

func (g *MemoryGraph) Neighborhood(seeds []string, maxHops int) []NeighborScore {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seedSet := map[string]bool{}
	var frontier []string
	for _, s := range seeds {
		key := Canonicalize(s)
		if _, ok := g.nodes[key]; ok && !seedSet[key] {
			seedSet[key] = true
			frontier = append(frontier, key)
		}
	}
	sort.Strings(frontier)

	best := map[string]*NeighborScore{}
	visited := map[string]bool{}
	for k := range seedSet {
		visited[k] = true
	}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			for neighbor, e := range g.adj[cur] {
				score := g.edgeWeight(e) / float64(hop)
				if seedSet[neighbor] {
					continue
				}
				if ns, ok := best[neighbor]; ok {
					// Same minimal hop count, better edge.
					if ns.Hops == hop && score > ns.Score {
						ns.Score = score
					}
					continue
				}
				best[neighbor] = &NeighborScore{Canonical: neighbor, Hops: hop, Score: score}
				if !visited[neighbor] {
					visited[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}

	out := make([]NeighborScore, 0, len(best))
	for _, ns := range best {
		out = append(out, *ns)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Canonical < out[j].Canonical
	})
	return out
}

func (g *MemoryGraph) Related(canonical string, limit int) []NeighborScore {
	key := Canonicalize(canonical)
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []NeighborScore
	for neighbor, e := range g.adj[key] {
		out = append(out, NeighborScore{Canonical: neighbor, Hops: 1, Score: g.edgeWeight(e)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Canonical < out[j].Canonical
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (g *MemoryGraph) Path(from, to string, maxDepth int) []string {
	a, b := Canonicalize(from), Canonicalize(to)
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[a]; !ok {
		return nil
	}
	if _, ok := g.nodes[b]; !ok {
		return nil
	}
	if a == b {
		return []string{a}
	}

	parent := map[string]string{a: a}
	frontier := []string{a}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			neighbors := make([]string, 0, len(g.adj[cur]))
			for n := range g.adj[cur] {
				neighbors = append(neighbors, n)
			}
			sort.Strings(neighbors)
			for _, n := range neighbors {
				if _, seen := parent[n]; seen {
					continue
				}
				parent[n] = cur
				if n == b {
					return rebuildPath(parent, a, b)
				}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return nil
}

func rebuildPath(parent map[string]string, from, to string) []string {
	var rev []string
	for cur := to; ; cur = parent[cur] {
		rev = append(rev, cur)
		if cur == from {
			break
		}
	}
	out := make([]string, len(rev))
	for i, s := range rev {
		out[len(rev)-1-i] = s
	}
	return out
}

func (g *MemoryGraph) RemoveChunkRefs(ctx context.Context, chunkIDs []uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Holding mu keeps map membership stable, but per-node and per-edge
	// counters share their stripe lock with merge counter phases that run
	// outside mu, so each one is taken here as well.
	var removed []uuid.UUID
	for key, n := range g.nodes {
		lock := g.stripe(n.Canonical)
		lock.Lock()
		changed := false
		for _, id := range chunkIDs {
			if c, ok := n.chunkRefs[id]; ok {
				n.Mentions -= c
				delete(n.chunkRefs, id)
				changed = true
			}
		}
		if changed {
			n.Provenance = dropIDs(n.Provenance, chunkIDs)
		}
		empty := len(n.chunkRefs) == 0
		lock.Unlock()
		if !changed {
			continue
		}
		if empty {
			removed = append(removed, n.ID)
			delete(g.nodes, key)
			delete(g.adj, key)
		}
	}
	for key, e := range g.edges {
		lock := g.stripe(e.Source + "|" + e.Target)
		lock.Lock()
		for _, id := range chunkIDs {
			delete(e.chunkRefs, id)
		}
		e.Evidence = dropIDs(e.Evidence, chunkIDs)
		empty := len(e.chunkRefs) == 0
		lock.Unlock()
		_, srcAlive := g.nodes[e.Source]
		_, dstAlive := g.nodes[e.Target]
		if empty || !srcAlive || !dstAlive {
			delete(g.edges, key)
			if m, ok := g.adj[e.Source]; ok {
				delete(m, e.Target)
			}
			if m, ok := g.adj[e.Target]; ok {
				delete(m, e.Source)
			}
		}
	}
	for _, id := range chunkIDs {
		delete(g.seenChunks, id)
	}
	if len(removed) > 0 {
		g.log.Info("pruned concepts without supporting chunks", "removed", len(removed))
	}
	return removed, nil
}

func (g *MemoryGraph) TopConcepts(n int) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, g.snapshotNode(node))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Canonical < out[j].Canonical
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (g *MemoryGraph) AllEdges(minWeight float64) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Edge
	for _, e := range g.edges {
		lock := g.stripe(e.Source + "|" + e.Target)
		lock.Lock()
		if e.Weight >= minWeight {
			out = append(out, snapshotEdgeLocked(e))
		}
		lock.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func (g *MemoryGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Concepts: len(g.nodes), Relationships: len(g.edges)}
	for _, n := range g.nodes {
		lock := g.stripe(n.Canonical)
		lock.Lock()
		s.TotalMentions += n.Mentions
		lock.Unlock()
	}
	return s
}

// snapshotNode copies a node's fields under its stripe lock. Caller holds
// at least mu.RLock.
func (g *MemoryGraph) snapshotNode(n *memNode) Node {
	lock := g.stripe(n.Canonical)
	lock.Lock()
	defer lock.Unlock()
	return snapshotNodeLocked(n)
}

func snapshotNodeLocked(n *memNode) Node {
	out := n.Node
	out.AltKinds = append([]string(nil), n.AltKinds...)
	out.Provenance = append([]uuid.UUID(nil), n.Provenance...)
	return out
}

func snapshotEdgeLocked(e *memEdge) Edge {
	out := e.Edge
	out.Evidence = append([]uuid.UUID(nil), e.Evidence...)
	return out
}

func (g *MemoryGraph) edgeWeight(e *memEdge) float64 {
	lock := g.stripe(e.Source + "|" + e.Target)
	lock.Lock()
	defer lock.Unlock()
	return e.Weight
}

func appendCapped(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	ids = append(ids, id)
	if len(ids) > provenanceCap {
		ids = ids[len(ids)-provenanceCap:]
	}
	return ids
}

func dropIDs(ids []uuid.UUID, gone []uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, id := range ids {
		keep := true
		for _, g := range gone {
			if id == g {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, id)
		}
	}
	return out
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
