// Package graph mirrors the knowledge graph into neo4j. The mirror is
// best-effort infrastructure for graph-native queries; the in-process graph
// stays authoritative for merge semantics.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/platform/neo4jdb"
)

type KnowledgeStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewKnowledgeStore(client *neo4jdb.Client, baseLog *logger.Logger) *KnowledgeStore {
	return &KnowledgeStore{client: client, log: baseLog.With("service", "KnowledgeStore")}
}

func (s *KnowledgeStore) enabled() bool {
	return s != nil && s.client != nil && s.client.Driver != nil
}

// EnsureSchema creates constraints and indexes. Best-effort; may fail for
// restricted users.
func (s *KnowledgeStore) EnsureSchema(ctx context.Context) {
	if !s.enabled() {
		return
	}
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT concept_canonical_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.canonical IS UNIQUE`,
		`CREATE INDEX concept_id_idx IF NOT EXISTS FOR (c:Concept) ON (c.id)`,
	}
	for _, stmt := range stmts {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *KnowledgeStore) UpsertConcepts(ctx context.Context, nodes []kg.Node) error {
	if !s.enabled() || len(nodes) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, map[string]any{
			"id":         n.ID.String(),
			"canonical":  n.Canonical,
			"label":      n.Label,
			"kind":       n.Kind,
			"alt_kinds":  n.AltKinds,
			"importance": n.Importance,
			"mentions":   int64(n.Mentions),
			"synced_at":  now,
		})
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (c:Concept {canonical: n.canonical})
ON CREATE SET c.id = n.id, c.label = n.label, c.kind = n.kind
SET c.alt_kinds = n.alt_kinds,
    c.importance = n.importance,
    c.mentions = n.mentions,
    c.synced_at = n.synced_at
`, map[string]any{"nodes": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j upsert concepts: %w", err)
	}
	return nil
}

func (s *KnowledgeStore) UpsertEdges(ctx context.Context, edges []kg.Edge) error {
	if !s.enabled() || len(edges) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"id":        e.ID.String(),
			"source":    e.Source,
			"target":    e.Target,
			"kind":      e.Kind,
			"weight":    e.Weight,
			"synced_at": now,
		})
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Concept {canonical: r.source})
MATCH (b:Concept {canonical: r.target})
MERGE (a)-[e:RELATED {kind: r.kind}]->(b)
SET e.id = r.id, e.weight = r.weight, e.synced_at = r.synced_at
`, map[string]any{"rels": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j upsert edges: %w", err)
	}
	return nil
}

func (s *KnowledgeStore) RemoveConcepts(ctx context.Context, conceptIDs []uuid.UUID) error {
	if !s.enabled() || len(conceptIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(conceptIDs))
	for _, id := range conceptIDs {
		ids = append(ids, id.String())
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $ids AS id
MATCH (c:Concept {id: id})
DETACH DELETE c
`, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j remove concepts: %w", err)
	}
	return nil
}

// ShortestPath returns canonical keys along a shortest undirected path, or
// nil when none exists within maxDepth hops.
func (s *KnowledgeStore) ShortestPath(ctx context.Context, from, to string, maxDepth int) ([]string, error) {
	if !s.enabled() {
		return nil, nil
	}
	if maxDepth <= 0 {
		maxDepth = 4
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	// Variable-length bounds cannot be parameterized; maxDepth is an int.
	query := fmt.Sprintf(`
MATCH (a:Concept {canonical: $from}), (b:Concept {canonical: $to})
MATCH p = shortestPath((a)-[:RELATED*..%d]-(b))
RETURN [n IN nodes(p) | n.canonical] AS path
`, maxDepth)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"from": kg.Canonicalize(from),
			"to":   kg.Canonicalize(to),
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, nil // no path
		}
		raw, _ := rec.Get("path")
		items, _ := raw.([]any)
		path := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok {
				path = append(path, s)
			}
		}
		return path, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j shortest path: %w", err)
	}
	path, _ := out.([]string)
	return path, nil
}

// Neighborhood returns concepts within maxHops of the seeds, scored by the
// strongest incident edge weight over hop distance.
func (s *KnowledgeStore) Neighborhood(ctx context.Context, seeds []string, maxHops int) ([]kg.NeighborScore, error) {
	if !s.enabled() || len(seeds) == 0 {
		return nil, nil
	}
	if maxHops <= 0 {
		maxHops = 2
	}
	canon := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		canon = append(canon, kg.Canonicalize(seed))
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
MATCH (seed:Concept) WHERE seed.canonical IN $seeds
MATCH p = (seed)-[:RELATED*1..%d]-(n:Concept)
WHERE NOT n.canonical IN $seeds
WITH n, min(length(p)) AS hops, max(relationships(p)[-1].weight) AS w
RETURN n.canonical AS canonical, hops, w / hops AS score
ORDER BY score DESC, canonical ASC
`, maxHops)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"seeds": canon})
		if err != nil {
			return nil, err
		}
		var scores []kg.NeighborScore
		for res.Next(ctx) {
			rec := res.Record()
			canonical, _ := rec.Get("canonical")
			hops, _ := rec.Get("hops")
			score, _ := rec.Get("score")
			ns := kg.NeighborScore{}
			if c, ok := canonical.(string); ok {
				ns.Canonical = c
			}
			if h, ok := hops.(int64); ok {
				ns.Hops = int(h)
			}
			switch v := score.(type) {
			case float64:
				ns.Score = v
			case int64:
				ns.Score = float64(v)
			}
			scores = append(scores, ns)
		}
		return scores, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j neighborhood: %w", err)
	}
	scores, _ := out.([]kg.NeighborScore)
	return scores, nil
}
