package social

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Graph mirrors acquaintance edges and relationship scores into Neo4j
// so the social structure survives restarts and stays queryable from
// outside the process.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewGraph creates a Neo4j-backed social graph.
func NewGraph(uri, user, password string, logger *zap.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Graph{driver: driver, logger: logger}, nil
}

// Ping checks that Neo4j answers.
func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close releases the Neo4j driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// Know records a directed acquaintance edge. Existing edges keep their
// score.
func (g *Graph) Know(ctx context.Context, from, to string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Agent {name: $from})
		 MERGE (b:Agent {name: $to})
		 MERGE (a)-[r:KNOWS]->(b)
		 ON CREATE SET r.score = 0.0, r.updated_at = datetime()`,
		map[string]interface{}{
			"from": from,
			"to":   to,
		})
	if err != nil {
		return fmt.Errorf("create edge %s->%s: %w", from, to, err)
	}
	return nil
}

// Forget removes the directed acquaintance edge, if any.
func (g *Graph) Forget(ctx context.Context, from, to string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (a:Agent {name: $from})-[r:KNOWS]->(b:Agent {name: $to}) DELETE r`,
		map[string]interface{}{
			"from": from,
			"to":   to,
		})
	if err != nil {
		return fmt.Errorf("delete edge %s->%s: %w", from, to, err)
	}
	return nil
}

// AdjustScore shifts the edge score by delta, clamped to [-1, 1], and
// returns the new score. Missing nodes and edges are created at zero.
func (g *Graph) AdjustScore(ctx context.Context, from, to string, delta float64) (float64, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MERGE (a:Agent {name: $from})
		 MERGE (b:Agent {name: $to})
		 MERGE (a)-[r:KNOWS]->(b)
		 ON CREATE SET r.score = 0.0
		 SET r.score = CASE
		     WHEN r.score + $delta > 1.0 THEN 1.0
		     WHEN r.score + $delta < -1.0 THEN -1.0
		     ELSE r.score + $delta
		 END, r.updated_at = datetime()
		 RETURN r.score`,
		map[string]interface{}{
			"from":  from,
			"to":    to,
			"delta": delta,
		})
	if err != nil {
		return 0, fmt.Errorf("adjust score %s->%s: %w", from, to, err)
	}

	if result.Next(ctx) {
		if v, ok := result.Record().Get("r.score"); ok {
			return toFloat(v), nil
		}
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("adjust score %s->%s: %w", from, to, err)
	}
	return 0, fmt.Errorf("adjust score %s->%s: no row returned", from, to)
}

// Score returns the current edge score. A missing edge scores zero.
func (g *Graph) Score(ctx context.Context, from, to string) (float64, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {name: $from})-[r:KNOWS]->(b:Agent {name: $to}) RETURN r.score`,
		map[string]interface{}{
			"from": from,
			"to":   to,
		})
	if err != nil {
		return 0, fmt.Errorf("read score %s->%s: %w", from, to, err)
	}

	if result.Next(ctx) {
		if v, ok := result.Record().Get("r.score"); ok {
			return toFloat(v), nil
		}
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("read score %s->%s: %w", from, to, err)
	}
	return 0, nil
}

// Neighbors returns the names directly known by name, for parity with
// the in-memory adjacency.
func (g *Graph) Neighbors(ctx context.Context, name string) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {name: $name})-[:KNOWS]->(b:Agent) RETURN b.name ORDER BY b.name`,
		map[string]interface{}{"name": name})
	if err != nil {
		return nil, fmt.Errorf("read neighbors of %s: %w", name, err)
	}

	var names []string
	for result.Next(ctx) {
		if v, ok := result.Record().Get("b.name"); ok {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read neighbors of %s: %w", name, err)
	}
	return names, nil
}

// ReachableWithin returns every agent reachable from start within depth
// hops of the persisted graph. Semantics match Reachable: depth zero or
// negative reaches nothing, and start shows up only through a cycle.
func (g *Graph) ReachableWithin(ctx context.Context, start string, depth int) (map[string]struct{}, error) {
	reached := make(map[string]struct{})
	if depth <= 0 {
		return reached, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// Path bounds cannot be parameterized in Cypher.
	query := fmt.Sprintf(
		`MATCH (a:Agent {name: $name})-[:KNOWS*1..%d]->(b:Agent) RETURN DISTINCT b.name`, depth)
	result, err := session.Run(ctx, query, map[string]interface{}{"name": start})
	if err != nil {
		return nil, fmt.Errorf("reachability from %s: %w", start, err)
	}

	for result.Next(ctx) {
		if v, ok := result.Record().Get("b.name"); ok {
			if s, ok := v.(string); ok {
				reached[s] = struct{}{}
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reachability from %s: %w", start, err)
	}
	return reached, nil
}

// DecayAll moves every edge score toward zero by step.
func (g *Graph) DecayAll(ctx context.Context, step float64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH ()-[r:KNOWS]->()
		 WHERE r.score <> 0
		 SET r.score = CASE
		     WHEN r.score > 0 AND r.score - $step < 0 THEN 0.0
		     WHEN r.score > 0 THEN r.score - $step
		     WHEN r.score + $step > 0 THEN 0.0
		     ELSE r.score + $step
		 END`,
		map[string]interface{}{"step": step})
	if err != nil {
		return fmt.Errorf("decay scores: %w", err)
	}
	return nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
