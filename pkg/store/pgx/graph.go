package pgx

import (
	"context"

	"github.com/ojpp/broadlistening/backend/pkg/common"
)

func (s *EcosystemDBStorage) SaveNode(ctx context.Context, node *common.ArgumentNode) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO bl_argument_nodes (public_id, topic_id, opinion_id, node_type, content, confidence)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		 ON CONFLICT (public_id) DO NOTHING;`,
		node.ID, node.TopicID, node.OpinionID, string(node.Type), node.Content, node.Confidence,
	)
	return err
}

// SaveEdges upserts edges with set semantics: the (source, target, relation)
// triple is unique and a duplicate write is a no-op that keeps the original
// weight.
func (s *EcosystemDBStorage) SaveEdges(ctx context.Context, topicID string, edges []common.ArgumentEdge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, e := range edges {
		_, err := tx.Exec(ctx,
			`INSERT INTO bl_argument_edges (topic_id, source_id, target_id, relation, weight)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (source_id, target_id, relation) DO NOTHING;`,
			topicID, e.SourceID, e.TargetID, string(e.Relation), e.Weight,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *EcosystemDBStorage) ListNodes(ctx context.Context, topicID string) ([]common.ArgumentNode, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT public_id, opinion_id, node_type, content, confidence
		 FROM bl_argument_nodes
		 WHERE topic_id = $1
		 ORDER BY id ASC;`,
		topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.ArgumentNode, 0)
	for rows.Next() {
		var (
			node      common.ArgumentNode
			opinionID *string
			nodeType  string
		)
		if err := rows.Scan(&node.ID, &opinionID, &nodeType, &node.Content, &node.Confidence); err != nil {
			return nil, err
		}
		node.TopicID = topicID
		node.Type = common.NodeType(nodeType)
		if opinionID != nil {
			node.OpinionID = *opinionID
		}
		out = append(out, node)
	}
	return out, rows.Err()
}

func (s *EcosystemDBStorage) ListEdges(ctx context.Context, topicID string) ([]common.ArgumentEdge, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT source_id, target_id, relation, weight
		 FROM bl_argument_edges
		 WHERE topic_id = $1
		 ORDER BY id ASC;`,
		topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.ArgumentEdge, 0)
	for rows.Next() {
		var (
			edge     common.ArgumentEdge
			relation string
		)
		if err := rows.Scan(&edge.SourceID, &edge.TargetID, &relation, &edge.Weight); err != nil {
			return nil, err
		}
		edge.Relation = common.Relation(relation)
		out = append(out, edge)
	}
	return out, rows.Err()
}
