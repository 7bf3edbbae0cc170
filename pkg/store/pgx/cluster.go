package pgx

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
)

// ReplaceClusters swaps the topic's cluster set and the per-opinion
// assignments in a single transaction. A reclustering pass produces a
// complete new partition, so the old rows are simply dropped.
func (s *EcosystemDBStorage) ReplaceClusters(ctx context.Context, topicID string, clusters []common.Cluster, assignments map[string]string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM bl_clusters WHERE topic_id = $1;`, topicID); err != nil {
		return err
	}

	for _, c := range clusters {
		var centroid any
		if len(c.Centroid) > 0 {
			centroid = pgvector.NewVector(c.Centroid)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO bl_clusters
			   (public_id, topic_id, label, centroid, center_x, center_y, radius, color, member_hash, size)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
			c.ID, topicID, c.Label, centroid, c.CenterX, c.CenterY, c.Radius, c.Color, c.MemberHash, c.Size,
		)
		if err != nil {
			return err
		}
	}

	for opinionID, clusterID := range assignments {
		_, err := tx.Exec(ctx,
			`UPDATE bl_opinions SET cluster_id = $2 WHERE public_id = $1;`,
			opinionID, clusterID,
		)
		if err != nil {
			return err
		}
	}

	logger.Debug("[Store][ReplaceClusters] Cluster set replaced",
		"topic", topicID, "clusters", len(clusters), "assignments", len(assignments))
	return tx.Commit(ctx)
}

func (s *EcosystemDBStorage) ListClusters(ctx context.Context, topicID string) ([]common.Cluster, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT public_id, label, centroid, center_x, center_y, radius, color, member_hash, size
		 FROM bl_clusters
		 WHERE topic_id = $1
		 ORDER BY size DESC, public_id ASC;`,
		topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Cluster, 0)
	for rows.Next() {
		var (
			c        common.Cluster
			centroid *pgvector.Vector
		)
		err := rows.Scan(&c.ID, &c.Label, &centroid, &c.CenterX, &c.CenterY, &c.Radius, &c.Color, &c.MemberHash, &c.Size)
		if err != nil {
			return nil, err
		}
		c.TopicID = topicID
		if centroid != nil {
			c.Centroid = centroid.Slice()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
