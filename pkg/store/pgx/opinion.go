package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/store"
)

const opinionColumns = `public_id, topic_id, content, stance, submitted_at, analyzed,
	embedding, cluster_id, pheromone_intensity, pheromone_quality,
	support_count, rewarded_support`

func (s *EcosystemDBStorage) InsertOpinion(ctx context.Context, opinion *common.Opinion) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO bl_opinions
		   (public_id, topic_id, content, stance, pheromone_intensity, pheromone_quality, support_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		opinion.ID, opinion.TopicID, opinion.Content, string(opinion.Stance),
		opinion.PheromoneIntensity, opinion.PheromoneQuality, opinion.SupportCount,
	)
	return err
}

func (s *EcosystemDBStorage) AdjustSupport(ctx context.Context, opinionID string, delta int) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE bl_opinions
		 SET support_count = GREATEST(support_count + $2, 0)
		 WHERE public_id = $1;`,
		opinionID, delta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FetchUnanalyzed returns the oldest unanalyzed opinions of a topic,
// serial id as tiebreak so retries see the same batch.
func (s *EcosystemDBStorage) FetchUnanalyzed(ctx context.Context, topicID string, limit int) ([]common.Opinion, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+opinionColumns+`
		 FROM bl_opinions
		 WHERE topic_id = $1 AND NOT analyzed
		 ORDER BY submitted_at ASC, id ASC
		 LIMIT $2;`,
		topicID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOpinions(rows)
}

func (s *EcosystemDBStorage) MarkAnalyzed(ctx context.Context, opinionIDs []string) error {
	if len(opinionIDs) == 0 {
		return nil
	}
	_, err := s.conn.Exec(ctx,
		`UPDATE bl_opinions SET analyzed = TRUE WHERE public_id = ANY($1);`,
		opinionIDs,
	)
	return err
}

func (s *EcosystemDBStorage) CountUnanalyzed(ctx context.Context, topicID string) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM bl_opinions WHERE topic_id = $1 AND NOT analyzed;`,
		topicID,
	).Scan(&count)
	return count, err
}

func (s *EcosystemDBStorage) CountOpinions(ctx context.Context, topicID string) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM bl_opinions WHERE topic_id = $1;`,
		topicID,
	).Scan(&count)
	return count, err
}

func (s *EcosystemDBStorage) ListOpinions(ctx context.Context, topicID string) ([]common.Opinion, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+opinionColumns+`
		 FROM bl_opinions
		 WHERE topic_id = $1
		 ORDER BY submitted_at ASC, id ASC;`,
		topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOpinions(rows)
}

func (s *EcosystemDBStorage) SaveEmbedding(ctx context.Context, opinionID string, embedding []float32) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE bl_opinions SET embedding = $2 WHERE public_id = $1;`,
		opinionID, pgvector.NewVector(embedding),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdatePheromones writes the post-batch swarm state in one transaction so
// a failed run never leaves a topic half decayed.
func (s *EcosystemDBStorage) UpdatePheromones(ctx context.Context, updates []store.PheromoneUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		tag, err := tx.Exec(ctx,
			`UPDATE bl_opinions
			 SET pheromone_intensity = $2, pheromone_quality = $3, rewarded_support = $4
			 WHERE public_id = $1;`,
			u.OpinionID, u.Intensity, u.Quality, u.RewardedSupport,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
	}
	return tx.Commit(ctx)
}

func scanOpinions(rows pgx.Rows) ([]common.Opinion, error) {
	out := make([]common.Opinion, 0)
	for rows.Next() {
		var (
			op        common.Opinion
			stance    string
			embedding *pgvector.Vector
			clusterID *string
		)
		err := rows.Scan(
			&op.ID, &op.TopicID, &op.Content, &stance, &op.SubmittedAt, &op.Analyzed,
			&embedding, &clusterID, &op.PheromoneIntensity, &op.PheromoneQuality,
			&op.SupportCount, &op.RewardedSupport,
		)
		if err != nil {
			return nil, err
		}
		op.Stance = common.Stance(stance)
		if embedding != nil {
			op.Embedding = embedding.Slice()
		}
		if clusterID != nil {
			op.ClusterID = *clusterID
		}
		out = append(out, op)
	}
	return out, rows.Err()
}
