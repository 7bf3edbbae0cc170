package pgx

import (
	"context"

	"github.com/ojpp/broadlistening/backend/pkg/common"
)

func (s *EcosystemDBStorage) AppendHistory(ctx context.Context, entry *common.HistoryEntry) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO bl_ecosystem_history
		   (topic_id, shannon_index, avg_fitness, avg_pheromone, total_opinions)
		 VALUES ($1, $2, $3, $4, $5);`,
		entry.TopicID, entry.ShannonIndex, entry.AvgFitness, entry.AvgPheromone, entry.TotalOpinions,
	)
	return err
}

// ListHistory returns the newest entries in chronological order.
func (s *EcosystemDBStorage) ListHistory(ctx context.Context, topicID string, limit int) ([]common.HistoryEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.Query(ctx,
		`SELECT topic_id, shannon_index, avg_fitness, avg_pheromone, total_opinions, created_at
		 FROM (
		   SELECT topic_id, shannon_index, avg_fitness, avg_pheromone, total_opinions, created_at, id
		   FROM bl_ecosystem_history
		   WHERE topic_id = $1
		   ORDER BY id DESC
		   LIMIT $2
		 ) recent
		 ORDER BY id ASC;`,
		topicID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.HistoryEntry, 0)
	for rows.Next() {
		var e common.HistoryEntry
		err := rows.Scan(&e.TopicID, &e.ShannonIndex, &e.AvgFitness, &e.AvgPheromone, &e.TotalOpinions, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
