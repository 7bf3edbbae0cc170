// Package pgx implements EcosystemStorage on postgres with pgvector.
package pgx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/store"
)

type EcosystemDBStorage struct {
	conn *pgxpool.Pool
}

var _ store.EcosystemStorage = (*EcosystemDBStorage)(nil)

func NewEcosystemDBStorage(conn *pgxpool.Pool) *EcosystemDBStorage {
	return &EcosystemDBStorage{conn: conn}
}

func (s *EcosystemDBStorage) TopicExists(ctx context.Context, topicID string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bl_topics WHERE public_id = $1);`,
		topicID,
	).Scan(&exists)
	return exists, err
}

func (s *EcosystemDBStorage) CreateTopic(ctx context.Context, topic *common.Topic) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO bl_topics (public_id, title, phase)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (public_id) DO UPDATE SET title = EXCLUDED.title, phase = EXCLUDED.phase;`,
		topic.ID, topic.Title, topic.Phase,
	)
	return err
}

func (s *EcosystemDBStorage) GetTopic(ctx context.Context, topicID string) (*common.Topic, error) {
	topic := common.Topic{ID: topicID}
	err := s.conn.QueryRow(ctx,
		`SELECT title, phase FROM bl_topics WHERE public_id = $1;`,
		topicID,
	).Scan(&topic.Title, &topic.Phase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &topic, nil
}
