package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ojpp/broadlistening/backend/internal/storage"
	"github.com/ojpp/broadlistening/backend/internal/util"
	"github.com/ojpp/broadlistening/backend/pkg/ecosystem"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
)

const (
	// DefaultBatchSize is used when an analyze request does not name one.
	// The HTTP trigger applies the same default.
	DefaultBatchSize = 10

	// busy retries wait with jitter so two workers racing on one topic
	// do not collide again immediately.
	busyRetries   = 5
	busyBaseSleep = 2 * time.Second

	// archiveTries bounds retries of the best-effort snapshot upload.
	archiveTries = 3
)

// ProcessAnalyzeMessage drives a topic's analysis to completion: RunBatch is
// looped until no unanalyzed opinions remain, then the finished snapshot is
// archived when an S3 client is configured.
func ProcessAnalyzeMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	engine *ecosystem.Engine,
	msg string,
) error {
	data := new(AnalyzeTopicMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to unmarshal analyze message: %w", err)
	}
	if data.BatchSize <= 0 {
		data.BatchSize = DefaultBatchSize
	}

	logger.Info("[Queue] Starting topic analysis", "topic_id", data.TopicID, "batch_size", data.BatchSize)

	totalAnalyzed := 0
	busyLeft := busyRetries
	for {
		result, err := engine.RunBatch(ctx, data.TopicID, data.BatchSize)
		if err != nil {
			if errors.Is(err, ecosystem.ErrBusy) && busyLeft > 0 {
				busyLeft--
				sleep := busyBaseSleep + time.Duration(rand.Int63n(int64(busyBaseSleep)))
				logger.Info("[Queue] Topic busy, backing off",
					"topic_id", data.TopicID, "sleep", sleep, "retries_left", busyLeft)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(sleep):
				}
				continue
			}
			return fmt.Errorf("analysis run for topic %s: %w", data.TopicID, err)
		}

		totalAnalyzed += result.AnalyzedThisBatch
		if result.RemainingUnanalyzed == 0 {
			break
		}
	}

	logger.Info("[Queue] Topic analysis finished", "topic_id", data.TopicID, "analyzed", totalAnalyzed)

	if s3Client == nil {
		return nil
	}

	snapshot, err := engine.BuildSnapshot(ctx, data.TopicID)
	if err != nil {
		return fmt.Errorf("snapshot after analysis of topic %s: %w", data.TopicID, err)
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot of topic %s: %w", data.TopicID, err)
	}
	key, err := util.RetryWithContext(ctx, archiveTries,
		func(ctx context.Context) (string, error) {
			return storage.ArchiveSnapshot(ctx, s3Client, data.TopicID, payload)
		})
	if err != nil {
		// archival is best effort, the analysis result already counts
		logger.Warn("[Queue] Snapshot archival failed", "topic_id", data.TopicID, "err", err)
		return nil
	}

	logger.Info("[Queue] Snapshot archived", "topic_id", data.TopicID, "key", key)
	return nil
}
