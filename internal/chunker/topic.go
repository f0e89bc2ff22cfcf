package chunker

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"semrag/internal/domain"
	"semrag/internal/similarity"
)

// TopicShiftDetector marks coherence boundaries between adjacent sentences.
type TopicShiftDetector struct {
	scorer  *similarity.Scorer
	workers int
	logger  *zap.Logger
}

// NewTopicShiftDetector creates a detector that embeds up to workers
// sentences concurrently (GOMAXPROCS when workers <= 0).
func NewTopicShiftDetector(scorer *similarity.Scorer, workers int, logger *zap.Logger) *TopicShiftDetector {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopicShiftDetector{scorer: scorer, workers: workers, logger: logger}
}

// Detect returns the indices i+1 for which sentences i and i+1 score below
// threshold. A sentence whose embedding failed forces a boundary on both sides.
func (d *TopicShiftDetector) Detect(ctx context.Context, sents []domain.Sentence, threshold float64) []int {
	if len(sents) < 2 {
		return nil
	}
	vectors := d.embedAll(ctx, sents)
	var shifts []int
	for i := 0; i+1 < len(sents); i++ {
		a, b := vectors[i], vectors[i+1]
		if a == nil || b == nil {
			shifts = append(shifts, i+1)
			continue
		}
		if d.scorer.Similarity(a, b) < threshold {
			shifts = append(shifts, i+1)
		}
	}
	return shifts
}

// embedAll embeds every sentence, keeping results in input order. Failed
// sentences are left nil.
func (d *TopicShiftDetector) embedAll(ctx context.Context, sents []domain.Sentence) [][]float64 {
	vectors := make([][]float64, len(sents))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i := range sents {
		g.Go(func() error {
			vec, err := d.scorer.Embed(ctx, sents[i].Text)
			if err != nil {
				d.logger.Warn("sentence embedding failed, forcing topic boundary",
					zap.Int("sentence", i),
					zap.Int("start_char", sents[i].StartChar),
					zap.Error(err),
				)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}
