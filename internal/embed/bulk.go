package embed

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultBulkWorkers bounds concurrent provider calls during bulk indexing.
const defaultBulkWorkers = 4

// BulkReport summarizes a bulk embedding run.
type BulkReport struct {
	Updated int      // crates embedded and stored in this run
	Failed  []string // ids that could not be embedded, sorted
}

// UpdateAllMissingEmbeddings embeds every crate whose embedding column is
// NULL. Already-indexed crates are never touched, so re-running after a
// partial failure only processes the remainder.
//
// Failures are collected per crate rather than aborting the run; when any
// crate fails the returned error is a *PartialError carrying the failed ids
// (errors.Is(err, ErrPartial)). The report is returned in both cases.
func (s *Service) UpdateAllMissingEmbeddings(ctx context.Context) (*BulkReport, error) {
	missing, err := s.store.ListMissingEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	if len(missing) == 0 {
		s.logger.Info("no crates missing embeddings")
		return &BulkReport{}, nil
	}

	s.logger.Info("bulk embedding started",
		"missing", len(missing), "workers", defaultBulkWorkers)

	var (
		mu      sync.Mutex
		updated int
		failed  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultBulkWorkers)

	for _, c := range missing {
		g.Go(func() error {
			// Stop scheduling once the parent context is gone; individual
			// provider failures must not cancel sibling workers.
			if err := gctx.Err(); err != nil {
				return err
			}

			vec, err := s.Embed(gctx, c.EmbeddingText())
			if err == nil {
				err = s.store.SetEmbedding(gctx, c.ID, vec)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("crate embedding failed", "crate_id", c.ID, "error", err)
				failed = append(failed, c.ID)
				return nil
			}
			updated++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(failed)
	report := &BulkReport{Updated: updated, Failed: failed}

	s.logger.Info("bulk embedding finished",
		"updated", report.Updated, "failed", len(report.Failed))

	if len(failed) > 0 {
		return report, &PartialError{FailedIDs: failed}
	}
	return report, nil
}
