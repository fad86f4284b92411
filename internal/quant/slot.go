package quant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lipidquant/internal/chrom"
	"lipidquant/internal/lipid"
	"lipidquant/internal/logging"
	"lipidquant/internal/stage"
)

// slot is one analyzer capacity unit. Its search context belongs to the task
// currently running on it, or to nobody when the slot is free.
type slot struct {
	index  int
	search chrom.SearchContext
	item   *lipid.Item
	task   *stage.Task[WorkResult]
}

func (s *slot) free() bool {
	return s.task == nil
}

func (s *slot) assign(ctx context.Context, worker Worker, a Assignment) {
	search := s.search
	s.item = a.Item
	s.task = stage.Go(ctx, func(ctx context.Context) (WorkResult, error) {
		return worker.Run(ctx, search, a)
	})
}

// release frees the slot once its task has finished and returns the outcome.
func (s *slot) release() (WorkResult, error) {
	res, err := s.task.Result()
	s.task = nil
	s.item = nil
	return res, err
}

func openSlots(ctx context.Context, opener chrom.Opener, chromPath string, n int) ([]*slot, error) {
	slots := make([]*slot, 0, n)
	for i := range n {
		search, err := opener.Open(ctx, chromPath, i)
		if err != nil {
			closeSlots(slots, nil)
			return nil, fmt.Errorf("open analyzer slot %d: %w", i, err)
		}
		slots = append(slots, &slot{index: i, search: search})
	}
	return slots, nil
}

// closeSlots abandons running tasks, waits for them to return, and releases
// every search context. It runs on success and failure paths alike.
func closeSlots(slots []*slot, logger *slog.Logger) error {
	var errs []error
	for _, s := range slots {
		if s.task != nil {
			s.task.Cancel()
			<-s.task.Done()
			s.task = nil
			s.item = nil
		}
	}
	for _, s := range slots {
		if s.search == nil {
			continue
		}
		if err := s.search.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close slot %d: %w", s.index, err))
			if logger != nil {
				logger.Debug("analyzer slot close failed", logging.Int(logging.FieldSlot, s.index), logging.Error(err))
			}
		}
		s.search = nil
	}
	return errors.Join(errs...)
}
