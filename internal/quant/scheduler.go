package quant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lipidquant/internal/chrom"
	"lipidquant/internal/config"
	"lipidquant/internal/lipid"
	"lipidquant/internal/logging"
	"lipidquant/internal/rules"
	"lipidquant/internal/services"
)

// Policy resolves the identification order of a class and modification.
type Policy interface {
	Lookup(class, modification string) (rules.Rule, error)
}

// Options configures a scheduler.
type Options struct {
	Parallelism           int
	PollInterval          time.Duration
	Isotopes              int
	MzTolerancePPM        float64
	RTPredictionTolerance float64
	MinPredictionSiblings int
	SamePeakRTTolerance   float64
}

// OptionsFromConfig maps the quantification and reconciliation sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Parallelism:           cfg.Quantification.Parallelism,
		PollInterval:          cfg.QuantPollInterval(),
		Isotopes:              cfg.Quantification.Isotopes,
		MzTolerancePPM:        cfg.Quantification.MzTolerancePPM,
		RTPredictionTolerance: cfg.Quantification.RTPredictionTolerance,
		MinPredictionSiblings: cfg.Quantification.MinPredictionSiblings,
		SamePeakRTTolerance:   cfg.Reconciliation.SamePeakRTTolerance,
	}
}

// SlotStatus reports what one slot is doing.
type SlotStatus struct {
	Index int
	Item  string
}

// Progress is a point-in-time view of a run.
type Progress struct {
	Total    int
	Finished int
	Running  int
	Waiting  int
	Deferred int
	Round    int
	Current  string
	Slots    []SlotStatus
}

// Percent returns finished items as a share of all items, 0 to 100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Finished) * 100 / float64(p.Total)
}

// Stats summarizes the two-round strategy of a finished run.
type Stats struct {
	Passes   int
	Deferred int
	Reopened int
	FellBack int
}

// Outcome is the result of a completed run.
type Outcome struct {
	Items []*lipid.Item
	State *ReconciliationState
	Stats Stats
}

// Scheduler runs quantification passes over a bounded slot pool. A scheduler
// runs one file at a time; Progress may be called from any goroutine.
type Scheduler struct {
	opts   Options
	opener chrom.Opener
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	progress Progress
}

// New constructs a scheduler.
func New(opts Options, opener chrom.Opener, policy Policy, logger *slog.Logger) *Scheduler {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Scheduler{
		opts:   opts,
		opener: opener,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "scheduler"),
	}
}

// Progress returns the latest snapshot without blocking on the run.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.progress
	out.Slots = append([]SlotStatus(nil), s.progress.Slots...)
	return out
}

// Run resolves every item against the chromatogram. Items are owned by the
// scheduler until Run returns. Any worker fault fails the whole run.
func (s *Scheduler) Run(ctx context.Context, chromPath string, items []*lipid.Item) (*Outcome, error) {
	logger := logging.WithContext(ctx, s.logger)
	r := &run{
		opts:     s.opts,
		worker:   Worker{Isotopes: s.opts.Isotopes, TolerancePPM: s.opts.MzTolerancePPM, SamePeakRTTolerance: s.opts.SamePeakRTTolerance},
		items:    items,
		byKey:    make(map[lipid.Key]*lipid.Item, len(items)),
		orders:   make(map[lipid.Key]lipid.Order, len(items)),
		fallback: make(map[lipid.Key][]lipid.Hit),
		state:    newReconciliationState(),
		round:    firstRound,
		logger:   logger,
	}
	for _, item := range items {
		if _, dup := r.byKey[item.Key]; dup {
			return nil, services.Wrap(services.ErrValidation, "quantification", "index items", "duplicate work item "+item.Key.String(), nil)
		}
		item.Status = lipid.StatusWaiting
		r.byKey[item.Key] = item
	}
	r.resolveOrders(s.policy)
	s.publish(r)

	slots, err := openSlots(ctx, s.opener, chromPath, s.opts.Parallelism)
	if err != nil {
		return nil, services.Wrap(services.ErrScheduling, "quantification", "open slots", chromPath, err)
	}
	r.slots = slots
	defer func() {
		_ = closeSlots(slots, logger)
		s.publish(r)
	}()

	logger.Info("quantification started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("items", len(items)),
		logging.Int("slots", len(slots)),
	)
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("quantification cancelled: %w", err)
		}
		if err := r.reclaim(); err != nil {
			cancel()
			logging.ErrorWithContext(logger, "analyzer search failed; abandoning run", "stage_failure",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect analyzer stderr with logging.level = \"debug\""),
			)
			return nil, err
		}
		r.dispatch(runCtx)
		s.publish(r)

		if r.idle() {
			if r.round.canDefer() && r.deferredCount() > 0 {
				r.reopen()
				r.round = reopenRound
				s.publish(r)
				continue
			}
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(s.opts.PollInterval):
		}
	}

	logger.Info("quantification completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("passes", r.stats.Passes),
		logging.Int("accepted_hits", r.state.AcceptedCount()),
		logging.Int("rejected_hits", r.state.RejectedCount()),
		logging.Int("deferred", r.stats.Deferred),
		logging.Int("reopened", r.stats.Reopened),
		logging.Duration("duration", time.Since(start)),
	)
	return &Outcome{Items: items, State: r.state, Stats: r.stats}, nil
}

func (s *Scheduler) publish(r *run) {
	p := Progress{Total: len(r.items), Round: int(r.round), Current: r.current}
	for _, item := range r.items {
		switch item.Status {
		case lipid.StatusFinished:
			p.Finished++
		case lipid.StatusRunning:
			p.Running++
		case lipid.StatusWaiting:
			p.Waiting++
		case lipid.StatusDeferred:
			p.Deferred++
		}
	}
	for _, sl := range r.slots {
		status := SlotStatus{Index: sl.index}
		if sl.item != nil {
			status.Item = sl.item.Key.String()
		}
		p.Slots = append(p.Slots, status)
	}
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

// run is the mutable state of one Scheduler.Run, touched only by its loop.
type run struct {
	opts     Options
	worker   Worker
	items    []*lipid.Item
	byKey    map[lipid.Key]*lipid.Item
	orders   map[lipid.Key]lipid.Order
	fallback map[lipid.Key][]lipid.Hit
	state    *ReconciliationState
	slots    []*slot
	round    round
	cursor   int
	current  string
	stats    Stats
	logger   *slog.Logger
}

func (r *run) resolveOrders(policy Policy) {
	type classMod struct{ class, modification string }
	resolved := make(map[classMod]lipid.Order)
	for _, item := range r.items {
		cm := classMod{item.Key.Class, item.Key.Modification}
		order, ok := resolved[cm]
		if !ok {
			order = lipid.OrderMS1First
			if policy != nil {
				rule, err := policy.Lookup(cm.class, cm.modification)
				if err != nil {
					logging.WarnWithContext(r.logger, "rule lookup failed; searching MS1-first", "rule_fallback",
						logging.String("class", cm.class),
						logging.String("modification", cm.modification),
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "fix the class rule file in paths.rules_dir"),
						logging.String(logging.FieldImpact, "hits are accepted without fragment evidence"),
					)
				} else {
					order = rule.Order
				}
			}
			resolved[cm] = order
		}
		r.orders[item.Key] = order
	}
}

// reclaim collects every finished task. The first worker fault is returned.
func (r *run) reclaim() error {
	for _, sl := range r.slots {
		if sl.free() || !sl.task.Finished() {
			continue
		}
		item := sl.item
		res, err := sl.release()
		if err != nil {
			return services.Wrap(services.ErrScheduling, "quantification", "search", item.Key.String(), err)
		}
		r.record(res)
	}
	return nil
}

// dispatch fills free slots with waiting items in insertion order.
func (r *run) dispatch(ctx context.Context) {
	for _, sl := range r.slots {
		if !sl.free() {
			continue
		}
		item := r.nextWaiting()
		if item == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		a := r.assignment(item)
		item.Status = lipid.StatusRunning
		sl.assign(ctx, r.worker, a)
		r.stats.Passes++
		r.current = item.Key.String()
		r.logger.Debug("work item dispatched",
			logging.String(logging.FieldWorkItem, item.Key.String()),
			logging.Int(logging.FieldSlot, sl.index),
			logging.String("round", a.round.String()),
			logging.Int("group", len(a.Group)),
		)
	}
}

func (r *run) nextWaiting() *lipid.Item {
	for r.cursor < len(r.items) {
		item := r.items[r.cursor]
		if item.Status == lipid.StatusWaiting {
			return item
		}
		r.cursor++
	}
	return nil
}

func (r *run) assignment(item *lipid.Item) Assignment {
	a := Assignment{
		Item:             item.Clone(),
		Group:            []*lipid.Item{item.Clone()},
		Window:           item.Window,
		RequireFragments: r.orders[item.Key] != lipid.OrderMS1First,
		round:            r.round,
	}
	if r.round != firstRound {
		return a
	}
	for _, key := range item.Alternatives {
		alt, ok := r.byKey[key]
		if !ok {
			continue
		}
		a.Group = append(a.Group, alt.Clone())
		a.Window = a.Window.Union(alt.Window)
		if r.orders[key] != lipid.OrderMS1First {
			a.RequireFragments = true
		}
	}
	return a
}

// record applies the identification policy to a finished pass. Alternatives
// are satisfied by the pass only while they are still waiting.
func (r *run) record(res WorkResult) {
	a := res.Assignment
	covered := []lipid.Key{a.Item.Key}
	if a.round == firstRound {
		for _, alt := range a.Group[1:] {
			if item := r.byKey[alt.Key]; item != nil && item.Status == lipid.StatusWaiting {
				covered = append(covered, alt.Key)
			}
		}
	}

	for _, key := range covered {
		item := r.byKey[key]
		hits := res.Hits[key]
		order := r.orders[key]

		switch {
		case a.round == reopenRound:
			if len(hits) == 0 {
				hits = hitsWithin(r.fallback[key], item.Window)
			}
			r.acceptAll(hits, res.Snapshots[key])
			item.Status = lipid.StatusFinished
		case order == lipid.OrderMSnFirst && !anyEvidence(hits) && a.round.canDefer():
			r.fallback[key] = lipid.CloneHits(hits)
			item.Status = lipid.StatusDeferred
			r.stats.Deferred++
			r.logger.Debug("work item deferred",
				logging.String(logging.FieldWorkItem, key.String()),
				logging.String(logging.FieldDecisionType, "msn_deferral"),
				logging.Int("ms1_hits", len(hits)),
			)
		case order == lipid.OrderMS1First:
			r.acceptAll(hits, res.Snapshots[key])
			item.Status = lipid.StatusFinished
		default:
			for _, hit := range hits {
				if hit.HasEvidence() {
					r.state.accept(hit)
				} else {
					r.state.reject(hit)
				}
			}
			r.keepSnapshots(hits, res.Snapshots[key])
			item.Status = lipid.StatusFinished
		}
	}
}

func (r *run) acceptAll(hits, snapshots []lipid.Hit) {
	for _, hit := range hits {
		r.state.accept(hit)
	}
	r.keepSnapshots(hits, snapshots)
}

// keepSnapshots retains originals only for split hits that were accepted.
func (r *run) keepSnapshots(hits, snapshots []lipid.Hit) {
	for _, snap := range snapshots {
		for _, hit := range hits {
			if hit.Split != nil && hit.RTKey() == snap.RTKey() {
				r.state.snapshot(snap)
				break
			}
		}
	}
}

func (r *run) idle() bool {
	for _, sl := range r.slots {
		if !sl.free() {
			return false
		}
	}
	for _, item := range r.items {
		if item.Status == lipid.StatusWaiting || item.Status == lipid.StatusRunning {
			return false
		}
	}
	return true
}

func (r *run) deferredCount() int {
	n := 0
	for _, item := range r.items {
		if item.Status == lipid.StatusDeferred {
			n++
		}
	}
	return n
}

func anyEvidence(hits []lipid.Hit) bool {
	for i := range hits {
		if hits[i].HasEvidence() {
			return true
		}
	}
	return false
}

func hitsWithin(hits []lipid.Hit, w lipid.Window) []lipid.Hit {
	var out []lipid.Hit
	for _, hit := range hits {
		if w.Contains(hit.RT) {
			out = append(out, hit.Clone())
		}
	}
	return out
}
