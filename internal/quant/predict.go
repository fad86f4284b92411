package quant

import (
	"errors"
	"sort"

	"lipidquant/internal/lipid"
	"lipidquant/internal/logging"
	"lipidquant/internal/rtpredict"
)

type classModification struct {
	class        string
	modification string
}

func groupOf(key lipid.Key) classModification {
	return classModification{class: key.Class, modification: key.Modification}
}

// reopen ends the first round. Deferred items with a usable predicted
// retention time go back to waiting with a window around the prediction; the
// rest are resolved with the MS1 hits their first pass found.
func (r *run) reopen() {
	models := make(map[classModification]*rtpredict.Model)
	fitErrs := make(map[classModification]error)
	points := r.siblingPoints()

	for _, item := range r.items {
		if item.Status != lipid.StatusDeferred {
			continue
		}
		group := groupOf(item.Key)
		if _, seen := models[group]; !seen && fitErrs[group] == nil {
			model, err := rtpredict.Fit(points[group], r.opts.MinPredictionSiblings)
			if err != nil {
				fitErrs[group] = err
			} else {
				models[group] = &model
			}
		}

		reason := ""
		predicted := 0.0
		switch model := models[group]; {
		case model == nil:
			reason = "insufficient siblings"
			if err := fitErrs[group]; err != nil && !errors.Is(err, rtpredict.ErrInsufficient) {
				reason = err.Error()
			}
		case !item.HasComposition:
			reason = "analyte has no composition"
		default:
			predicted = model.Predict(item.Carbon, item.DoubleBonds)
			if !rtpredict.Usable(predicted, item.Window.Start, item.Window.Stop) {
				reason = "prediction outside search window"
			}
		}

		if reason != "" {
			r.acceptAll(r.fallback[item.Key], nil)
			item.Status = lipid.StatusFinished
			r.stats.FellBack++
			r.logger.Debug("deferred item resolved with MS1 evidence",
				logging.String(logging.FieldWorkItem, item.Key.String()),
				logging.String(logging.FieldDecisionType, "rt_prediction"),
				logging.String("decision_result", "fallback"),
				logging.String("decision_reason", reason),
			)
			continue
		}

		item.Window = lipid.Around(predicted, r.opts.RTPredictionTolerance)
		item.Status = lipid.StatusWaiting
		r.stats.Reopened++
		r.logger.Debug("deferred item reopened",
			logging.String(logging.FieldWorkItem, item.Key.String()),
			logging.String(logging.FieldDecisionType, "rt_prediction"),
			logging.String("decision_result", "reopen"),
			logging.Float64("predicted_rt", predicted),
			logging.String("window", item.Window.String()),
		)
	}

	r.cursor = 0
	r.logger.Info("second scheduling round",
		logging.String(logging.FieldEventType, "deferred_reopen"),
		logging.Int("reopened", r.stats.Reopened),
		logging.Int("fell_back", r.stats.FellBack),
	)
}

// siblingPoints collects, per class and modification, the retention time of
// the best evidence-backed hit of every finished item with a known
// composition.
func (r *run) siblingPoints() map[classModification][]rtpredict.Point {
	accepted := r.state.accepted
	out := make(map[classModification][]rtpredict.Point)
	for _, item := range r.items {
		if item.Status != lipid.StatusFinished || !item.HasComposition {
			continue
		}
		best, ok := bestEvidenceHit(accepted[item.Key])
		if !ok {
			continue
		}
		group := groupOf(item.Key)
		out[group] = append(out[group], rtpredict.Point{
			Carbon:      item.Carbon,
			DoubleBonds: item.DoubleBonds,
			RT:          best.RT,
		})
	}
	return out
}

func bestEvidenceHit(byRT map[int64]lipid.Hit) (lipid.Hit, bool) {
	rts := make([]int64, 0, len(byRT))
	for rt := range byRT {
		rts = append(rts, rt)
	}
	sort.Slice(rts, func(i, j int) bool { return rts[i] < rts[j] })

	var best lipid.Hit
	found := false
	for _, rt := range rts {
		hit := byRT[rt]
		if !hit.HasEvidence() {
			continue
		}
		if !found || hit.Coverage() > best.Coverage() || (hit.Coverage() == best.Coverage() && hit.Area > best.Area) {
			best = hit
			found = true
		}
	}
	return best, found
}
