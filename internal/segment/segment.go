// Package segment builds speech utterances from a word stream and groups
// them into non-overlapping clip plans, per SPEC_FULL.md §4.6.
package segment

import (
	"sort"
	"strings"

	"github.com/clipforge/shorts-worker/internal/models"
)

const (
	interWordPause   = 0.55
	maxUtteranceSpan = 12.0
	snapWindow       = 0.15
)

var terminalPunctuation = map[byte]bool{'.': true, '!': true, '?': true}

// Tuning bundles the four constants that govern clip-plan building. Callers
// normally populate this from config.Config's Clip{Min,Target,Max}Seconds
// and MaxGapMerge fields.
type Tuning struct {
	MinSeconds    float64
	TargetSeconds float64
	MaxSeconds    float64
	MaxGapMerge   float64
}

// BuildUtterances groups a flat, time-ordered word stream into utterances,
// starting a new one on an inter-word pause ≥ 0.55s, an utterance already
// ≥ 12s long, or the previous word ending in terminal punctuation.
func BuildUtterances(words []models.Word) []models.Utterance {
	var utterances []models.Utterance
	var cur models.Utterance
	open := false

	for _, w := range words {
		if !open {
			cur = models.Utterance{Start: w.Start, End: w.End, Words: []models.Word{w}}
			open = true
			continue
		}

		last := cur.Words[len(cur.Words)-1]
		pause := w.Start - last.End
		span := cur.End - cur.Start
		endsTerminal := endsInTerminalPunctuation(last.Text)

		if pause >= interWordPause || span >= maxUtteranceSpan || endsTerminal {
			utterances = append(utterances, cur)
			cur = models.Utterance{Start: w.Start, End: w.End, Words: []models.Word{w}}
			continue
		}

		cur.End = w.End
		cur.Words = append(cur.Words, w)
	}
	if open {
		utterances = append(utterances, cur)
	}
	return utterances
}

func endsInTerminalPunctuation(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, "…") {
		return true
	}
	return terminalPunctuation[text[len(text)-1]]
}

// BuildPlans groups utterances into clip plans using t, snapping flush
// boundaries to nearby silence edges, discarding undersized clips, chopping
// oversized ones, and guaranteeing a single fallback plan spanning
// [0, min(videoDuration, t.TargetSeconds)] when nothing else survives.
func BuildPlans(utterances []models.Utterance, silences []models.Interval, t Tuning, videoDuration float64) []models.ClipPlan {
	var plans []models.ClipPlan
	var acc []models.Utterance

	flush := func() {
		if len(acc) == 0 {
			return
		}
		plan := flushPlan(acc, silences, t.MaxSeconds)
		acc = nil
		if plan.Duration() < t.MinSeconds {
			return
		}
		plans = append(plans, chopOversized(plan, t)...)
	}

	for _, u := range utterances {
		if len(acc) == 0 {
			acc = append(acc, u)
			continue
		}
		last := acc[len(acc)-1]
		gap := u.Start - last.End
		proposedDuration := u.End - acc[0].Start
		if proposedDuration <= t.MaxSeconds && gap <= t.MaxGapMerge {
			acc = append(acc, u)
			continue
		}
		flush()
		acc = append(acc, u)
	}
	flush()

	if len(plans) == 0 {
		end := videoDuration
		if t.TargetSeconds < end {
			end = t.TargetSeconds
		}
		if end <= 0 {
			end = t.TargetSeconds
		}
		plans = append(plans, models.ClipPlan{Start: 0, End: end})
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Start < plans[j].Start })
	return plans
}

func flushPlan(acc []models.Utterance, silences []models.Interval, maxSeconds float64) models.ClipPlan {
	start := acc[0].Start
	end := acc[len(acc)-1].End

	start = snapStartToSilence(start, silences)
	end = snapEndToSilence(end, silences)
	if end-start > maxSeconds {
		end = start + maxSeconds
	}

	var words []models.Word
	for _, u := range acc {
		words = append(words, u.Words...)
	}
	return models.ClipPlan{Start: start, End: end, Words: words}
}

// snapStartToSilence moves start back to the end of a silence interval that
// ends at most snapWindow before it, per §4.6's "snap to silence edges" rule.
func snapStartToSilence(start float64, silences []models.Interval) float64 {
	for _, s := range silences {
		if s.End <= start && start-s.End <= snapWindow {
			return s.End
		}
	}
	return start
}

// snapEndToSilence moves end forward to the start of a silence interval that
// begins at most snapWindow after it.
func snapEndToSilence(end float64, silences []models.Interval) float64 {
	for _, s := range silences {
		if s.Start >= end && s.Start-end <= snapWindow {
			return s.Start
		}
	}
	return end
}

// chopOversized splits a plan longer than t.MaxSeconds into consecutive
// MAX-length sub-clips, discarding any remainder shorter than t.MinSeconds.
func chopOversized(plan models.ClipPlan, t Tuning) []models.ClipPlan {
	if plan.Duration() <= t.MaxSeconds {
		return []models.ClipPlan{plan}
	}

	var out []models.ClipPlan
	cursor := plan.Start
	for cursor < plan.End {
		segEnd := cursor + t.MaxSeconds
		if segEnd > plan.End {
			segEnd = plan.End
		}
		if segEnd-cursor >= t.MinSeconds {
			out = append(out, models.ClipPlan{
				Start: cursor,
				End:   segEnd,
				Words: wordsInSpan(plan.Words, cursor, segEnd),
			})
		}
		cursor = segEnd
	}
	return out
}

func wordsInSpan(words []models.Word, start, end float64) []models.Word {
	var out []models.Word
	for _, w := range words {
		if w.Start >= start && w.End <= end {
			out = append(out, w)
		}
	}
	return out
}
