package core

import (
	"sort"
	"time"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// WINDOWS - Candidate window merge and padding
// ═══════════════════════════════════════════════════════════════════════════════

// MergeSlack lets windows separated by at most this gap coalesce
const MergeSlack = time.Second

// MergeWindows sorts by (setup, start) and coalesces same-setup windows that
// overlap or sit within MergeSlack of each other
func MergeWindows(windows []types.CandidateWindow) []types.CandidateWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := append([]types.CandidateWindow(nil), windows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SetupID != sorted[j].SetupID {
			return sorted[i].SetupID < sorted[j].SetupID
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := []types.CandidateWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &out[len(out)-1]
		if w.SetupID == last.SetupID && !w.Start.After(last.End.Add(MergeSlack)) {
			last.End = maxTime(last.End, w.End)
			if last.BarStart.IsZero() || (!w.BarStart.IsZero() && w.BarStart.Before(last.BarStart)) {
				last.BarStart = w.BarStart
			}
			last.BarEnd = maxTime(last.BarEnd, w.BarEnd)
			continue
		}
		out = append(out, w)
	}
	return out
}

// PadWindow widens w by pad on both sides without leaving bounds.
// ok is false when nothing scannable remains.
func PadWindow(w types.CandidateWindow, pad time.Duration, bounds types.TimeRange) (types.CandidateWindow, bool) {
	if pad < 0 {
		pad = 0
	}
	w.Start = maxTime(w.Start.Add(-pad), bounds.Start)
	w.End = minTime(w.End.Add(pad), bounds.End)
	return w, w.End.After(w.Start)
}

// Uncovered returns the parts of bounds that no bar spans, in order
func Uncovered(bounds types.TimeRange, bars []types.RateBar) []types.TimeRange {
	if bounds.Empty() {
		return nil
	}
	var spans []types.TimeRange
	for _, b := range bars {
		if clip := intersect(types.TimeRange{Start: b.Start, End: b.End}, bounds); !clip.Empty() {
			spans = append(spans, clip)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })

	var out []types.TimeRange
	cur := bounds.Start
	for _, sp := range spans {
		if sp.Start.After(cur) {
			out = append(out, types.TimeRange{Start: cur, End: sp.Start})
		}
		cur = maxTime(cur, sp.End)
	}
	if bounds.End.After(cur) {
		out = append(out, types.TimeRange{Start: cur, End: bounds.End})
	}
	return out
}

// intersect returns a ∩ b, empty when they do not overlap
func intersect(a, b types.TimeRange) types.TimeRange {
	return types.TimeRange{Start: maxTime(a.Start, b.Start), End: minTime(a.End, b.End)}
}
