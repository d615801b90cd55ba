package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUIET HOURS - Rollover and weekend blackout windows
// ═══════════════════════════════════════════════════════════════════════════════
//
// Default: 23:45 -> 00:59 UTC+3 every night, plus Friday 23:45 -> Monday
// 00:59 UTC+3 for everything except crypto.
//
// ═══════════════════════════════════════════════════════════════════════════════

// QuietHoursFilter returns the active (scannable) parts of [start, end)
type QuietHoursFilter interface {
	ActiveRanges(start, end time.Time, class types.AssetClass, symbol string) []types.TimeRange
}

// NoQuietHours treats every instant as active
type NoQuietHours struct{}

func (NoQuietHours) ActiveRanges(start, end time.Time, _ types.AssetClass, _ string) []types.TimeRange {
	if !end.After(start) {
		return nil
	}
	return []types.TimeRange{{Start: start, End: end}}
}

// Clock is a wall-clock time of day
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c Clock) after(o Clock) bool {
	return c.Hour > o.Hour || (c.Hour == o.Hour && c.Minute > o.Minute)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// QuietWindow is a daily interval, possibly spanning midnight
type QuietWindow struct {
	Start Clock
	End   Clock
}

// WeeklyBlock is a recurring multi-day interval
type WeeklyBlock struct {
	StartDay time.Weekday
	Start    Clock
	EndDay   time.Weekday
	End      Clock
}

// QuietSchedule is the default QuietHoursFilter
type QuietSchedule struct {
	Location *time.Location
	Windows  []QuietWindow
	Weekend  *WeeklyBlock // skipped for crypto
}

// UTCPlus3 is the zone the default windows are defined in
var UTCPlus3 = time.FixedZone("UTC+3", 3*3600)

// DefaultQuietSchedule returns the nightly rollover plus weekend schedule
func DefaultQuietSchedule() *QuietSchedule {
	nightly := QuietWindow{Start: Clock{23, 45}, End: Clock{0, 59}}
	return &QuietSchedule{
		Location: UTCPlus3,
		Windows:  []QuietWindow{nightly},
		Weekend: &WeeklyBlock{
			StartDay: time.Friday,
			Start:    nightly.Start,
			EndDay:   time.Monday,
			End:      nightly.End,
		},
	}
}

// ParseQuietWindows parses "23:45-00:59,12:00-12:30"
func ParseQuietWindows(s string) ([]QuietWindow, error) {
	var out []QuietWindow
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("%w: quiet window %q", types.ErrConfig, part)
		}
		start, err := parseClock(from)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(to)
		if err != nil {
			return nil, err
		}
		out = append(out, QuietWindow{Start: start, End: end})
	}
	return out, nil
}

func parseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("%w: clock %q", types.ErrConfig, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("%w: clock %q", types.ErrConfig, s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (q *QuietSchedule) loc() *time.Location {
	if q.Location == nil {
		return time.UTC
	}
	return q.Location
}

// intervals returns merged quiet intervals in UTC intersecting [start, end)
func (q *QuietSchedule) intervals(start, end time.Time, class types.AssetClass) []types.TimeRange {
	loc := q.loc()
	startLocal := start.In(loc)
	endLocal := end.In(loc)
	first := time.Date(startLocal.Year(), startLocal.Month(), startLocal.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	last := time.Date(endLocal.Year(), endLocal.Month(), endLocal.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	weekend := q.Weekend != nil && class != types.AssetCrypto
	if weekend {
		first = first.AddDate(0, 0, -7)
	}

	var raw []types.TimeRange
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, w := range q.Windows {
			qs := w.Start.on(day)
			qe := w.End.on(day)
			if w.Start.after(w.End) {
				qe = w.End.on(day.AddDate(0, 0, 1))
			}
			raw = append(raw, types.TimeRange{Start: qs.UTC(), End: qe.UTC()})
		}
		if weekend && day.Weekday() == q.Weekend.StartDay {
			span := (int(q.Weekend.EndDay) - int(q.Weekend.StartDay) + 7) % 7
			qs := q.Weekend.Start.on(day)
			qe := q.Weekend.End.on(day.AddDate(0, 0, span))
			raw = append(raw, types.TimeRange{Start: qs.UTC(), End: qe.UTC()})
		}
	}

	var clipped []types.TimeRange
	for _, r := range raw {
		if !r.End.After(start) || !r.Start.Before(end) {
			continue
		}
		r.Start = maxTime(r.Start, start)
		r.End = minTime(r.End, end)
		if r.Empty() {
			continue
		}
		clipped = append(clipped, r)
	}
	return mergeRanges(clipped)
}

// QuietRanges returns the quiet parts of [start, end)
func (q *QuietSchedule) QuietRanges(start, end time.Time, class types.AssetClass) []types.TimeRange {
	if !end.After(start) {
		return nil
	}
	return q.intervals(start.UTC(), end.UTC(), class)
}

func (q *QuietSchedule) ActiveRanges(start, end time.Time, class types.AssetClass, _ string) []types.TimeRange {
	if !end.After(start) {
		return nil
	}
	start, end = start.UTC(), end.UTC()
	var active []types.TimeRange
	cursor := start
	for _, r := range q.intervals(start, end, class) {
		if cursor.Before(r.Start) {
			active = append(active, types.TimeRange{Start: cursor, End: r.Start})
		}
		cursor = maxTime(cursor, r.End)
	}
	if cursor.Before(end) {
		active = append(active, types.TimeRange{Start: cursor, End: end})
	}
	return active
}

// horizon bounds the lookaround used by IsQuiet and NextTransition
const horizon = 9 * 24 * time.Hour

// IsQuiet reports whether t falls inside a quiet interval
func (q *QuietSchedule) IsQuiet(t time.Time, class types.AssetClass) bool {
	t = t.UTC()
	for _, r := range q.intervals(t.Add(-horizon), t.Add(horizon), class) {
		if !t.Before(r.Start) && t.Before(r.End) {
			return true
		}
	}
	return false
}

// NextTransition returns the next instant the quiet state flips, or t when
// the schedule has no windows
func (q *QuietSchedule) NextTransition(t time.Time, class types.AssetClass) time.Time {
	t = t.UTC()
	var next time.Time
	for _, r := range q.intervals(t.Add(-horizon), t.Add(horizon), class) {
		for _, c := range []time.Time{r.Start, r.End} {
			if c.After(t) && (next.IsZero() || c.Before(next)) {
				next = c
			}
		}
	}
	if next.IsZero() {
		return t
	}
	return next
}

// mergeRanges sorts and coalesces overlapping or touching ranges
func mergeRanges(in []types.TimeRange) []types.TimeRange {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })
	out := []types.TimeRange{in[0]}
	for _, r := range in[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End) {
			last.End = maxTime(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
