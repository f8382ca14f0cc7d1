package segment

import (
	"math"
	"sort"
)

// MatchKind tags the outcome of resolving a position message against
// the currently open segments.
type MatchKind int

const (
	// MatchNone means no open segment is kinematically plausible; the
	// caller should open a new segment for the message.
	MatchNone MatchKind = iota
	// MatchNoise means the message is AIS.27 and the best segment, or
	// any segment tied with it, last matched less than MinType27Hours
	// earlier (the AIS.27 noise guard); the caller should emit the
	// message as Bad.
	MatchNoise
	// MatchSingle means exactly one segment is the clear best match.
	MatchSingle
	// MatchAmbiguous means two or more segments are close enough in
	// score that the caller should close all of them and start fresh.
	MatchAmbiguous
)

// segmentMatch is the outcome of scoring one message against one
// segment: which trailing messages should be dropped in favor of the
// new message, and under what metric/hours the message matched.
type segmentMatch struct {
	segmentID string
	toDrop    []*trackedMessage
	hours     float64
	metric    float64
}

// MatchResult is the resolved outcome returned by Matcher.Resolve.
type MatchResult struct {
	Kind    MatchKind
	Single  segmentMatch
	Matches []segmentMatch // populated when Kind == MatchAmbiguous
}

// Matcher scores a candidate position message against one or more
// open segments using a motion-plausibility metric, and resolves
// ambiguity across multiple plausible segments. See SPEC_FULL.md §4.3.
type Matcher struct {
	cfg Config

	discrepancyAlpha0 float64
}

// NewMatcher builds a Matcher from cfg.
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{
		cfg:               cfg,
		discrepancyAlpha0: cfg.MaxKnots / cfg.PenaltySpeed,
	}
}

func (m *Matcher) penalizedHours(hours float64) float64 {
	return hours / (1 + math.Pow(hours/m.cfg.PenaltyHours, 1-m.cfg.HoursExp))
}

// metric turns a discrepancy (nautical miles) and raw time gap (hours)
// into a match score in (0, 1/BufferHours]; 0 means the discrepancy
// exceeds the maximum distance plausible for any vessel in that time.
func (m *Matcher) metric(disc, hours float64) float64 {
	paddedHours := math.Hypot(hours, m.cfg.BufferHours)
	maxAllowed := paddedHours * m.cfg.MaxKnots
	if disc > maxAllowed {
		return 0
	}
	alpha := m.discrepancyAlpha0 * disc / maxAllowed
	return math.Exp(-(alpha * alpha)) / paddedHours
}

// lookbackCandidate is one trailing message considered as the anchor
// for a potential match, at lookback depth k (0 = most recent). existing
// is the metric under which the message at depth k-1 was itself
// attached to the segment (0 at depth 0) — matching past it is only
// worthwhile if doing so scores strictly better than that.
type lookbackCandidate struct {
	k           int
	hours       float64
	discrepancy float64
	existing    float64
	toDrop      []*trackedMessage
}

// matchSegment scores msg against one segment, walking up to
// cfg.Lookback non-dropped trailing messages. It returns the best
// match found (metric < 0 means no feasible match), and the set of
// trailing messages that should be dropped in favor of msg if it wins.
func (m *Matcher) matchSegment(seg *Segment, msg Message) segmentMatch {
	trail := seg.reversedLookback(m.cfg.Lookback)

	var transponderClasses []TransponderClass
	candidates := make([]lookbackCandidate, 0, len(trail))
	existing := 0.0
	var toDrop []*trackedMessage
	for k, tm := range trail {
		transponderClasses = append(transponderClasses, TransponderClasses(tm.msg.Type)...)

		hours := HoursBetween(tm.msg.Time, msg.Time)
		penalized := m.penalizedHours(hours)
		disc := Discrepancy(tm.msg, msg, penalized, m.cfg.ShapeFactor)
		candidates = append(candidates, lookbackCandidate{
			k: k, hours: hours, discrepancy: disc,
			existing: existing, toDrop: append([]*trackedMessage(nil), toDrop...),
		})
		toDrop = append(toDrop, tm)
		existing = tm.metric
	}

	transponderMatch := classesOverlap(transponderClasses, TransponderClasses(msg.Type))

	best := segmentMatch{segmentID: seg.id, metric: -1}
	bestLB := 0.0

	for _, c := range candidates {
		if c.hours > m.cfg.MaxHours {
			break
		}
		metric := m.metric(c.discrepancy, c.hours)
		if metric <= 0 {
			continue
		}
		if !transponderMatch {
			metric *= m.cfg.TransponderMismatchWeight
		}
		metricLB := metric / math.Max(1, float64(c.k)*m.cfg.LookbackFactor)
		if metricLB <= c.existing {
			continue
		}
		if metricLB > bestLB {
			bestLB = metricLB
			best.metric = metric
			best.hours = c.hours
			best.toDrop = c.toDrop
		}
	}

	return best
}

// Resolve determines the best-matching segment(s) for msg among segs,
// in the given stable order. See SPEC_FULL.md §4.3 for the ambiguity
// and down-weighting rules.
func (m *Matcher) Resolve(msg Message, segs []*Segment) MatchResult {
	type scored struct {
		match  segmentMatch
		weight float64
	}

	var feasible []scored
	for _, seg := range segs {
		sm := m.matchSegment(seg, msg)
		if sm.metric < 0 {
			continue
		}
		alpha := float64(seg.MsgCount()) / m.cfg.ShortSegThreshold
		weight := sm.metric * alpha / math.Sqrt(1+alpha*alpha)
		feasible = append(feasible, scored{match: sm, weight: weight})
	}

	if len(feasible) == 0 {
		return MatchResult{Kind: MatchNone}
	}

	sort.SliceStable(feasible, func(i, j int) bool { return feasible[i].weight > feasible[j].weight })

	top := feasible[0]
	tieSet := []segmentMatch{top.match}
	for _, s := range feasible[1:] {
		if s.weight*m.cfg.AmbiguityFactor >= top.weight {
			tieSet = append(tieSet, s.match)
		}
	}

	minHours := tieSet[0].hours
	for _, s := range tieSet[1:] {
		if s.hours < minHours {
			minHours = s.hours
		}
	}

	if msg.Type == "AIS.27" && minHours < m.cfg.MinType27Hours {
		return MatchResult{Kind: MatchNoise}
	}

	if len(tieSet) > 1 {
		return MatchResult{Kind: MatchAmbiguous, Matches: tieSet}
	}
	return MatchResult{Kind: MatchSingle, Single: tieSet[0]}
}
