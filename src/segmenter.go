package segment

import (
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/lestrrat-go/strftime"
)

// MessageSource is the pull-style iterator a host provides: a
// chronologically sorted stream of messages for one SSVID. Next
// returns ok=false once the stream is exhausted, or a non-nil error
// for anything the host's own I/O layer failed on (not to be confused
// with the structural errors Process returns, which come from the
// message content itself).
type MessageSource interface {
	Next() (Message, bool, error)
}

const segmentIDPattern = "%Y-%m-%dT%H:%M:%S.%fZ"

// Segmenter is the coordinator state machine: it drives a message
// stream through MsgProcessor and Matcher, creates and closes
// segments, enforces the open-segment cap, and emits finished
// segments. See SPEC_FULL.md §4.4.
type Segmenter struct {
	cfg          Config
	matcher      *Matcher
	msgProcessor *MsgProcessor
	logger       Logger

	segments map[string]*Segment
	order    []string // insertion order, for deterministic traversal
	usedIDs  map[string]struct{}

	idFormat *strftime.Strftime

	err error
}

// NewSegmenter constructs a Segmenter from cfg. A nil logger disables
// logging entirely.
func NewSegmenter(cfg Config, logger Logger) *Segmenter {
	logger = logOrDiscard(logger)
	idFormat, err := strftime.New(segmentIDPattern)
	if err != nil {
		// segmentIDPattern is a compile-time constant; this only fails
		// if the pattern itself is rejected, and formatTimestamp then
		// falls back to time.Format.
		idFormat = nil
	}
	return &Segmenter{
		cfg:          cfg,
		matcher:      NewMatcher(cfg),
		msgProcessor: NewMsgProcessor(cfg.VerySlow, cfg.SSVID, cfg.LegacySpeedFilters, logger),
		logger:       logger,
		segments:     make(map[string]*Segment),
		usedIDs:      make(map[string]struct{}),
		idFormat:     idFormat,
	}
}

// FromStates seeds the Segmenter's open segments from a prior run's
// SegmentStates before any input is processed. Closed states are
// ignored, per SPEC_FULL.md §6.
func (sg *Segmenter) FromStates(states []SegmentState) {
	for _, state := range states {
		if state.Closed {
			continue
		}
		seg := segmentFromState(state)
		sg.segments[seg.id] = seg
		sg.order = append(sg.order, seg.id)
		sg.usedIDs[seg.id] = struct{}{}
	}
}

// Err returns the first fatal structural error encountered while
// iterating, if any. Callers should check it after the Run iterator
// is exhausted or stopped early.
func (sg *Segmenter) Err() error {
	return sg.err
}

// Run drives src to completion, emitting finished segments. Stopping
// iteration early (by returning false from the yield function)
// abandons any segments still open; it does not flush them. A
// structural error ends the stream the same way, and Err reports it.
func (sg *Segmenter) Run(src MessageSource) iter.Seq[Output] {
	return func(yield func(Output) bool) {
		for {
			msg, ok, err := src.Next()
			if err != nil {
				sg.err = err
				return
			}
			if !ok {
				break
			}
			for _, out := range sg.dispatch(msg) {
				if !yield(out) {
					return
				}
			}
			if sg.err != nil {
				return
			}
		}
		for _, out := range sg.flush() {
			if !yield(out) {
				return
			}
		}
	}
}

// dispatch classifies and routes a single message, per the table in
// SPEC_FULL.md §4.4.
func (sg *Segmenter) dispatch(msg Message) []Output {
	class, skip, err := sg.msgProcessor.Process(msg)
	if err != nil {
		sg.err = err
		return nil
	}
	if skip {
		return nil
	}

	switch class {
	case ClassBad:
		return []Output{sg.wrapSingleton(msg, VariantBad)}
	case ClassInfoOnly:
		return []Output{sg.wrapSingleton(msg, VariantInfo)}
	case ClassPosition:
		return sg.processPosition(msg)
	default:
		return nil
	}
}

// wrapSingleton emits a message standalone, without identity
// annotation — Bad/Info/Noise messages never pass through cleanSegment
// (SPEC_FULL.md §4.4, grounded on the teacher pipeline's
// _process_bad_msg / _process_info_only_msg).
func (sg *Segmenter) wrapSingleton(msg Message, variant Variant) Output {
	return Output{ID: sg.newSegmentID(msg), SSVID: msg.SSVID, Variant: variant, Messages: []Message{msg}}
}

func (sg *Segmenter) processPosition(msg Message) []Output {
	if len(sg.segments) == 0 {
		return sg.addSegment(msg)
	}

	var out []Output
	out = append(out, sg.finalizeOldSegments(msg)...)

	segs := sg.openSegments()
	result := sg.matcher.Resolve(msg, segs)

	switch result.Kind {
	case MatchNone:
		out = append(out, sg.addSegment(msg)...)
	case MatchNoise:
		out = append(out, sg.wrapSingleton(msg, VariantBad))
	case MatchAmbiguous:
		for _, m := range result.Matches {
			seg := sg.segments[m.segmentID]
			sg.removeSegment(m.segmentID)
			out = append(out, sg.cleanSegment(seg, VariantAmbiguousClosed)...)
		}
		out = append(out, sg.addSegment(msg)...)
	case MatchSingle:
		sg.applyMatch(msg, result.Single)
	}
	return out
}

func (sg *Segmenter) applyMatch(msg Message, m segmentMatch) {
	for _, tm := range m.toDrop {
		tm.drop = true
	}
	seg := sg.segments[m.segmentID]
	seg.addMsg(msg)
	seg.msgs[len(seg.msgs)-1].metric = m.metric
}

// finalizeOldSegments closes every open segment whose last message is
// older than cfg.MaxHours relative to msg.
func (sg *Segmenter) finalizeOldSegments(msg Message) []Output {
	var out []Output
	for _, id := range append([]string(nil), sg.order...) {
		seg, ok := sg.segments[id]
		if !ok {
			continue
		}
		if HoursBetween(seg.LastMsg().Time, msg.Time) > sg.cfg.MaxHours {
			sg.removeSegment(id)
			out = append(out, sg.cleanSegment(seg, VariantClosed)...)
		}
	}
	return out
}

// addSegment evicts segments over the open-segment cap, then opens a
// new one for msg.
func (sg *Segmenter) addSegment(msg Message) []Output {
	out := sg.removeExcessSegments()
	seg := newSegment(sg.newSegmentID(msg), msg.SSVID)
	seg.addMsg(msg)
	sg.segments[seg.id] = seg
	sg.order = append(sg.order, seg.id)
	return out
}

// removeExcessSegments closes the stalest open segments until the
// open count is below cfg.MaxOpenSegments, so that adding one more
// segment never exceeds the cap.
func (sg *Segmenter) removeExcessSegments() []Output {
	var out []Output
	for len(sg.segments) >= sg.cfg.MaxOpenSegments {
		stalest := sg.stalestSegmentID()
		seg := sg.segments[stalest]
		sg.removeSegment(stalest)
		out = append(out, sg.cleanSegment(seg, VariantClosed)...)
	}
	return out
}

// stalestSegmentID picks the open segment with the oldest last
// message, breaking ties by msgid, then course, then speed for
// determinism (SPEC_FULL.md §4.4).
func (sg *Segmenter) stalestSegmentID() string {
	segs := sg.openSegments()
	sort.SliceStable(segs, func(i, j int) bool {
		a, b := segs[i].LastMsg(), segs[j].LastMsg()
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.MsgID != b.MsgID {
			return a.MsgID < b.MsgID
		}
		if c := cmpNaNLast(a.Course, b.Course); c != 0 {
			return c < 0
		}
		return cmpNaNLast(a.Speed, b.Speed) < 0
	})
	return segs[0].id
}

func cmpNaNLast(a, b float64) int {
	aNaN, bNaN := isNullFloat(a), isNullFloat(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// openSegments returns the currently open segments in insertion
// order.
func (sg *Segmenter) openSegments() []*Segment {
	segs := make([]*Segment, 0, len(sg.order))
	for _, id := range sg.order {
		if seg, ok := sg.segments[id]; ok {
			segs = append(segs, seg)
		}
	}
	return segs
}

func (sg *Segmenter) removeSegment(id string) {
	delete(sg.segments, id)
	for i, oid := range sg.order {
		if oid == id {
			sg.order = append(sg.order[:i], sg.order[i+1:]...)
			break
		}
	}
}

// cleanSegment rebuilds seg for emission: every retained message is
// annotated with nearby identity information, and any message marked
// drop by lookback correction is peeled off as its own Discarded
// singleton instead.
func (sg *Segmenter) cleanSegment(seg *Segment, variant Variant) []Output {
	var out []Output
	live := make([]Message, 0, len(seg.msgs))

	for _, tm := range seg.msgs {
		msg := tm.msg
		msg.Identities, msg.Destinations = sg.msgProcessor.Annotate(msg)

		if tm.drop {
			out = append(out, Output{ID: sg.newSegmentID(msg), SSVID: seg.ssvid, Variant: VariantDiscarded, Messages: []Message{msg}})
			continue
		}
		live = append(live, msg)
	}

	out = append(out, Output{ID: seg.id, SSVID: seg.ssvid, Variant: variant, Messages: live})
	return out
}

// flush closes and emits every remaining open segment at end of
// stream, in insertion order.
func (sg *Segmenter) flush() []Output {
	var out []Output
	for _, id := range append([]string(nil), sg.order...) {
		seg, ok := sg.segments[id]
		if !ok {
			continue
		}
		sg.removeSegment(id)
		out = append(out, sg.cleanSegment(seg, VariantClosed)...)
	}
	return out
}

func (sg *Segmenter) newSegmentID(msg Message) string {
	base := fmt.Sprintf("%d-%s", msg.SSVID, sg.formatTimestamp(msg.Time))
	for ndx := 1; ; ndx++ {
		id := fmt.Sprintf("%s-%d", base, ndx)
		if _, used := sg.usedIDs[id]; !used {
			sg.usedIDs[id] = struct{}{}
			return id
		}
	}
}

func (sg *Segmenter) formatTimestamp(t time.Time) string {
	if sg.idFormat == nil {
		return t.UTC().Format("2006-01-02T15:04:05.000000Z")
	}
	return sg.idFormat.FormatString(t.UTC())
}
