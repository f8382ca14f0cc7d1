package segment

// SegmentState is a resumable snapshot of an in-progress segment,
// sufficient to restart matching in a later run without retaining the
// full message history (SPEC_FULL.md §3).
type SegmentState struct {
	ID        string
	SSVID     int64
	FirstMsg  Message
	LastMsg   Message
	MsgCount  int
	Closed    bool
}

// Segment is an ordered, append-only sequence of messages sharing one
// SSVID, optionally continuing from a prior run's SegmentState.
type Segment struct {
	id    string
	ssvid int64

	msgs []trackedMessage

	prevState   *SegmentState
	prevSegment *Segment // synthetic two-message tail built from prevState, for lookback continuity
}

func newSegment(id string, ssvid int64) *Segment {
	return &Segment{id: id, ssvid: ssvid}
}

// segmentFromState reconstructs an open Segment from a prior run's
// SegmentState. The returned segment has no messages of its own yet;
// prevSegment carries just enough of the prior tail (its first and
// last message) for the Matcher's lookback to see across the resume
// boundary, mirroring the teacher pipeline's Segment.from_state.
func segmentFromState(state SegmentState) *Segment {
	seg := newSegment(state.ID, state.SSVID)
	seg.prevState = &state

	prev := newSegment(state.ID, state.SSVID)
	prev.msgs = []trackedMessage{{msg: state.FirstMsg}, {msg: state.LastMsg}}
	seg.prevSegment = prev

	return seg
}

func (s *Segment) ID() string   { return s.id }
func (s *Segment) SSVID() int64 { return s.ssvid }

// MsgCount is the total number of messages in this segment, including
// any inherited from a prior run's state.
func (s *Segment) MsgCount() int {
	n := len(s.msgs)
	if s.prevState != nil {
		n += s.prevState.MsgCount
	}
	return n
}

// FirstMsg returns the earliest message attributed to this segment,
// including across a resume boundary.
func (s *Segment) FirstMsg() Message {
	if s.prevState != nil {
		return s.prevState.FirstMsg
	}
	if len(s.msgs) > 0 {
		return s.msgs[0].msg
	}
	return Message{}
}

// LastMsg returns the most recently appended message, or the prior
// run's last message if nothing has been appended yet.
func (s *Segment) LastMsg() Message {
	if len(s.msgs) > 0 {
		return s.msgs[len(s.msgs)-1].msg
	}
	if s.prevState != nil {
		return s.prevState.LastMsg
	}
	return Message{}
}

func (s *Segment) addMsg(msg Message) {
	s.msgs = append(s.msgs, trackedMessage{msg: msg})
}

// state captures a resumable snapshot of this segment.
func (s *Segment) state(closed bool) SegmentState {
	return SegmentState{
		ID:       s.id,
		SSVID:    s.ssvid,
		FirstMsg: s.FirstMsg(),
		LastMsg:  s.LastMsg(),
		MsgCount: s.MsgCount(),
		Closed:   closed,
	}
}

// reversedLookback returns up to lookback non-dropped trailing
// messages (most recent first), dipping into the segment's prevSegment
// tail once the segment's own messages are exhausted. This mirrors
// Segment.get_all_reversed_msgs combined with the Matcher's own
// bookkeeping in the teacher pipeline: candidates are capped both by
// lookback and by a budget of len(s.msgs) emitted messages plus one,
// so with no dropped messages the dip is one message into prevSegment,
// and each dropped own message allows one more. The n budget only ticks down for messages actually
// emitted, never for dropped ones: get_all_reversed_msgs filters drops
// out of its own msgs before they ever reach the caller's n -= 1.
func (s *Segment) reversedLookback(lookback int) []*trackedMessage {
	var out []*trackedMessage
	n := len(s.msgs)

	emit := func(list []trackedMessage) bool {
		for i := len(list) - 1; i >= 0; i-- {
			tm := &list[i]
			if tm.drop {
				continue
			}
			n--
			out = append(out, tm)
			if len(out) >= lookback || n < 0 {
				return true
			}
		}
		return false
	}

	if emit(s.msgs) {
		return out
	}
	if s.prevSegment != nil {
		emit(s.prevSegment.msgs)
	}
	return out
}

// Variant tags the reason a segment was finalized and emitted.
type Variant int

const (
	VariantOpen Variant = iota
	VariantClosed
	VariantBad
	VariantInfo
	VariantDiscarded
	VariantAmbiguousClosed
)

func (v Variant) String() string {
	switch v {
	case VariantOpen:
		return "open"
	case VariantClosed:
		return "closed"
	case VariantBad:
		return "bad"
	case VariantInfo:
		return "info"
	case VariantDiscarded:
		return "discarded"
	case VariantAmbiguousClosed:
		return "ambiguous_closed"
	default:
		return "unknown"
	}
}

// Output is a finished segment as delivered to the caller: its
// variant tag plus the (already identity-annotated) messages it
// contains.
type Output struct {
	ID       string
	SSVID    int64
	Variant  Variant
	Messages []Message
}

func (o Output) FirstMsg() Message {
	if len(o.Messages) == 0 {
		return Message{}
	}
	return o.Messages[0]
}

func (o Output) LastMsg() Message {
	if len(o.Messages) == 0 {
		return Message{}
	}
	return o.Messages[len(o.Messages)-1]
}

func (o Output) MsgCount() int { return len(o.Messages) }
