// Package segment implements the streaming trajectory segmenter: it
// partitions a chronologically sorted stream of vessel position and
// identity messages, tagged with a possibly-shared Source-Specific
// Vessel Identifier (SSVID), into maximal contiguous subsequences that
// are kinematically consistent with a single vessel.
package segment

import (
	"math"
	"time"
)

// Message is a single input record. Optional numeric fields that were
// not reported carry math.NaN(); optional string fields carry "".
// Messages are treated as immutable once read: the segmenter never
// mutates a Message in place, and instead tracks the drop/metric
// bookkeeping described in trackedMessage alongside it.
type Message struct {
	MsgID  string
	SSVID  int64
	Time   time.Time
	Type   string // e.g. "AIS.1", "AIS.5", "AIS.27", "VMS"

	Lon     float64
	Lat     float64
	Course  float64 // degrees, 0 = north, clockwise
	Speed   float64 // knots
	Heading float64

	ShipName     string
	CallSign     string
	IMO          string
	Destination  string
	Length       float64
	Width        float64
	ReceiverType string
	Source       string

	// Identities/Destinations are filled in by MsgProcessor.Annotate
	// when a finished segment is cleaned; they hold counted multisets
	// of identity information observed near this message's timestamp.
	Identities   map[IdentityKey]int
	Destinations map[DestinationKey]int
}

func isNullFloat(v float64) bool {
	return math.IsNaN(v)
}

// TransponderClass is the coarse class of transponder that produced a
// position fix: A and B are the two classes of shipborne AIS
// transponder, VMS is a vessel monitoring system ping.
type TransponderClass string

const (
	TransponderA   TransponderClass = "AIS-A"
	TransponderB   TransponderClass = "AIS-B"
	TransponderVMS TransponderClass = "VMS"
)

// positionTransponderClasses maps a position message type to the set
// of transponder classes it could plausibly have come from. AIS.27 is
// the long-range, low-resolution broadcast and is receivable from
// either class of shipborne transponder.
var positionTransponderClasses = map[string][]TransponderClass{
	"AIS.1":  {TransponderA},
	"AIS.2":  {TransponderA},
	"AIS.3":  {TransponderA},
	"AIS.18": {TransponderB},
	"AIS.19": {TransponderB},
	"AIS.27": {TransponderA, TransponderB},
	"VMS":    {TransponderVMS},
}

// infoTransponderClass maps an info-bearing message type to the single
// transponder class that field originates from, for identity-cache
// bucketing.
var infoTransponderClass = map[string]TransponderClass{
	"AIS.5":  TransponderA,
	"AIS.19": TransponderB,
	"AIS.24": TransponderB,
	"VMS":    TransponderVMS,
}

// TransponderClasses returns the set of transponder classes a message
// of m's type could have come from. Returns nil for types that carry
// no position (e.g. AIS.5).
func TransponderClasses(msgType string) []TransponderClass {
	return positionTransponderClasses[msgType]
}

func classesOverlap(a, b []TransponderClass) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// IdentityKey is a counted-multiset key for shipname/callsign/IMO
// identity fields observed close in time to a position.
type IdentityKey struct {
	ShipName        string
	CallSign        string
	IMO             string
	TransponderType TransponderClass
	Length          float64
	Width           float64
}

// DestinationKey is a counted-multiset key for the reported
// destination field.
type DestinationKey struct {
	Destination string
}

// MessageClass is the result of classifying a raw Message.
type MessageClass int

const (
	// ClassBad messages failed validation and are emitted as a
	// singleton Bad segment.
	ClassBad MessageClass = iota
	// ClassInfoOnly messages carry no position but may carry identity
	// fields; they are emitted as a singleton Info segment.
	ClassInfoOnly
	// ClassPosition messages carry a usable lat/lon/speed fix and are
	// dispatched to the matcher.
	ClassPosition
)

func (c MessageClass) String() string {
	switch c {
	case ClassBad:
		return "bad"
	case ClassInfoOnly:
		return "info_only"
	case ClassPosition:
		return "position"
	default:
		return "unknown"
	}
}

// trackedMessage wraps a Message with the two pieces of bookkeeping
// the segmenter needs to attach without mutating the caller's record:
// whether lookback correction has marked it for exclusion, and the
// match metric under which it was appended. See SPEC_FULL.md §9 and
// DESIGN.md: a side record instead of in-band flags on Message.
type trackedMessage struct {
	msg    Message
	drop   bool
	metric float64
}
