package segment

import (
	"math"
	"time"
)

// missingMarker stands in for an absent rounded course/heading value
// in a normalizedLocation key; real rounded values never collide with
// it because course and heading are bounded to [0, 360).
const missingMarker = math.MinInt64

// normalizedLocation is a coarse-grained key used to recognize
// repeated identical position reports: lat/lon rounded to 1/60000 of a
// degree (about 1.8 m), course to 0.1 degree, speed to 0.1 knot.
type normalizedLocation struct {
	lat, lon int64
	course   int64 // missingMarker if course was NaN
	speed    int64
	heading  int64 // missingMarker if heading was NaN
}

func roundInt64(v float64) int64 {
	return int64(math.Round(v))
}

func extractNormalizedLocation(msg Message) normalizedLocation {
	loc := normalizedLocation{
		lat:   roundInt64(msg.Lat * 60000),
		lon:   roundInt64(msg.Lon * 60000),
		speed: roundInt64(msg.Speed * 10),
	}
	if isNullFloat(msg.Course) {
		loc.course = missingMarker
	} else {
		loc.course = roundInt64(msg.Course * 10)
	}
	if isNullFloat(msg.Heading) {
		loc.heading = missingMarker
	} else {
		loc.heading = roundInt64(msg.Heading)
	}
	return loc
}

// MsgProcessor validates, deduplicates, classifies messages from a
// single SSVID's stream, and maintains the identity cache used to
// annotate position messages with nearby identity information.
type MsgProcessor struct {
	verySlow           float64
	ssvid              int64
	haveSSVID          bool
	legacySpeedFilters bool

	seenMsgIDs   map[string]time.Time
	seenLocation map[normalizedLocation]time.Time
	cache        *identityCache

	prevTimestamp time.Time
	havePrev      bool

	logger Logger
}

// NewMsgProcessor constructs a MsgProcessor. If ssvid is non-zero it
// pre-binds the stream to that identifier; otherwise the first
// message's SSVID is latched. legacySpeedFilters enables the older
// pipeline's reserved-speed-value exclusions; see classify.
func NewMsgProcessor(verySlow float64, ssvid int64, legacySpeedFilters bool, logger Logger) *MsgProcessor {
	return &MsgProcessor{
		verySlow:           verySlow,
		ssvid:              ssvid,
		haveSSVID:          ssvid != 0,
		legacySpeedFilters: legacySpeedFilters,
		seenMsgIDs:         make(map[string]time.Time),
		seenLocation:       make(map[normalizedLocation]time.Time),
		cache:              newIdentityCache(),
		logger:             logOrDiscard(logger),
	}
}

// SSVID returns the currently latched SSVID, or zero if no message has
// been seen yet.
func (p *MsgProcessor) SSVID() int64 {
	return p.ssvid
}

// checkStructural enforces the fail-fast invariants: a type field, a
// timestamp, and non-decreasing timestamps across the stream. The
// ordering matters: the sortedness check must run before duplicate
// detection so a duplicate can never mask an out-of-order message
// (SPEC_FULL.md §9, resolving the source's own "_checked_stream" note).
func (p *MsgProcessor) checkStructural(msg Message) error {
	if msg.Type == "" {
		return ErrMissingType
	}
	if msg.Time.IsZero() {
		return ErrMissingTimestamp
	}
	if p.havePrev && msg.Time.Before(p.prevTimestamp) {
		return &unsortedError{msgID: msg.MsgID, prev: p.prevTimestamp.String(), received: msg.Time.String()}
	}
	return nil
}

// Process validates and classifies one message. skip is true when the
// message should be silently dropped (duplicate msgid, duplicate
// location, or SSVID mismatch); callers must not dispatch a skipped
// message anywhere. A non-nil error is always fatal to the stream.
func (p *MsgProcessor) Process(msg Message) (class MessageClass, skip bool, err error) {
	if err := p.checkStructural(msg); err != nil {
		return 0, false, err
	}
	p.prevTimestamp = msg.Time
	p.havePrev = true

	if _, dup := p.seenMsgIDs[msg.MsgID]; dup {
		p.logger.Debug("skipping duplicate msgid", "msgid", msg.MsgID)
		return 0, true, nil
	}
	p.seenMsgIDs[msg.MsgID] = msg.Time

	if !p.haveSSVID {
		p.ssvid = msg.SSVID
		p.haveSSVID = true
	} else if msg.SSVID != p.ssvid {
		p.logger.Warn("skipping non-matching ssvid", "got", msg.SSVID, "want", p.ssvid)
		return 0, true, nil
	}

	class = classify(msg, p.verySlow, p.legacySpeedFilters)

	if class != ClassBad {
		p.cache.store(msg)
	}

	if class == ClassPosition {
		loc := extractNormalizedLocation(msg)
		if msg.Speed > 0 {
			if _, seen := p.seenLocation[loc]; seen {
				p.logger.Debug("skipping already seen location", "msgid", msg.MsgID)
				return class, true, nil
			}
		}
		p.seenLocation[loc] = msg.Time
	}

	return class, false, nil
}

// speedExclusionRanges are reported-speed ranges the older pipeline
// treats as decoder noise rather than real measurements: 51.2 and
// 102.3 are both near-ubiquitous noise values (102.3 is reserved for
// "bad value"), and 63 means "unavailable" on AIS.27 messages. Ranges,
// not exact values, because the decoder's floats rarely land on the
// nominal value precisely.
var speedExclusionRanges = [][2]float64{
	{51.15, 51.25},
	{62.95, 63.05},
	{102.25, 102.35},
}

func inSpeedExclusionRange(speed float64) bool {
	for _, r := range speedExclusionRanges {
		if speed > r[0] && speed < r[1] {
			return true
		}
	}
	return false
}

// classify determines whether a message is a usable position fix, an
// info-only message, or bad data, per SPEC_FULL.md §4.2.
// legacySpeedFilters reinstates the older pipeline's reserved-speed-value
// range exclusions (see speedExclusionRanges): with it on, a speed
// that decodes into one of those ranges is noise, not a real fix, and
// the message is classified bad instead of a position.
func classify(msg Message, verySlow float64, legacySpeedFilters bool) MessageClass {
	if isNullFloat(msg.Lon) && isNullFloat(msg.Lat) && isNullFloat(msg.Course) && isNullFloat(msg.Speed) {
		return ClassInfoOnly
	}
	if !isNullFloat(msg.Lon) && !isNullFloat(msg.Lat) && !isNullFloat(msg.Speed) &&
		!(msg.Speed > verySlow && isNullFloat(msg.Course)) &&
		!(legacySpeedFilters && inSpeedExclusionRange(msg.Speed)) {
		return ClassPosition
	}
	return ClassBad
}

// Annotate returns the identity and destination counts accumulated
// near msg's timestamp that are compatible with its transponder
// class. Called when a segment is cleaned for emission, never during
// live classification.
func (p *MsgProcessor) Annotate(msg Message) (map[IdentityKey]int, map[DestinationKey]int) {
	return p.cache.annotate(msg)
}

// Prune discards cache and dedup state older than before. Safe to
// call whenever the caller can prove no future message could
// reference that state. The Segmenter does not call it.
func (p *MsgProcessor) Prune(before time.Time) {
	p.cache.prune(before)
	for id, ts := range p.seenMsgIDs {
		if ts.Before(before) {
			delete(p.seenMsgIDs, id)
		}
	}
	for loc, ts := range p.seenLocation {
		if ts.Before(before) {
			delete(p.seenLocation, loc)
		}
	}
}
