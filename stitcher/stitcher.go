// Package stitcher joins finished segments back into longer tracks
// after the fact. It is a read-only consumer of the segment package's
// public output: it never looks at a live Segmenter, only at the
// Closed/Ambiguous-Closed segments one already produced, so it can run
// as a separate offline pass over a day's or a vessel's worth of
// output. Grounded on the teacher pipeline's own stitching stage.
package stitcher

import (
	"math"
	"sort"

	segment "github.com/aistrack/segment/src"
)

// Config holds the tunable knobs for track assembly.
type Config struct {
	MinSeedSize       int     // minimum segment size to start a new track
	MinSegSize        int     // segments shorter than this are dropped entirely
	MaxAverageKnots   float64 // fastest implied speed allowed when joining two segments
	BufferHours       float64
	MaxOverlapHours   float64
	MaxOverlapPoints  int
	MaxOverlapFrac    float64
	Speed0            float64
	MinSigMatch       float64
	PenaltyTracks     int // once more than this many tracks are live, joining gets stricter
	PenaltyHours      float64
	BaseHourPenalty   float64 // hours exponent denominator when the two signatures share at least one comparable component
	NoIDHourPenalty   float64 // hours exponent denominator when the two signatures share no comparable component
	SpeedWeight       float64
	ShapeFactor       float64
}

// DefaultConfig mirrors the constants the teacher's Python original
// hard-codes as class attributes on its Stitcher.
func DefaultConfig() Config {
	return Config{
		MinSeedSize:      20,
		MinSegSize:       10,
		MaxAverageKnots:  25,
		BufferHours:      5.0 / 60,
		MaxOverlapHours:  1,
		MaxOverlapPoints: 3,
		MaxOverlapFrac:   0.05,
		Speed0:           5,
		MinSigMatch:      0.5,
		PenaltyTracks:    4,
		PenaltyHours:     1,
		BaseHourPenalty:  1.1,
		NoIDHourPenalty:  2.0,
		SpeedWeight:      10,
		ShapeFactor:      4.0,
	}
}

// Track is an ordered chain of segment IDs believed to belong to the
// same vessel across an SSVID gap or a segmenter-induced split. The
// track's own ID is its first segment's ID.
type Track struct {
	ID       string
	Segments []string
}

// signature is a coarse fingerprint of a segment's identity evidence:
// the fraction of position fixes attributable to each transponder
// class, plus the top five reported shipnames/callsigns/IMOs and each
// one's share among those top five. Built once per segment and merged
// into the track's running signature as segments join a track, the
// way the original keeps a running signature for the track's tail.
type signature struct {
	transponderShare map[segment.TransponderClass]float64
	shipName         map[string]float64
	callSign         map[string]float64
	imo              map[string]float64

	transponderCount int
	shipNameCount    int
	callSignCount    int
	imoCount         int
}

type erodedEnds struct {
	start, end Message
}

// Message is an alias for segment.Message, used for the segment
// endpoints and erosion points the joiner compares.
type Message = segment.Message

// segSummary is everything create Tracks needs about one candidate
// segment, extracted once up front.
type segSummary struct {
	id         string
	count      int
	first      Message
	last       Message
	eroded     erodedEnds
	sig        signature
}

func buildSignature(out segment.Output) signature {
	sig := signature{
		transponderShare: map[segment.TransponderClass]float64{},
		shipName:         map[string]float64{},
		callSign:         map[string]float64{},
		imo:              map[string]float64{},
	}

	classCounts := map[segment.TransponderClass]int{}
	shipNameCounts := map[string]int{}
	callSignCounts := map[string]int{}
	imoCounts := map[string]int{}

	for _, msg := range out.Messages {
		for _, tc := range segment.TransponderClasses(msg.Type) {
			classCounts[tc]++
			sig.transponderCount++
		}
		for key, n := range msg.Identities {
			if key.ShipName != "" {
				shipNameCounts[key.ShipName] += n
				sig.shipNameCount += n
			}
			if key.CallSign != "" {
				callSignCounts[key.CallSign] += n
				sig.callSignCount += n
			}
			if key.IMO != "" {
				imoCounts[key.IMO] += n
			}
		}
	}

	if sig.transponderCount > 0 {
		for k, n := range classCounts {
			sig.transponderShare[k] = float64(n) / float64(sig.transponderCount)
		}
	}
	sig.shipName = topShares(shipNameCounts, 5)
	sig.callSign = topShares(callSignCounts, 5)
	total := 0
	for _, n := range imoCounts {
		total += n
	}
	sig.imoCount = total
	sig.imo = topShares(imoCounts, 5)

	return sig
}

// topShares keeps the n most-observed keys and normalizes their
// counts into shares of the kept subset, mirroring Counter.most_common
// followed by a division by the kept total.
func topShares(counts map[string]int, n int) map[string]float64 {
	type kv struct {
		k string
		n int
	}
	kvs := make([]kv, 0, len(counts))
	for k, c := range counts {
		kvs = append(kvs, kv{k, c})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].n > kvs[j].n })
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	total := 0
	for _, e := range kvs {
		total += e.n
	}
	shares := make(map[string]float64, len(kvs))
	if total == 0 {
		return shares
	}
	for _, e := range kvs {
		shares[e.k] = float64(e.n) / float64(total)
	}
	return shares
}

func shareOverlap(a, b map[string]float64) float64 {
	x := 0.0
	for k, va := range a {
		if vb, ok := b[k]; ok {
			x += va * vb
		}
	}
	return x
}

// signatureMetric blends the transponder-class, shipname, callsign,
// and IMO overlaps into a single similarity score by harmonic mean,
// the way the original's compute_signature_metric does. Returns
// whether any component had data to compare (sigmatch in the
// original), since the caller treats "no evidence either way" more
// leniently than "evidence of mismatch".
func signatureMetric(a, b signature, minSigMatch float64) (float64, bool) {
	parts := []float64{
		shareOverlap(a.transponderShare, b.transponderShare),
		shareOverlap(a.shipName, b.shipName),
		shareOverlap(a.callSign, b.callSign),
		shareOverlap(a.imo, b.imo),
	}

	var haveAny bool
	for i := range parts {
		if componentHasData(a, b, i) {
			haveAny = true
		}
	}
	if !haveAny {
		return minSigMatch, false
	}

	sumInv := 0.0
	n := 0
	for i, p := range parts {
		if !componentHasData(a, b, i) {
			continue
		}
		sumInv += 1 / (p + 1e-99)
		n++
	}
	if n == 0 {
		return minSigMatch, false
	}
	return 1 / (sumInv / float64(n)), true
}

func componentHasData(a, b signature, i int) bool {
	switch i {
	case 0:
		return len(a.transponderShare) > 0 && len(b.transponderShare) > 0
	case 1:
		return len(a.shipName) > 0 && len(b.shipName) > 0
	case 2:
		return len(a.callSign) > 0 && len(b.callSign) > 0
	case 3:
		return len(a.imo) > 0 && len(b.imo) > 0
	default:
		return false
	}
}

// mergeSignature combines a joined-in segment's signature into the
// track tail's, weighted by how many observations backed each share,
// so a long track's fingerprint isn't swamped by one short newcomer.
func mergeSignature(track, joined signature) signature {
	merge := func(a, b map[string]float64, ca, cb int) map[string]float64 {
		total := ca + cb
		out := map[string]float64{}
		if total == 0 {
			return out
		}
		keys := map[string]struct{}{}
		for k := range a {
			keys[k] = struct{}{}
		}
		for k := range b {
			keys[k] = struct{}{}
		}
		for k := range keys {
			out[k] = (a[k]*float64(ca) + b[k]*float64(cb)) / float64(total)
		}
		return out
	}
	return signature{
		transponderShare: merge(track.transponderShare, joined.transponderShare, track.transponderCount, joined.transponderCount),
		shipName:         merge(track.shipName, joined.shipName, track.shipNameCount, joined.shipNameCount),
		callSign:         merge(track.callSign, joined.callSign, track.callSignCount, joined.callSignCount),
		imo:              merge(track.imo, joined.imo, track.imoCount, joined.imoCount),
		transponderCount: track.transponderCount + joined.transponderCount,
		shipNameCount:    track.shipNameCount + joined.shipNameCount,
		callSignCount:    track.callSignCount + joined.callSignCount,
		imoCount:         track.imoCount + joined.imoCount,
	}
}

func erodedEndsOf(out segment.Output, maxOverlapFrac float64, maxOverlapPoints int) erodedEnds {
	msgs := out.Messages
	n := int(math.Min(float64(len(msgs))*maxOverlapFrac, float64(maxOverlapPoints)))
	if n < 0 {
		n = 0
	}
	if n > (len(msgs)-1)/2 {
		n = (len(msgs) - 1) / 2
	}
	return erodedEnds{start: msgs[n], end: msgs[len(msgs)-1-n]}
}

// FilterAndSort drops segments below MinSegSize and returns the rest
// ordered by first timestamp, the order create Tracks assembles in.
func FilterAndSort(cfg Config, outs []segment.Output) []segment.Output {
	kept := make([]segment.Output, 0, len(outs))
	for _, out := range outs {
		if out.ID == "" || out.MsgCount() < cfg.MinSegSize {
			continue
		}
		kept = append(kept, out)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].FirstMsg().Time.Before(kept[j].FirstMsg().Time)
	})
	return kept
}

// CreateTracks greedily assembles tracks from a set of finished
// segments (normally everything a Segmenter emitted for one SSVID,
// or a family of SSVIDs believed to share a vessel). Each segment is
// considered in time order and joined onto whichever existing track's
// tail it best continues, or seeds a new track if it is long enough
// and nothing fits. See DESIGN.md: this is a simplified
// reimplementation that folds a joined segment's signature into the
// track's running signature but does not replay the original's exact
// per-join bookkeeping of raw identity counts.
func CreateTracks(cfg Config, outs []segment.Output) []Track {
	segs := FilterAndSort(cfg, outs)

	summaries := make(map[string]*segSummary, len(segs))
	order := make([]*segSummary, 0, len(segs))
	for _, out := range segs {
		s := &segSummary{
			id:     out.ID,
			count:  out.MsgCount(),
			first:  out.FirstMsg(),
			last:   out.LastMsg(),
			eroded: erodedEndsOf(out, cfg.MaxOverlapFrac, cfg.MaxOverlapPoints),
			sig:    buildSignature(out),
		}
		summaries[s.id] = s
		order = append(order, s)
	}

	type liveTrack struct {
		ids  []string
		tail *segSummary
		sig  signature
	}
	var tracks []*liveTrack

	for _, s := range order {
		var best *liveTrack
		bestMetric := 0.0

		for _, tr := range tracks {
			tgt := tr.tail

			rawHours := segment.HoursBetween(tgt.eroded.end.Time, s.eroded.start.Time)
			dt1 := segment.HoursBetween(s.eroded.start.Time, s.eroded.end.Time)
			dt2 := segment.HoursBetween(tgt.eroded.start.Time, tgt.eroded.end.Time)
			maxOverlapHours := math.Min(math.Min(dt1*cfg.MaxOverlapFrac, dt2*cfg.MaxOverlapFrac), cfg.MaxOverlapHours)

			if rawHours+maxOverlapHours <= 0 {
				continue
			}
			hours := rawHours + cfg.BufferHours

			laxity := 1.0
			if len(tracks) >= cfg.PenaltyTracks {
				laxity = math.Sqrt2 / math.Hypot(1, float64(len(tracks))/float64(cfg.PenaltyTracks))
			}

			sigMetric, sigMatch := signatureMetric(s.sig, tr.sig, cfg.MinSigMatch)
			if laxity*sigMetric < cfg.MinSigMatch {
				continue
			}

			hoursExp := 1.0 / cfg.NoIDHourPenalty
			if sigMatch {
				hoursExp = 1.0 / cfg.BaseHourPenalty
			}
			effectiveHours := hours
			if hours >= cfg.PenaltyHours {
				effectiveHours = hours * math.Pow(hours/cfg.PenaltyHours, hoursExp)
			}

			m0, m1 := tgt.last, s.first
			if tgt.last.Time.After(s.first.Time) {
				m0, m1 = s.first, tgt.last
			}
			joinHours := segment.HoursBetween(m0.Time, m1.Time)
			disc := segment.Discrepancy(m0, m1, joinHours, cfg.ShapeFactor)

			speed := disc / effectiveHours
			if speed > cfg.MaxAverageKnots*laxity {
				continue
			}

			speedMetric := math.Exp(-math.Pow(speed/cfg.Speed0, 2)) / joinHours
			metric := sigMetric + cfg.SpeedWeight*speedMetric
			if metric > bestMetric {
				bestMetric = metric
				best = tr
			}
		}

		if best != nil {
			best.ids = append(best.ids, s.id)
			best.tail = s
			best.sig = mergeSignature(best.sig, s.sig)
		} else if s.count >= cfg.MinSeedSize {
			tracks = append(tracks, &liveTrack{ids: []string{s.id}, tail: s, sig: s.sig})
		}
	}

	result := make([]Track, 0, len(tracks))
	for _, tr := range tracks {
		result = append(result, Track{ID: tr.ids[0], Segments: tr.ids})
	}
	return result
}
