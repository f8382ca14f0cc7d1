package segment

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	msgs []Message
	i    int
}

func (s *sliceSource) Next() (Message, bool, error) {
	if s.i >= len(s.msgs) {
		return Message{}, false, nil
	}
	m := s.msgs[s.i]
	s.i++
	return m, true, nil
}

func runAll(t *testing.T, sg *Segmenter, msgs []Message) []Output {
	t.Helper()
	var outs []Output
	for out := range sg.Run(&sliceSource{msgs: msgs}) {
		outs = append(outs, out)
	}
	require.NoError(t, sg.Err())
	return outs
}

func posMsg(id string, ssvid int64, t time.Time, lat, lon float64) Message {
	return Message{MsgID: id, SSVID: ssvid, Type: "AIS.1", Time: t, Lat: lat, Lon: lon, Course: 0, Speed: 0}
}

func TestSegmenter_BadMessageIsSingleton(t *testing.T) {
	sg := NewSegmenter(DefaultConfig(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bad := Message{MsgID: "1", SSVID: 1, Type: "AIS.1", Time: base, Lon: 1, Lat: math.NaN(), Course: 0, Speed: 0}
	outs := runAll(t, sg, []Message{bad})

	require.Len(t, outs, 1)
	assert.Equal(t, VariantBad, outs[0].Variant)
	assert.Equal(t, 1, outs[0].MsgCount())
}

func TestSegmenter_InfoOnlyIsSingleton(t *testing.T) {
	sg := NewSegmenter(DefaultConfig(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	info := Message{MsgID: "1", SSVID: 1, Type: "AIS.5", Time: base, Lon: math.NaN(), Lat: math.NaN(), Course: math.NaN(), Speed: math.NaN(), ShipName: "ALBATROSS"}
	outs := runAll(t, sg, []Message{info})

	require.Len(t, outs, 1)
	assert.Equal(t, VariantInfo, outs[0].Variant)
}

func TestSegmenter_SingleVesselStaysOneSegment(t *testing.T) {
	sg := NewSegmenter(DefaultConfig(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	msgs := []Message{
		posMsg("1", 1, base, 0, 0),
		posMsg("2", 1, base.Add(time.Hour), 0, 0),
		posMsg("3", 1, base.Add(2*time.Hour), 0, 0),
	}
	outs := runAll(t, sg, msgs)

	require.Len(t, outs, 1, "all three consistent fixes should flush as one closed segment at end of stream")
	assert.Equal(t, VariantClosed, outs[0].Variant)
	assert.Equal(t, 3, outs[0].MsgCount())
}

func TestSegmenter_BigJumpOpensNewSegment(t *testing.T) {
	sg := NewSegmenter(DefaultConfig(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	msgs := []Message{
		posMsg("1", 1, base, 0, 0),
		posMsg("2", 1, base.Add(time.Minute), 45, 45), // impossible jump in one minute
	}
	outs := runAll(t, sg, msgs)

	require.Len(t, outs, 2)
	for _, out := range outs {
		assert.Equal(t, VariantClosed, out.Variant)
		assert.Equal(t, 1, out.MsgCount())
	}
}

func TestSegmenter_GapBeyondMaxHoursClosesSegment(t *testing.T) {
	cfg := DefaultConfig()
	sg := NewSegmenter(cfg, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	far := base.Add(time.Duration(cfg.MaxHours+1) * time.Hour)
	msgs := []Message{
		posMsg("1", 1, base, 0, 0),
		posMsg("2", 1, far, 0, 0),
	}
	outs := runAll(t, sg, msgs)

	require.Len(t, outs, 2)
	assert.Equal(t, "1", outs[0].Messages[0].MsgID)
	assert.Equal(t, "2", outs[1].Messages[0].MsgID)
}

func TestSegmenter_DifferentSSVIDIsDropped(t *testing.T) {
	sg := NewSegmenter(DefaultConfig(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	msgs := []Message{
		posMsg("1", 1, base, 0, 0),
		posMsg("2", 999, base.Add(time.Hour), 0, 0),
	}
	outs := runAll(t, sg, msgs)

	require.Len(t, outs, 1)
	assert.Equal(t, int64(1), outs[0].SSVID)
}

func TestSegmenter_OpenSegmentCapEvictsStalest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenSegments = 2
	sg := NewSegmenter(cfg, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Three widely separated, mutually implausible tracks force three
	// distinct open segments; the cap of 2 must evict the stalest one
	// before the third can open.
	msgs := []Message{
		posMsg("1", 1, base, 0, 0),
		posMsg("2", 1, base.Add(time.Minute), 10, 10),
		posMsg("3", 1, base.Add(2*time.Minute), -10, -10),
	}
	outs := runAll(t, sg, msgs)

	require.GreaterOrEqual(t, len(outs), 3)
	for _, out := range outs {
		assert.Equal(t, VariantClosed, out.Variant)
	}
	assert.Equal(t, "1", outs[0].Messages[0].MsgID, "the segment with the oldest last message is evicted first")
}

func TestSegmenter_ResumeFromStateContinuesTrack(t *testing.T) {
	cfg := DefaultConfig()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	state := SegmentState{
		ID:       "1-2024-01-01T00:00:00.000000Z-1",
		SSVID:    1,
		FirstMsg: posMsg("0", 1, base, 0, 0),
		LastMsg:  posMsg("0", 1, base, 0, 0),
		MsgCount: 1,
		Closed:   false,
	}

	sg := NewSegmenter(cfg, nil)
	sg.FromStates([]SegmentState{state})

	msgs := []Message{posMsg("1", 1, base.Add(time.Hour), 0, 0)}
	outs := runAll(t, sg, msgs)

	require.Len(t, outs, 1)
	assert.Equal(t, state.ID, outs[0].ID, "continuation should be emitted under the resumed segment's id")
	assert.Equal(t, 1, outs[0].MsgCount(), "only newly appended messages are emitted, not the prior run's tail")
}

func TestSegmenter_LookbackCorrectionDiscardsJumpAndKeepsSegmentIntact(t *testing.T) {
	sg := NewSegmenter(DefaultConfig(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// msg 3 is a 50 nm jump, provisionally accepted because enough time
	// has passed for it to be plausible; msg 4 returns to the position
	// held by msgs 1-2, and the lookback match prefers that closer
	// depth, retroactively dropping msg 3. Expected: a Discarded
	// singleton for msg 3 plus one segment containing 1, 2, 4, 5.
	msgs := []Message{
		posMsg("1", 1, base, 0, 0),
		posMsg("2", 1, base.Add(7*time.Hour), 0, 0),
		posMsg("3", 1, base.Add(10*time.Hour), 0, 50.0/60.0),
		posMsg("4", 1, base.Add(11*time.Hour), 0, 0),
		posMsg("5", 1, base.Add(12*time.Hour), 0, 0),
	}
	outs := runAll(t, sg, msgs)
	require.Len(t, outs, 2)

	var discarded, closed *Output
	for i := range outs {
		switch outs[i].Variant {
		case VariantDiscarded:
			discarded = &outs[i]
		case VariantClosed:
			closed = &outs[i]
		}
	}
	require.NotNil(t, discarded, "msg 3's jump must be peeled off as a Discarded singleton")
	require.NotNil(t, closed)

	require.Len(t, discarded.Messages, 1)
	assert.Equal(t, "3", discarded.Messages[0].MsgID)

	require.Len(t, closed.Messages, 4)
	ids := make([]string, len(closed.Messages))
	for i, m := range closed.Messages {
		ids[i] = m.MsgID
	}
	assert.Equal(t, []string{"1", "2", "4", "5"}, ids, "the corrected segment must retain the other four messages in original order")
}

func TestSegmenter_AmbiguousMatchClosesBothCandidates(t *testing.T) {
	sg := NewSegmenter(DefaultConfig(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	msgs := []Message{
		posMsg("a", 1, base, 0, 0),
		posMsg("b", 1, base.Add(time.Minute), 0, 1),   // 60 nm in one minute: forces a second, independent segment
		posMsg("c", 1, base.Add(3*time.Hour), 0, 0.5), // ambiguous: 30 nm from both, about three hours later
	}
	outs := runAll(t, sg, msgs)

	assert.GreaterOrEqual(t, len(outs), 2)
	ambiguous := 0
	for _, out := range outs {
		if out.Variant == VariantAmbiguousClosed {
			ambiguous++
		}
	}
	assert.Equal(t, 2, ambiguous, "both candidate segments must be closed as ambiguous")
}
