package msgio

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	segment "github.com/aistrack/segment/src"
)

func TestWriter_OmitsNaNOptionalFields(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := segment.Message{
		MsgID: "1", SSVID: 123, Time: ts, Type: "AIS.1",
		Lon: 10.5, Lat: -3.2, Course: 90, Speed: 5.5, Heading: math.NaN(),
		ShipName: "SEA LION", Length: 0, Width: 0,
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteOutput(segment.Output{ID: "seg-1", SSVID: 123, Variant: segment.VariantClosed, Messages: []segment.Message{msg}}))
	require.NoError(t, w.Flush())

	assert.NotContains(t, buf.String(), "\"heading\"", "NaN fields must be omitted, not written as null")
}

func TestReader_SkipsBlankLines(t *testing.T) {
	input := "\n{\"msgid\":\"1\",\"ssvid\":1,\"timestamp\":\"2024-01-01T00:00:00Z\",\"type\":\"AIS.1\"}\n\n"
	r := NewReader(bytes.NewBufferString(input))

	msg, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", msg.MsgID)
	assert.True(t, math.IsNaN(msg.Lon), "an absent lon must decode back to NaN")

	_, ok, err = r.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReader_RejectsMalformedLine(t *testing.T) {
	r := NewReader(bytes.NewBufferString("not json\n"))
	_, _, err := r.Next()
	assert.Error(t, err)
}

func TestWriter_OneLinePerMessage(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	out := segment.Output{
		ID: "seg-1", SSVID: 1, Variant: segment.VariantClosed,
		Messages: []segment.Message{
			{MsgID: "1", Time: ts, Type: "AIS.1", Lon: 0, Lat: 0},
			{MsgID: "2", Time: ts.Add(time.Hour), Type: "AIS.1", Lon: 0, Lat: 0},
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteOutput(out))
	require.NoError(t, w.Flush())

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 2, lines)
}

func TestIdentityMultisetRoundTrips(t *testing.T) {
	msg := segment.Message{
		MsgID: "1", Time: time.Now(), Type: "AIS.1", Lon: 0, Lat: 0,
		Identities: map[segment.IdentityKey]int{
			{ShipName: "SEA LION", TransponderType: segment.TransponderA}: 3,
		},
	}

	w := toWire(msg)
	require.Len(t, w.Identities, 1)
	assert.Equal(t, 3, w.Identities[0].Count)

	back := fromWire(w)
	require.Len(t, back.Identities, 1)
	for k, v := range back.Identities {
		assert.Equal(t, "SEA LION", k.ShipName)
		assert.Equal(t, 3, v)
	}
}
