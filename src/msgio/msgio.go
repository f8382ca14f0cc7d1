// Package msgio reads and writes the segment core's Message and
// Output values as newline-delimited JSON, the wire format used by
// cmd/segmentcat and any other host of the segment package. It is
// outside the core's own scope (SPEC_FULL.md §1/§4.7): the core only
// ever sees the already-decoded segment.Message type.
package msgio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	segment "github.com/aistrack/segment/src"
)

// wireMessage is the on-disk shape of a segment.Message: NaN floats
// are omitted (and absent or null ones decode back to NaN), and the identity/destination multisets (which use
// struct map keys segment.Message can't marshal directly) flatten to
// counted slices.
type wireMessage struct {
	MsgID  string    `json:"msgid"`
	SSVID  int64     `json:"ssvid"`
	Time   time.Time `json:"timestamp"`
	Type   string    `json:"type"`

	Lon     *float64 `json:"lon,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Course  *float64 `json:"course,omitempty"`
	Speed   *float64 `json:"speed,omitempty"`
	Heading *float64 `json:"heading,omitempty"`

	ShipName     string  `json:"shipname,omitempty"`
	CallSign     string  `json:"callsign,omitempty"`
	IMO          string  `json:"imo,omitempty"`
	Destination  string  `json:"destination,omitempty"`
	Length       float64 `json:"length,omitempty"` // 0 means unreported, not NaN
	Width        float64 `json:"width,omitempty"`
	ReceiverType string  `json:"receiver_type,omitempty"`
	Source       string  `json:"source,omitempty"`

	Identities   []identityCount    `json:"identities,omitempty"`
	Destinations []destinationCount `json:"destinations,omitempty"`
}

type identityCount struct {
	ShipName        string  `json:"shipname"`
	CallSign        string  `json:"callsign"`
	IMO             string  `json:"imo"`
	TransponderType string  `json:"transponder_type"`
	Length          float64 `json:"length"`
	Width           float64 `json:"width"`
	Count           int     `json:"count"`
}

type destinationCount struct {
	Destination string `json:"destination"`
	Count       int    `json:"count"`
}

func nullableFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func floatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func toWire(msg segment.Message) wireMessage {
	w := wireMessage{
		MsgID: msg.MsgID, SSVID: msg.SSVID, Time: msg.Time, Type: msg.Type,
		Lon: nullableFloat(msg.Lon), Lat: nullableFloat(msg.Lat),
		Course: nullableFloat(msg.Course), Speed: nullableFloat(msg.Speed), Heading: nullableFloat(msg.Heading),
		ShipName: msg.ShipName, CallSign: msg.CallSign, IMO: msg.IMO, Destination: msg.Destination,
		Length: msg.Length, Width: msg.Width,
		ReceiverType: msg.ReceiverType, Source: msg.Source,
	}
	for k, n := range msg.Identities {
		w.Identities = append(w.Identities, identityCount{
			ShipName: k.ShipName, CallSign: k.CallSign, IMO: k.IMO,
			TransponderType: string(k.TransponderType), Length: k.Length, Width: k.Width, Count: n,
		})
	}
	for k, n := range msg.Destinations {
		w.Destinations = append(w.Destinations, destinationCount{Destination: k.Destination, Count: n})
	}
	return w
}

func fromWire(w wireMessage) segment.Message {
	msg := segment.Message{
		MsgID: w.MsgID, SSVID: w.SSVID, Time: w.Time, Type: w.Type,
		Lon: floatOrNaN(w.Lon), Lat: floatOrNaN(w.Lat),
		Course: floatOrNaN(w.Course), Speed: floatOrNaN(w.Speed), Heading: floatOrNaN(w.Heading),
		ShipName: w.ShipName, CallSign: w.CallSign, IMO: w.IMO, Destination: w.Destination,
		Length: w.Length, Width: w.Width,
		ReceiverType: w.ReceiverType, Source: w.Source,
	}
	if len(w.Identities) > 0 {
		msg.Identities = make(map[segment.IdentityKey]int, len(w.Identities))
		for _, ic := range w.Identities {
			key := segment.IdentityKey{
				ShipName: ic.ShipName, CallSign: ic.CallSign, IMO: ic.IMO,
				TransponderType: segment.TransponderClass(ic.TransponderType), Length: ic.Length, Width: ic.Width,
			}
			msg.Identities[key] = ic.Count
		}
	}
	if len(w.Destinations) > 0 {
		msg.Destinations = make(map[segment.DestinationKey]int, len(w.Destinations))
		for _, dc := range w.Destinations {
			msg.Destinations[segment.DestinationKey{Destination: dc.Destination}] = dc.Count
		}
	}
	return msg
}

// Reader adapts an io.Reader of newline-delimited Message JSON records
// into the segment.MessageSource pull interface the core consumes.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps r. The scanner's buffer is grown to accommodate long
// lines (a position report carrying a large identity backlog).
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner}
}

// Next implements segment.MessageSource.
func (r *Reader) Next() (segment.Message, bool, error) {
	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var w wireMessage
		if err := json.Unmarshal(line, &w); err != nil {
			return segment.Message{}, false, fmt.Errorf("msgio: line %d: %w", r.line, err)
		}
		return fromWire(w), true, nil
	}
	if err := r.scanner.Err(); err != nil {
		return segment.Message{}, false, fmt.Errorf("msgio: scanning input: %w", err)
	}
	return segment.Message{}, false, nil
}

// Writer serializes segment.Output values to newline-delimited JSON:
// every constituent message is written on its own line, tagged with
// the segment id and variant it belongs to.
type Writer struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{w: bw, enc: json.NewEncoder(bw)}
}

type outputRecord struct {
	SegmentID string      `json:"segment_id"`
	SSVID     int64       `json:"ssvid"`
	Variant   string      `json:"variant"`
	Message   wireMessage `json:"message"`
}

// WriteOutput appends one line per message in out.
func (wr *Writer) WriteOutput(out segment.Output) error {
	for _, msg := range out.Messages {
		rec := outputRecord{SegmentID: out.ID, SSVID: out.SSVID, Variant: out.Variant.String(), Message: toWire(msg)}
		if err := wr.enc.Encode(rec); err != nil {
			return fmt.Errorf("msgio: encoding output: %w", err)
		}
	}
	return nil
}

// Flush flushes any buffered output.
func (wr *Writer) Flush() error {
	return wr.w.Flush()
}
