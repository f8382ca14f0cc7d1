package segment

import "time"

// infoPingIntervalMinutes is how many minutes before and after an
// identity-bearing message's timestamp that identity gets associated
// with nearby position fixes.
const infoPingIntervalMinutes = 15

// identityBucketKey groups identity observations by the kind of
// transponder/receiver/source that produced them, so that annotating
// a position message only pulls in identity evidence compatible with
// its own transponder class.
type identityBucketKey struct {
	transponder  TransponderClass
	receiverType string
	source       string
}

// identityCache time-associates identity fields (shipname, callsign,
// IMO, destination, ...) observed on info-bearing messages with
// nearby position fixes. It is a two-level counted multiset: minute ->
// (transponder, receiver, source) -> identity/destination -> count.
type identityCache struct {
	identities   map[time.Time]map[identityBucketKey]map[IdentityKey]int
	destinations map[time.Time]map[identityBucketKey]map[DestinationKey]int
}

func newIdentityCache() *identityCache {
	return &identityCache{
		identities:   make(map[time.Time]map[identityBucketKey]map[IdentityKey]int),
		destinations: make(map[time.Time]map[identityBucketKey]map[DestinationKey]int),
	}
}

func truncateToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// store records the identity fields of an info-bearing message against
// every minute within ±infoPingIntervalMinutes of its timestamp. It is
// a no-op for messages whose type carries no identity information
// (e.g. a plain position-only AIS.1 report).
func (c *identityCache) store(msg Message) {
	transponder, ok := infoTransponderClass[msg.Type]
	if !ok {
		return
	}

	identity := IdentityKey{
		ShipName:        msg.ShipName,
		CallSign:        msg.CallSign,
		IMO:             msg.IMO,
		TransponderType: transponder,
		Length:          msg.Length,
		Width:           msg.Width,
	}
	destination := DestinationKey{Destination: msg.Destination}
	key := identityBucketKey{transponder: transponder, receiverType: msg.ReceiverType, source: msg.Source}

	base := truncateToMinute(msg.Time)
	for offset := -infoPingIntervalMinutes; offset <= infoPingIntervalMinutes; offset++ {
		minute := base.Add(time.Duration(offset) * time.Minute)

		idents, ok := c.identities[minute]
		if !ok {
			idents = make(map[identityBucketKey]map[IdentityKey]int)
			c.identities[minute] = idents
		}
		if idents[key] == nil {
			idents[key] = make(map[IdentityKey]int)
		}
		idents[key][identity]++

		dests, ok := c.destinations[minute]
		if !ok {
			dests = make(map[identityBucketKey]map[DestinationKey]int)
			c.destinations[minute] = dests
		}
		if dests[key] == nil {
			dests[key] = make(map[DestinationKey]int)
		}
		dests[key][destination]++
	}
}

// annotate returns the accumulated identity and destination counts
// compatible with msg's minute and transponder class(es). A position
// message carrying an AIS.27 type, for instance, pulls in evidence
// from both the A and B transponder buckets since AIS.27 is
// receivable from either.
func (c *identityCache) annotate(msg Message) (map[IdentityKey]int, map[DestinationKey]int) {
	minute := truncateToMinute(msg.Time)
	idents := make(map[IdentityKey]int)
	dests := make(map[DestinationKey]int)

	for _, transponder := range TransponderClasses(msg.Type) {
		key := identityBucketKey{transponder: transponder, receiverType: msg.ReceiverType, source: msg.Source}

		if byMinute, ok := c.identities[minute]; ok {
			for k, v := range byMinute[key] {
				idents[k] += v
			}
		}
		if byMinute, ok := c.destinations[minute]; ok {
			for k, v := range byMinute[key] {
				dests[k] += v
			}
		}
	}

	return idents, dests
}

// prune removes cache entries for minutes strictly before the given
// instant. It is reached through MsgProcessor.Prune; the Segmenter
// itself never calls it, so the cache keeps every entry unless the
// host prunes.
func (c *identityCache) prune(before time.Time) {
	for minute := range c.identities {
		if minute.Before(before) {
			delete(c.identities, minute)
		}
	}
	for minute := range c.destinations {
		if minute.Before(before) {
			delete(c.destinations, minute)
		}
	}
}
