package journal

import "fmt"

// Key schema:
//
//	ord:<venue>:<unix-ms>:<id> → OrderEvent
//	tx:<hash>                  → TxEvent
//
// Timestamps are zero-padded (20 digits) so a prefix scan returns events in time order.
const (
	prefixOrder = "ord:"
	prefixTx    = "tx:"
)

func orderKey(venue string, ms int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixOrder, venue, ms, id))
}

func orderPrefix(venue string) []byte {
	if venue == "" {
		return []byte(prefixOrder)
	}
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, venue))
}

func txKey(hash string) []byte {
	return []byte(prefixTx + hash)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
