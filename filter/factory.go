package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-chain-index/inter"
)

// ErrInvalidChildLocation is returned for a child-address location that is
// neither topic1..topic3 nor a 32-byte-aligned data offset.
var ErrInvalidChildLocation = errors.New("child address location must be topic1, topic2, topic3 or offset<N> with N a multiple of 32")

// ChildLocation is the rule for extracting a deployed child contract address
// from a factory's parent emission: either one of the indexed topics, or a
// byte offset into the log's data payload. In either case the 20-byte
// address is right-aligned within its 32-byte word.
type ChildLocation struct {
	// topicIndex is 1..3 when the child address lives in a topic, 0 when it
	// lives in the data payload.
	topicIndex int

	// offset is the byte offset of the containing word in the data payload.
	// Only meaningful when topicIndex is 0.
	offset int
}

// ParseChildLocation parses the textual location form: "topic1", "topic2",
// "topic3", or "offset<N>" where N is a non-negative multiple of 32.
func ParseChildLocation(s string) (ChildLocation, error) {
	switch s {
	case "topic1":
		return ChildLocation{topicIndex: 1}, nil
	case "topic2":
		return ChildLocation{topicIndex: 2}, nil
	case "topic3":
		return ChildLocation{topicIndex: 3}, nil
	}
	if rest, ok := strings.CutPrefix(s, "offset"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || n%32 != 0 {
			return ChildLocation{}, fmt.Errorf("%w: %q", ErrInvalidChildLocation, s)
		}
		return ChildLocation{offset: n}, nil
	}
	return ChildLocation{}, fmt.Errorf("%w: %q", ErrInvalidChildLocation, s)
}

// String renders the location back to its textual form.
func (cl ChildLocation) String() string {
	if cl.topicIndex > 0 {
		return fmt.Sprintf("topic%d", cl.topicIndex)
	}
	return fmt.Sprintf("offset%d", cl.offset)
}

// Factory identifies one factory event source: emissions of eventSelector by
// the parent contract at Address announce child contracts, whose addresses
// are read per ChildLocation.
type Factory struct {
	Address       common.Address
	EventSelector common.Hash
	ChildLocation ChildLocation
}

// FactoryID derives the canonical storage key for a factory, a 128-bit hash
// over the chain id and the factory's identifying triple.
func FactoryID(chainID uint64, f Factory) string {
	payload := strings.ToLower(f.Address.Hex()) + "|" + strings.ToLower(f.EventSelector.Hex()) + "|" + f.ChildLocation.String()
	return hash128(chainID, payload)
}

// SyntheticCriteria is the log filter equivalent of the factory's parent
// emissions, used to expose raw parent coverage through the normal log
// filter path.
func SyntheticCriteria(f Factory) Criteria {
	return Criteria{
		Address: []string{strings.ToLower(f.Address.Hex())},
		Topics:  [][]string{{strings.ToLower(f.EventSelector.Hex())}},
	}
}

// ExtractChildAddress reads the child contract address out of a parent
// emission per the location rule: for topicN the low-order 20 bytes of that
// topic, for offset<K> the 20 bytes at [K+12, K+32) of the data payload.
func ExtractChildAddress(loc ChildLocation, log *inter.Log) (common.Address, error) {
	if loc.topicIndex > 0 {
		topic, ok := log.Topic(loc.topicIndex)
		if !ok {
			return common.Address{}, fmt.Errorf("log %s: no topic at position %d", log.EventID(), loc.topicIndex)
		}
		return common.BytesToAddress(topic[12:]), nil
	}

	end := loc.offset + 32
	if len(log.Data) < end {
		return common.Address{}, fmt.Errorf("log %s: data payload shorter than offset %d word", log.EventID(), loc.offset)
	}
	return common.BytesToAddress(log.Data[loc.offset+12 : end]), nil
}
