// Package filter implements the log-filter criteria model of the event
// indexer: the canonical form under which a filter is keyed for coverage
// tracking, the subset relation that lets narrow filters reuse broad
// coverage, log matching, and factory child-address extraction.
package filter

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrTooManyTopics is returned when a criteria carries more than four topic
// positions.
var ErrTooManyTopics = errors.New("log filter criteria: more than 4 topic positions")

// Criteria describes one log filter. Each slot (the address and each of the
// up-to-four topic positions) is either a set of hex strings, matching any
// member, or nil for wildcard. An empty non-nil set is normalized to
// wildcard.
type Criteria struct {
	// Address restricts the emitting contract. Nil matches any address.
	Address []string

	// Topics restricts the indexed topics by position. A nil entry, like a
	// missing one, matches anything at that position.
	Topics [][]string
}

// normalizedSlot lowercases, dedupes and sorts one slot. Returns nil for
// wildcard slots so that the canonical form is unambiguous.
func normalizedSlot(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Normalize returns the canonical equivalent of the criteria: every slot
// sorted, deduped and lowercased, the topic list trimmed of trailing
// wildcards. Fails with ErrTooManyTopics past four positions.
func (c Criteria) Normalize() (Criteria, error) {
	if len(c.Topics) > 4 {
		return Criteria{}, ErrTooManyTopics
	}

	norm := Criteria{Address: normalizedSlot(c.Address)}
	for _, slot := range c.Topics {
		norm.Topics = append(norm.Topics, normalizedSlot(slot))
	}
	for len(norm.Topics) > 0 && norm.Topics[len(norm.Topics)-1] == nil {
		norm.Topics = norm.Topics[:len(norm.Topics)-1]
	}
	return norm, nil
}

// canonicalForm is the fixed JSON shape hashed into the filter id. Wildcard
// slots render as null; json.Marshal emits struct fields in declaration
// order, which keeps the serialization deterministic.
type canonicalForm struct {
	Address []string `json:"address"`
	Topic0  []string `json:"topic0"`
	Topic1  []string `json:"topic1"`
	Topic2  []string `json:"topic2"`
	Topic3  []string `json:"topic3"`
}

func (c Criteria) canonical() (canonicalForm, error) {
	norm, err := c.Normalize()
	if err != nil {
		return canonicalForm{}, err
	}
	form := canonicalForm{Address: norm.Address}
	slots := []*[]string{&form.Topic0, &form.Topic1, &form.Topic2, &form.Topic3}
	for i, slot := range norm.Topics {
		*slots[i] = slot
	}
	return form, nil
}

// CanonicalJSON renders the criteria in its canonical serialization: five
// fixed slots, sets sorted, wildcards as null.
func (c Criteria) CanonicalJSON() (string, error) {
	form, err := c.canonical()
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(form)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ID derives the canonical filter id for storage keying: the first 16 bytes
// of SHA-256 over the chain id and the canonical JSON, hex encoded. Two
// semantically equal filters always produce the same id.
func ID(chainID uint64, c Criteria) (string, error) {
	canonical, err := c.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return hash128(chainID, canonical), nil
}

// hash128 is the shared 128-bit keying hash for filters and factories.
func hash128(chainID uint64, payload string) string {
	h := sha256.New()
	var chainBuf [8]byte
	binary.BigEndian.PutUint64(chainBuf[:], chainID)
	h.Write(chainBuf[:])
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// SlotsJSON renders each of the five slots as standalone JSON text, in
// (address, topic0..topic3) order, for persistence alongside the filter id.
func (c Criteria) SlotsJSON() ([5]string, error) {
	var out [5]string
	form, err := c.canonical()
	if err != nil {
		return out, err
	}
	for i, slot := range [][]string{form.Address, form.Topic0, form.Topic1, form.Topic2, form.Topic3} {
		raw, err := json.Marshal(slot)
		if err != nil {
			return out, err
		}
		out[i] = string(raw)
	}
	return out, nil
}

// CriteriaFromSlotsJSON rebuilds a criteria from the five persisted slot
// documents.
func CriteriaFromSlotsJSON(slots [5]string) (Criteria, error) {
	var decoded [5][]string
	for i, raw := range slots {
		if err := json.Unmarshal([]byte(raw), &decoded[i]); err != nil {
			return Criteria{}, fmt.Errorf("slot %d: %w", i, err)
		}
	}
	c := Criteria{
		Address: decoded[0],
		Topics:  [][]string{decoded[1], decoded[2], decoded[3], decoded[4]},
	}
	return c.Normalize()
}

// AddressCriteria is a convenience constructor for a single-address filter.
func AddressCriteria(address common.Address) Criteria {
	return Criteria{Address: []string{strings.ToLower(address.Hex())}}
}
