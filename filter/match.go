package filter

import (
	"strings"

	"github.com/rony4d/go-chain-index/inter"
)

// slotMatches reports whether the slot accepts the given value. Nil slots
// are wildcard. Slot members are canonical (lowercase) hex.
func slotMatches(slot []string, value string) bool {
	if slot == nil {
		return true
	}
	value = strings.ToLower(value)
	for _, v := range slot {
		if v == value {
			return true
		}
	}
	return false
}

// Matches reports whether the log satisfies the criteria: the emitting
// address is in the address slot and each present topic position accepts the
// log's topic. A criteria position beyond the log's topic count only matches
// as wildcard.
func Matches(c Criteria, log *inter.Log) bool {
	norm, err := c.Normalize()
	if err != nil {
		return false
	}

	if !slotMatches(norm.Address, log.Address.Hex()) {
		return false
	}
	for i, slot := range norm.Topics {
		if slot == nil {
			continue
		}
		topic, ok := log.Topic(i)
		if !ok {
			return false
		}
		if !slotMatches(slot, topic.Hex()) {
			return false
		}
	}
	return true
}
