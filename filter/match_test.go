package filter

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/rony4d/go-chain-index/inter"
)

var (
	matchAddr     = common.HexToAddress("0x15d34aaf54267db7d7c367839aaf71a00a2c6a65")
	matchTopic0   = common.HexToHash("0x0eb5d52624c8d28ada9fc55a8c502ed5aa3fbe2fb6e91b71b5f376882b1d2fb8")
	matchTopic1   = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000f3bd6")
	unrelatedHash = common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000")
)

func matchLog() *inter.Log {
	return &inter.Log{
		Address: matchAddr,
		Topics:  []common.Hash{matchTopic0, matchTopic1},
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		c    Criteria
		want bool
	}{
		{"all wildcard", Criteria{}, true},
		{"address match", Criteria{Address: []string{matchAddr.Hex()}}, true},
		{"address match is case insensitive", Criteria{Address: []string{"0x15D34AAF54267DB7D7C367839AAF71A00A2C6A65"}}, true},
		{"address mismatch", Criteria{Address: []string{unrelatedHash.Hex()[:42]}}, false},
		{"topic0 single match", Criteria{Topics: [][]string{{matchTopic0.Hex()}}}, true},
		{"topic0 set match", Criteria{Topics: [][]string{{unrelatedHash.Hex(), matchTopic0.Hex()}}}, true},
		{"topic0 mismatch", Criteria{Topics: [][]string{{unrelatedHash.Hex()}}}, false},
		{"wildcard topic0 with topic1 match", Criteria{Topics: [][]string{nil, {matchTopic1.Hex()}}}, true},
		{"positive position beyond log topics", Criteria{Topics: [][]string{nil, nil, {matchTopic1.Hex()}}}, false},
		{"wildcard position beyond log topics", Criteria{Topics: [][]string{nil, nil, nil}}, true},
		{"address and topics combined", Criteria{
			Address: []string{matchAddr.Hex()},
			Topics:  [][]string{{matchTopic0.Hex()}, {matchTopic1.Hex()}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.c, matchLog()))
		})
	}
}
