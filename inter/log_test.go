package inter

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogEventID(t *testing.T) {
	blockHash := common.HexToHash("0x0f4b7ea8e8fbcd50c0cca2f967ad6f445c15dc23079a4a9a068a284846ff9d10")

	tests := []struct {
		name     string
		logIndex uint64
		want     string
	}{
		{"zero index", 0, blockHash.Hex() + "-0x0"},
		{"single digit", 6, blockHash.Hex() + "-0x6"},
		{"multi digit has no leading zeros", 491, blockHash.Hex() + "-0x1eb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Log{BlockHash: blockHash, LogIndex: tt.logIndex}
			assert.Equal(t, tt.want, l.EventID())
		})
	}
}

func TestLogTopic(t *testing.T) {
	l := &Log{Topics: []common.Hash{
		common.HexToHash("0x01"),
		common.HexToHash("0x02"),
	}}

	topic, ok := l.Topic(0)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0x01"), topic)

	topic, ok = l.Topic(1)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0x02"), topic)

	_, ok = l.Topic(2)
	assert.False(t, ok)
	_, ok = l.Topic(-1)
	assert.False(t, ok)
}
