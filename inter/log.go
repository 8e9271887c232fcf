package inter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxTopics is the maximum number of indexed topics a log can carry.
const MaxTopics = 4

// Log is a contract event emission. Logs are identified by
// (chainId, blockHash, logIndex) and reference their containing transaction
// and block.
type Log struct {
	BlockHash   common.Hash
	BlockNumber *big.Int

	// LogIndex is the position of the log within its block.
	LogIndex uint64

	TransactionHash  common.Hash
	TransactionIndex uint64

	// Address is the contract that emitted the log.
	Address common.Address

	// Topics holds the 0 to 4 indexed fields; position 0 is conventionally
	// the event selector.
	Topics []common.Hash

	Data hexutil.Bytes

	// Removed is set when the log was reverted by a reorg.
	Removed bool
}

// Topic returns the topic at position i, or false when the log has fewer
// topics.
func (l *Log) Topic(i int) (common.Hash, bool) {
	if i < 0 || i >= len(l.Topics) {
		return common.Hash{}, false
	}
	return l.Topics[i], true
}

// EventID derives the stable event identifier handed to downstream
// consumers: the block hash and the log index joined with a dash. The log
// index renders as minimal lowercase hex.
func (l *Log) EventID() string {
	return fmt.Sprintf("%s-0x%x", l.BlockHash.Hex(), l.LogIndex)
}
