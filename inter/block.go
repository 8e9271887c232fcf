// Package inter defines the internal representations of chain artifacts the
// event indexer persists: blocks, transactions, logs, and the closed block
// intervals that record indexing coverage.
//
// Key concepts:
//   - Block: a full block header as observed over RPC, immutable once stored
//   - Transaction: the union of the EIP-2718 envelope variants
//   - Log: a contract event emission, the unit the indexer replays
//   - Interval: an inclusive [start, end] block range of indexed coverage
//
// All big-number fields use *big.Int so that 256-bit chain values round-trip
// without loss; hashes and addresses use the go-ethereum common types.
package inter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is a finalized block header together with the identifiers the store
// needs to key it. Blocks are identified by (chainId, hash); the number is
// carried redundantly so that reorg rollback can select by height.
//
// A Block row is immutable once inserted. The only path that removes one is
// a reorg-driven delete of everything at or above a given height.
type Block struct {
	// Hash is the block hash, the natural identifier within a chain.
	Hash common.Hash

	// Number is the block height. Unsigned, up to 256 bits.
	Number *big.Int

	// Timestamp is the block timestamp in seconds since the epoch.
	Timestamp uint64

	// ParentHash links to the previous block in the chain.
	ParentHash common.Hash

	// BaseFeePerGas is the EIP-1559 base fee. Nil on pre-London blocks.
	BaseFeePerGas *big.Int

	Difficulty      *big.Int
	TotalDifficulty *big.Int
	GasLimit        *big.Int
	GasUsed         *big.Int
	Size            *big.Int

	Miner   common.Address
	MixHash common.Hash

	// Nonce is the 8-byte block nonce, kept as raw bytes since it is opaque
	// to the indexer.
	Nonce hexutil.Bytes

	LogsBloom        hexutil.Bytes
	ExtraData        hexutil.Bytes
	ReceiptsRoot     common.Hash
	Sha3Uncles       common.Hash
	StateRoot        common.Hash
	TransactionsRoot common.Hash
}
