package eventstore_test

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-chain-index/eventstore"
	"github.com/rony4d/go-chain-index/inter"
)

// newTestStore opens a fresh store on a temp-dir database, migrated and
// ready, closed with the test.
func newTestStore(t *testing.T) *eventstore.Store {
	t.Helper()

	s, err := eventstore.Open(eventstore.Config{
		Path: filepath.Join(t.TempDir(), "index.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func bigN(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// seedHash and seedAddress fabricate deterministic identifiers for fixtures.
func seedHash(seed byte) common.Hash {
	var h common.Hash
	for i := range h {
		h[i] = seed
	}
	return h
}

func seedAddress(seed byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

// makeBlock fabricates a fully populated block header at the given height
// and timestamp. The seed drives every hash so fixtures never collide.
func makeBlock(seed byte, number, timestamp uint64) *inter.Block {
	return &inter.Block{
		Hash:             seedHash(seed),
		Number:           bigN(number),
		Timestamp:        timestamp,
		ParentHash:       seedHash(seed - 1),
		BaseFeePerGas:    big.NewInt(1_000_000_000),
		Difficulty:       big.NewInt(0),
		TotalDifficulty:  big.NewInt(0),
		GasLimit:         big.NewInt(30_000_000),
		GasUsed:          big.NewInt(12_345_678),
		Size:             big.NewInt(52_123),
		Miner:            seedAddress(seed),
		MixHash:          seedHash(seed + 0x40),
		Nonce:            hexutil.Bytes{0, 0, 0, 0, 0, 0, 0, 0},
		LogsBloom:        make(hexutil.Bytes, 256),
		ExtraData:        hexutil.Bytes{},
		ReceiptsRoot:     seedHash(seed + 0x41),
		Sha3Uncles:       seedHash(seed + 0x42),
		StateRoot:        seedHash(seed + 0x43),
		TransactionsRoot: seedHash(seed + 0x44),
	}
}

// makeTx fabricates a dynamic-fee transaction inside the given block.
func makeTx(block *inter.Block, index uint64, seed byte) *inter.Transaction {
	to := seedAddress(seed + 1)
	return &inter.Transaction{
		Hash:                 seedHash(seed),
		BlockHash:            block.Hash,
		BlockNumber:          new(big.Int).Set(block.Number),
		TransactionIndex:     index,
		From:                 seedAddress(seed),
		To:                   &to,
		Input:                hexutil.Bytes{},
		Value:                big.NewInt(0),
		Nonce:                uint64(seed),
		Gas:                  big.NewInt(21_000),
		Type:                 inter.DynamicFeeTxType,
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		V:                    big.NewInt(1),
		R:                    big.NewInt(2),
		S:                    big.NewInt(3),
	}
}

// makeLog fabricates a log emitted by address inside the given transaction.
func makeLog(block *inter.Block, tx *inter.Transaction, logIndex uint64, address common.Address, topics []common.Hash, data hexutil.Bytes) *inter.Log {
	if data == nil {
		data = hexutil.Bytes{}
	}
	return &inter.Log{
		BlockHash:        block.Hash,
		BlockNumber:      new(big.Int).Set(block.Number),
		LogIndex:         logIndex,
		TransactionHash:  tx.Hash,
		TransactionIndex: tx.TransactionIndex,
		Address:          address,
		Topics:           topics,
		Data:             data,
	}
}

// requireIntervals asserts the merged interval set as (start, end) pairs.
func requireIntervals(t *testing.T, want [][2]uint64, got []inter.Interval) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		require.Zero(t, bigN(w[0]).Cmp(got[i].Start), "interval %d start: want %d got %s", i, w[0], got[i].Start)
		require.Zero(t, bigN(w[1]).Cmp(got[i].End), "interval %d end: want %d got %s", i, w[1], got[i].End)
	}
}
