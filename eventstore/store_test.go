package eventstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-chain-index/eventstore"
	"github.com/rony4d/go-chain-index/inter"
)

func TestOpen_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{
		"blocks", "transactions", "logs",
		"log_filters", "log_filter_intervals",
		"factories", "factory_log_filter_intervals",
		"contract_read_results",
	} {
		var name string
		err := s.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestOpen_IsIdempotentAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := eventstore.Open(eventstore.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = eventstore.Open(eventstore.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := eventstore.Open(eventstore.Config{})
	assert.Error(t, err)
}

// Re-inserting the same artifacts is a no-op on every table.
func TestArtifactInsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	block := makeBlock(0x01, 15495110, 1000)
	tx := makeTx(block, 0, 0xa1)
	log := makeLog(block, tx, 0, usdcAddress, []common.Hash{transferTopic}, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertRealtimeBlock(
			ctx, 1, block, []*inter.Transaction{tx}, []*inter.Log{log}))
	}

	for _, table := range []string{"blocks", "transactions", "logs"} {
		var count int
		require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM `+table).Scan(&count))
		assert.Equal(t, 1, count, "table %s", table)
	}
}

func TestInsertRealtimeBlock_ReferentialViolations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	block := makeBlock(0x01, 15495110, 1000)
	tx := makeTx(block, 0, 0xa1)

	t.Run("log without its transaction", func(t *testing.T) {
		orphan := makeLog(block, tx, 0, usdcAddress, []common.Hash{transferTopic}, nil)
		err := s.InsertRealtimeBlock(ctx, 1, block, nil, []*inter.Log{orphan})
		assert.ErrorIs(t, err, eventstore.ErrReferentialViolation)
	})

	t.Run("transaction pointing at another block", func(t *testing.T) {
		stray := makeTx(block, 0, 0xa2)
		stray.BlockHash = seedHash(0x7f)
		err := s.InsertRealtimeBlock(ctx, 1, block, []*inter.Transaction{stray}, nil)
		assert.ErrorIs(t, err, eventstore.ErrReferentialViolation)
	})

	t.Run("log pointing at another block", func(t *testing.T) {
		stray := makeLog(block, tx, 0, usdcAddress, []common.Hash{transferTopic}, nil)
		stray.BlockHash = seedHash(0x7f)
		err := s.InsertRealtimeBlock(ctx, 1, block, []*inter.Transaction{tx}, []*inter.Log{stray})
		assert.ErrorIs(t, err, eventstore.ErrReferentialViolation)
	})

	// Nothing from the failed batches may have landed.
	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM blocks`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestInsertRealtimeBlock_RejectsMalformedTransaction(t *testing.T) {
	s := newTestStore(t)

	block := makeBlock(0x01, 15495110, 1000)
	tx := makeTx(block, 0, 0xa1)
	tx.MaxFeePerGas = nil // dynamic fee tx without its fee cap

	err := s.InsertRealtimeBlock(context.Background(), 1, block, []*inter.Transaction{tx}, nil)
	assert.Error(t, err)
}

// Blob transactions round-trip through the replay path with their variant
// fields intact.
func TestBlobTransactionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	block := makeBlock(0x01, 15495110, 1000)
	tx := makeTx(block, 0, 0xa1)
	tx.Type = inter.BlobTxType
	tx.MaxFeePerBlobGas = bigN(7)
	tx.BlobVersionedHashes = []common.Hash{seedHash(0x61), seedHash(0x62)}
	tx.AccessList = []inter.AccessTuple{{
		Address:     usdcAddress,
		StorageKeys: []common.Hash{seedHash(0x63)},
	}}
	log := makeLog(block, tx, 0, usdcAddress, []common.Hash{transferTopic}, nil)

	require.NoError(t, s.InsertRealtimeBlock(ctx, 1, block, []*inter.Transaction{tx}, []*inter.Log{log}))

	events := collectEvents(t, s.LogEvents(ctx, wholeWindow(
		eventstore.LogFilterSource{Name: "usdc", ChainID: 1, Criteria: usdcCriteria},
	)))
	require.Len(t, events, 1)

	got := events[0].Transaction
	assert.Equal(t, inter.BlobTxType, got.Type)
	require.NotNil(t, got.MaxFeePerBlobGas)
	assert.Zero(t, bigN(7).Cmp(got.MaxFeePerBlobGas))
	assert.Equal(t, tx.BlobVersionedHashes, got.BlobVersionedHashes)
	require.Len(t, got.AccessList, 1)
	assert.Equal(t, usdcAddress, got.AccessList[0].Address)
}
