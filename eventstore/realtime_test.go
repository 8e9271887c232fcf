package eventstore_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-chain-index/filter"
	"github.com/rony4d/go-chain-index/inter"
)

func TestInsertRealtimeBlock_WritesArtifactsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	block := makeBlock(0x01, 15495110, 1000)
	tx := makeTx(block, 0, 0xa1)
	log := makeLog(block, tx, 0, usdcAddress, []common.Hash{transferTopic}, nil)

	require.NoError(t, s.InsertRealtimeBlock(ctx, 1, block, []*inter.Transaction{tx}, []*inter.Log{log}))

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM blocks`).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM log_filter_intervals`).Scan(&count))
	assert.Equal(t, 0, count, "realtime block insert must not record coverage")
}

func TestInsertRealtimeInterval_LogFiltersAndFactories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "topic1")

	require.NoError(t, s.InsertRealtimeInterval(
		ctx, 1,
		[]filter.Criteria{usdcCriteria},
		[]filter.Factory{f},
		inter.NewInterval(15495110, 15495120)))

	// The plain filter gets normal coverage.
	got, err := s.GetLogFilterIntervals(ctx, 1, usdcCriteria)
	require.NoError(t, err)
	requireIntervals(t, [][2]uint64{{15495110, 15495120}}, got)

	// The factory's raw parent emissions are covered through the normal log
	// filter path under the synthetic (address + selector) filter.
	got, err = s.GetLogFilterIntervals(ctx, 1, filter.SyntheticCriteria(f))
	require.NoError(t, err)
	requireIntervals(t, [][2]uint64{{15495110, 15495120}}, got)

	// And the factory's own child-log coverage is recorded.
	got, err = s.GetFactoryLogFilterIntervals(ctx, 1, f)
	require.NoError(t, err)
	requireIntervals(t, [][2]uint64{{15495110, 15495120}}, got)
}

func TestInsertRealtimeInterval_MergesWithBackfillCoverage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertLogFilterInterval(
		ctx, 1, usdcCriteria, nil, nil, nil, inter.NewInterval(15495100, 15495109)))
	require.NoError(t, s.InsertRealtimeInterval(
		ctx, 1, []filter.Criteria{usdcCriteria}, nil, inter.NewInterval(15495110, 15495115)))

	got, err := s.GetLogFilterIntervals(ctx, 1, usdcCriteria)
	require.NoError(t, err)
	requireIntervals(t, [][2]uint64{{15495100, 15495115}}, got)
}

func TestDeleteRealtimeData_TruncatesStraddlingInterval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertLogFilterInterval(
		ctx, 1, usdcCriteria, nil, nil, nil, inter.NewInterval(15495110, 15495111)))

	require.NoError(t, s.DeleteRealtimeData(ctx, 1, bigN(15495111)))

	got, err := s.GetLogFilterIntervals(ctx, 1, usdcCriteria)
	require.NoError(t, err)
	requireIntervals(t, [][2]uint64{{15495110, 15495110}}, got)
}

func TestDeleteRealtimeData_RemovesArtifactsFromForkPoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blockOne := makeBlock(0x01, 15495110, 1000)
	txOne := makeTx(blockOne, 0, 0xa1)
	logOne := makeLog(blockOne, txOne, 0, usdcAddress, []common.Hash{transferTopic}, nil)
	require.NoError(t, s.InsertRealtimeBlock(ctx, 1, blockOne, []*inter.Transaction{txOne}, []*inter.Log{logOne}))

	blockTwo := makeBlock(0x02, 15495111, 2000)
	txTwo := makeTx(blockTwo, 0, 0xb1)
	logTwo := makeLog(blockTwo, txTwo, 0, usdcAddress, []common.Hash{transferTopic}, nil)
	require.NoError(t, s.InsertRealtimeBlock(ctx, 1, blockTwo, []*inter.Transaction{txTwo}, []*inter.Log{logTwo}))

	require.NoError(t, s.DeleteRealtimeData(ctx, 1, bigN(15495111)))

	for _, table := range []string{"blocks", "transactions", "logs"} {
		var count int
		require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM `+table).Scan(&count))
		assert.Equal(t, 1, count, "table %s must only keep pre-fork rows", table)
	}

	var number string
	require.NoError(t, s.DB().QueryRow(`SELECT number FROM blocks`).Scan(&number))
	assert.Contains(t, number, "ec6fc6") // 15495110
}

func TestDeleteRealtimeData_DropsIntervalEntirelyPastForkPoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertLogFilterInterval(
		ctx, 1, usdcCriteria, nil, nil, nil, inter.NewInterval(15495110, 15495120)))

	require.NoError(t, s.DeleteRealtimeData(ctx, 1, bigN(15495100)))

	got, err := s.GetLogFilterIntervals(ctx, 1, usdcCriteria)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteRealtimeData_TruncatesFactoryIntervals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "topic1")

	require.NoError(t, s.InsertFactoryLogFilterInterval(
		ctx, 1, f, nil, nil, nil, inter.NewInterval(15495110, 15495120)))

	require.NoError(t, s.DeleteRealtimeData(ctx, 1, bigN(15495115)))

	got, err := s.GetFactoryLogFilterIntervals(ctx, 1, f)
	require.NoError(t, err)
	requireIntervals(t, [][2]uint64{{15495110, 15495114}}, got)
}

func TestDeleteRealtimeData_OtherChainsUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertLogFilterInterval(
		ctx, 1, usdcCriteria, nil, nil, nil, inter.NewInterval(15495110, 15495120)))
	require.NoError(t, s.InsertLogFilterInterval(
		ctx, 5, usdcCriteria, nil, nil, nil, inter.NewInterval(15495110, 15495120)))

	require.NoError(t, s.DeleteRealtimeData(ctx, 1, bigN(15495100)))

	got, err := s.GetLogFilterIntervals(ctx, 5, usdcCriteria)
	require.NoError(t, err)
	requireIntervals(t, [][2]uint64{{15495110, 15495120}}, got)
}
