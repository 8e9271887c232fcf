package eventstore_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-chain-index/filter"
	"github.com/rony4d/go-chain-index/inter"
)

var (
	child1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	child2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	child3 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// parentLog fabricates a factory parent emission at (blockNumber, logIndex)
// announcing the child in topic1.
func parentLog(f filter.Factory, blockNumber, logIndex uint64, child common.Address) *inter.Log {
	return &inter.Log{
		BlockHash:       seedHash(byte(blockNumber)),
		BlockNumber:     bigN(blockNumber),
		LogIndex:        logIndex,
		TransactionHash: seedHash(byte(blockNumber) + 0x80),
		Address:         f.Address,
		Topics:          []common.Hash{f.EventSelector, common.BytesToHash(child.Bytes())},
		Data:            hexutil.Bytes{},
	}
}

// parentLogWithData announces the child right-aligned in the data word at
// byte offset 32.
func parentLogWithData(f filter.Factory, blockNumber, logIndex uint64, child common.Address) *inter.Log {
	data := make([]byte, 64)
	copy(data[32+12:], child.Bytes())
	return &inter.Log{
		BlockHash:       seedHash(byte(blockNumber)),
		BlockNumber:     bigN(blockNumber),
		LogIndex:        logIndex,
		TransactionHash: seedHash(byte(blockNumber) + 0x80),
		Address:         f.Address,
		Topics:          []common.Hash{f.EventSelector},
		Data:            data,
	}
}

func collectChildren(t *testing.T, it interface {
	Next(context.Context) bool
	Page() []common.Address
	Err() error
	Close()
}) []common.Address {
	t.Helper()
	defer it.Close()

	var out []common.Address
	for it.Next(context.Background()) {
		page := it.Page()
		require.NotEmpty(t, page, "iterator must never yield an empty page")
		out = append(out, page...)
	}
	require.NoError(t, it.Err())
	return out
}

func TestChildAddresses_FromTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "topic1")

	require.NoError(t, s.InsertFactoryChildAddressLogs(ctx, 1, []*inter.Log{
		parentLog(f, 100, 0, child1),
		parentLog(f, 100, 1, child3),
	}))

	it := s.ChildAddresses(ctx, 1, f, bigN(150), 0)
	got := collectChildren(t, it)
	assert.Equal(t, []common.Address{child1, child3}, got)
}

func TestChildAddresses_FromDataOffset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "offset32")

	require.NoError(t, s.InsertFactoryChildAddressLogs(ctx, 1, []*inter.Log{
		parentLogWithData(f, 100, 0, child1),
		parentLogWithData(f, 101, 0, child2),
	}))

	it := s.ChildAddresses(ctx, 1, f, bigN(150), 0)
	got := collectChildren(t, it)
	assert.Equal(t, []common.Address{child1, child2}, got)
}

func TestChildAddresses_UpToBlockExcludesLaterDiscoveries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "topic1")

	require.NoError(t, s.InsertFactoryChildAddressLogs(ctx, 1, []*inter.Log{
		parentLog(f, 100, 0, child1),
		parentLog(f, 200, 0, child2),
	}))

	it := s.ChildAddresses(ctx, 1, f, bigN(150), 0)
	got := collectChildren(t, it)
	assert.Equal(t, []common.Address{child1}, got)
}

func TestChildAddresses_PaginatesInDiscoveryOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "topic1")

	children := []common.Address{child1, child2, child3}
	var logs []*inter.Log
	for i, child := range children {
		logs = append(logs, parentLog(f, uint64(100+i), 0, child))
	}
	require.NoError(t, s.InsertFactoryChildAddressLogs(ctx, 1, logs))

	it := s.ChildAddresses(ctx, 1, f, bigN(150), 1)
	defer it.Close()

	var pages int
	var got []common.Address
	for it.Next(ctx) {
		require.Len(t, it.Page(), 1)
		got = append(got, it.Page()...)
		pages++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 3, pages)
	assert.Equal(t, children, got)
}

func TestChildAddresses_EmptySequenceTerminatesImmediately(t *testing.T) {
	s := newTestStore(t)
	f := testFactory(t, "topic1")

	it := s.ChildAddresses(context.Background(), 1, f, bigN(150), 0)
	defer it.Close()
	assert.False(t, it.Next(context.Background()))
	assert.NoError(t, it.Err())
}

func TestChildAddresses_OtherFactoriesLogsIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "topic1")

	other := f
	other.Address = seedAddress(0xbb)

	require.NoError(t, s.InsertFactoryChildAddressLogs(ctx, 1, []*inter.Log{
		parentLog(f, 100, 0, child1),
		parentLog(other, 100, 1, child2),
	}))

	it := s.ChildAddresses(ctx, 1, f, bigN(150), 0)
	got := collectChildren(t, it)
	assert.Equal(t, []common.Address{child1}, got)
}

func TestChildAddresses_CloseStopsIteration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := testFactory(t, "topic1")

	require.NoError(t, s.InsertFactoryChildAddressLogs(ctx, 1, []*inter.Log{
		parentLog(f, 100, 0, child1),
		parentLog(f, 101, 0, child2),
	}))

	it := s.ChildAddresses(ctx, 1, f, bigN(150), 1)
	require.True(t, it.Next(ctx))
	it.Close()
	assert.False(t, it.Next(ctx))
}
