package eventstore

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	"github.com/rony4d/go-chain-index/filter"
	"github.com/rony4d/go-chain-index/inter"
	"github.com/rony4d/go-chain-index/utils/dbutil"
)

// InsertFactoryChildAddressLogs writes raw factory parent-emission logs so
// that child addresses can be discovered from them later. Unlike the filter
// interval writes, this path stores logs alone; the containing artifacts
// arrive through the normal backfill inserts for the same range.
func (s *Store) InsertFactoryChildAddressLogs(ctx context.Context, chainID uint64, logs []*inter.Log) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, l := range logs {
			if err := insertLogTx(tx, chainID, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// ChildDiscovery is one announced child contract together with the block of
// the announcing parent emission.
type ChildDiscovery struct {
	Address     common.Address
	BlockNumber *big.Int
}

// ChildAddresses returns a single-pass iterator over the child contract
// addresses a factory has announced up to and including upToBlock, in
// discovery order (block number, then log index). Each call to Next loads
// one page; pages are never empty, and the sequence ends when the underlying
// query runs dry. Dropping the iterator after any page holds no database
// resources.
func (s *Store) ChildAddresses(ctx context.Context, chainID uint64, f filter.Factory, upToBlock *big.Int, pageSize int) *ChildAddressIterator {
	if pageSize <= 0 {
		pageSize = DefaultChildAddressPageSize
	}
	return &ChildAddressIterator{
		store:    s,
		chainID:  chainID,
		factory:  f,
		upTo:     upToBlock,
		pageSize: pageSize,
	}
}

// childDiscoveries is the unbounded variant the replay iterator uses to
// materialize a factory's full child set with discovery blocks.
func (s *Store) childDiscoveries(chainID uint64, f filter.Factory) *ChildAddressIterator {
	return &ChildAddressIterator{
		store:    s,
		chainID:  chainID,
		factory:  f,
		pageSize: DefaultChildAddressPageSize,
	}
}

// ChildAddressIterator is the lazy page sequence produced by ChildAddresses.
//
//	it := store.ChildAddresses(ctx, chainID, f, upTo, 0)
//	defer it.Close()
//	for it.Next(ctx) {
//		use(it.Page())
//	}
//	if err := it.Err(); err != nil { ... }
type ChildAddressIterator struct {
	store    *Store
	chainID  uint64
	factory  filter.Factory
	upTo     *big.Int // nil means unbounded
	pageSize int

	// Cursor past the last returned row.
	cursorBlock *big.Int
	cursorIndex uint64
	started     bool

	page   []ChildDiscovery
	err    error
	closed bool
}

// Next advances to the next page. It returns false once the sequence is
// exhausted, the iterator is closed, or an error occurred.
func (it *ChildAddressIterator) Next(ctx context.Context) bool {
	if it.closed || it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}

	query := `SELECT * FROM logs
		WHERE chain_id = ? AND address = ? AND topic0 = ?`
	args := []interface{}{
		it.chainID,
		dbutil.EncodeAddress(it.factory.Address),
		dbutil.EncodeHash(it.factory.EventSelector),
	}
	if it.upTo != nil {
		query += ` AND block_number <= ?`
		args = append(args, dbutil.EncodeBigNum(it.upTo))
	}
	if it.started {
		query += ` AND (block_number > ? OR (block_number = ? AND log_index > ?))`
		cursor := dbutil.EncodeBigNum(it.cursorBlock)
		args = append(args, cursor, cursor, it.cursorIndex)
	}
	query += ` ORDER BY block_number ASC, log_index ASC LIMIT ?`
	args = append(args, it.pageSize)

	var rows []*logRow
	if err := meddler.QueryAll(it.store.db, &rows, query, args...); err != nil {
		it.err = err
		return false
	}
	if len(rows) == 0 {
		it.closed = true
		return false
	}

	page := make([]ChildDiscovery, 0, len(rows))
	for _, row := range rows {
		child, err := filter.ExtractChildAddress(it.factory.ChildLocation, row.toLog())
		if err != nil {
			it.err = err
			return false
		}
		page = append(page, ChildDiscovery{Address: child, BlockNumber: row.BlockNumber})
	}

	last := rows[len(rows)-1]
	it.cursorBlock = last.BlockNumber
	it.cursorIndex = last.LogIndex
	it.started = true
	it.page = page
	return true
}

// Page returns the addresses discovered in the last page, in discovery
// order.
func (it *ChildAddressIterator) Page() []common.Address {
	out := make([]common.Address, len(it.page))
	for i, d := range it.page {
		out[i] = d.Address
	}
	return out
}

// Discoveries returns the last page with each child's discovery block.
func (it *ChildAddressIterator) Discoveries() []ChildDiscovery {
	return it.page
}

// Err returns the first error the iterator hit, if any.
func (it *ChildAddressIterator) Err() error {
	return it.err
}

// Close terminates the sequence early. Safe to call more than once.
func (it *ChildAddressIterator) Close() {
	it.closed = true
}
