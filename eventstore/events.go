package eventstore

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	"github.com/rony4d/go-chain-index/filter"
	"github.com/rony4d/go-chain-index/inter"
	"github.com/rony4d/go-chain-index/utils/dbutil"
)

// LogFilterSource describes one direct log filter event source for replay.
type LogFilterSource struct {
	// Name tags the emitted events so the consumer can route them to the
	// right handler.
	Name string

	ChainID  uint64
	Criteria filter.Criteria

	// FromBlock, when set, suppresses events before that height.
	FromBlock *big.Int

	// IncludeEventSelectors, when non-nil, intersects the criteria's topic0
	// position. An empty list matches nothing.
	IncludeEventSelectors []common.Hash
}

// FactorySource describes a factory event source: events of the dynamically
// discovered child contracts.
type FactorySource struct {
	Name    string
	ChainID uint64
	Factory filter.Factory
}

// LogEventsQuery selects a replay window. Timestamps are inclusive on both
// ends.
type LogEventsQuery struct {
	FromTimestamp uint64
	ToTimestamp   uint64

	LogFilters []LogFilterSource
	Factories  []FactorySource

	// PageSize bounds the logs scanned per page; zero selects the default.
	PageSize int
}

// LogEvent is one enriched replay event: the log, its containing block and
// transaction, tagged with the matching source's name. A log matched by
// several sources is emitted once per source.
type LogEvent struct {
	EventSourceName string
	ChainID         uint64
	Log             *inter.Log
	Block           *inter.Block
	Transaction     *inter.Transaction
}

// EventCursor is the replay position after a page: the ordering key of the
// last scanned log.
type EventCursor struct {
	Timestamp   uint64
	ChainID     uint64
	BlockNumber *big.Int
	LogIndex    uint64
}

// LogEventPage is one iterator page.
type LogEventPage struct {
	Events []LogEvent
	Cursor EventCursor
}

// LogEvents returns a lazy iterator over the enriched events matching the
// query's sources within its timestamp window, globally ordered by
// (timestamp, chainId, blockNumber, logIndex). Pages are produced by bounded
// queries; the sequence ends when a page comes back short. Dropping the
// iterator holds no database resources.
func (s *Store) LogEvents(ctx context.Context, q LogEventsQuery) *LogEventIterator {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultLogEventPageSize
	}
	return &LogEventIterator{
		store:    s,
		query:    q,
		pageSize: pageSize,
	}
}

// LogEventIterator pages through the replay sequence. Usage mirrors
// ChildAddressIterator.
type LogEventIterator struct {
	store    *Store
	query    LogEventsQuery
	pageSize int

	// Compiled once on the first Next.
	prepared bool
	sources  []compiledSource

	cursor    *EventCursor
	page      *LogEventPage
	exhausted bool
	closed    bool
	err       error
}

// compiledSource is the matching form of one event source. Exactly one of
// criteria or children is used, keyed on isFactory.
type compiledSource struct {
	name      string
	chainID   uint64
	isFactory bool

	// Log filter form: effective criteria (includeEventSelectors already
	// intersected into topic0) and the optional lower block bound. dead is
	// set when an empty selector override can never match.
	criteria  filter.Criteria
	fromBlock *big.Int
	dead      bool

	// Factory form: discovered child addresses mapped to the block each was
	// first announced in.
	children map[common.Address]*big.Int
}

func (it *LogEventIterator) prepare(ctx context.Context) error {
	for _, src := range it.query.LogFilters {
		compiled, err := compileLogFilterSource(src)
		if err != nil {
			return err
		}
		it.sources = append(it.sources, compiled)
	}
	for _, src := range it.query.Factories {
		children, err := it.store.factoryChildren(ctx, src.ChainID, src.Factory)
		if err != nil {
			return err
		}
		it.sources = append(it.sources, compiledSource{
			name:      src.Name,
			chainID:   src.ChainID,
			isFactory: true,
			children:  children,
		})
	}
	it.prepared = true
	return nil
}

func compileLogFilterSource(src LogFilterSource) (compiledSource, error) {
	norm, err := src.Criteria.Normalize()
	if err != nil {
		return compiledSource{}, err
	}

	compiled := compiledSource{
		name:      src.Name,
		chainID:   src.ChainID,
		criteria:  norm,
		fromBlock: src.FromBlock,
	}

	if src.IncludeEventSelectors != nil {
		include := make([]string, 0, len(src.IncludeEventSelectors))
		for _, sel := range src.IncludeEventSelectors {
			include = append(include, dbutil.EncodeHash(sel))
		}
		effective := intersectSlot(topicSlot(norm, 0), include)
		if len(effective) == 0 {
			compiled.dead = true
			return compiled, nil
		}
		for len(compiled.criteria.Topics) < 1 {
			compiled.criteria.Topics = append(compiled.criteria.Topics, nil)
		}
		compiled.criteria.Topics[0] = effective
	}
	return compiled, nil
}

func topicSlot(c filter.Criteria, i int) []string {
	if i < len(c.Topics) {
		return c.Topics[i]
	}
	return nil
}

// intersectSlot narrows a criteria slot by an override set. A nil slot is
// wildcard, so the override stands alone.
func intersectSlot(slot, override []string) []string {
	if slot == nil {
		return override
	}
	members := make(map[string]struct{}, len(slot))
	for _, v := range slot {
		members[v] = struct{}{}
	}
	var out []string
	for _, v := range override {
		if _, ok := members[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// factoryChildren loads the full child set a factory has announced, with the
// discovery block of each child. A child participates in matching only for
// logs at or past its discovery block.
func (s *Store) factoryChildren(ctx context.Context, chainID uint64, f filter.Factory) (map[common.Address]*big.Int, error) {
	children := make(map[common.Address]*big.Int)

	it := s.childDiscoveries(chainID, f)
	defer it.Close()
	for it.Next(ctx) {
		for _, d := range it.Discoveries() {
			if existing, ok := children[d.Address]; !ok || d.BlockNumber.Cmp(existing) < 0 {
				children[d.Address] = d.BlockNumber
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return children, nil
}

// Next loads the next page. False means exhausted, closed, or failed.
func (it *LogEventIterator) Next(ctx context.Context) bool {
	if it.closed || it.exhausted || it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if !it.prepared {
		if err := it.prepare(ctx); err != nil {
			it.err = err
			return false
		}
	}

	rows, err := it.queryPage(ctx)
	if err != nil {
		it.err = err
		return false
	}
	if len(rows) == 0 {
		it.exhausted = true
		return false
	}
	if len(rows) < it.pageSize {
		// Short page: this is the final one.
		it.exhausted = true
	}

	page, err := it.buildPage(rows)
	if err != nil {
		it.err = err
		return false
	}
	it.page = page
	it.cursor = &page.Cursor
	return true
}

// Page returns the events produced by the last successful Next.
func (it *LogEventIterator) Page() *LogEventPage {
	return it.page
}

// Err returns the first error the iterator hit, if any.
func (it *LogEventIterator) Err() error {
	return it.err
}

// Close terminates the sequence early. Safe to call more than once.
func (it *LogEventIterator) Close() {
	it.closed = true
}

// queryPage scans up to pageSize candidate logs ordered by the global replay
// key, constrained to the timestamp window, past the cursor, and to the
// coarse union of the sources' SQL-expressible predicates. The exact
// per-source match happens host-side in buildPage.
func (it *LogEventIterator) queryPage(ctx context.Context) ([]*logRow, error) {
	pred, args := it.sourcePredicate()

	query := `SELECT l.* FROM logs l
		JOIN blocks b ON b.chain_id = l.chain_id AND b.hash = l.block_hash
		JOIN transactions t ON t.chain_id = l.chain_id AND t.hash = l.transaction_hash
		WHERE b.timestamp >= ? AND b.timestamp <= ? AND (` + pred + `)`
	allArgs := []interface{}{
		dbutil.EncodeUint64(it.query.FromTimestamp),
		dbutil.EncodeUint64(it.query.ToTimestamp),
	}
	allArgs = append(allArgs, args...)

	if it.cursor != nil {
		query += ` AND (b.timestamp > ?
			OR (b.timestamp = ? AND l.chain_id > ?)
			OR (b.timestamp = ? AND l.chain_id = ? AND l.block_number > ?)
			OR (b.timestamp = ? AND l.chain_id = ? AND l.block_number = ? AND l.log_index > ?))`
		ts := dbutil.EncodeUint64(it.cursor.Timestamp)
		num := dbutil.EncodeBigNum(it.cursor.BlockNumber)
		allArgs = append(allArgs,
			ts,
			ts, it.cursor.ChainID,
			ts, it.cursor.ChainID, num,
			ts, it.cursor.ChainID, num, it.cursor.LogIndex,
		)
	}

	query += ` ORDER BY b.timestamp ASC, l.chain_id ASC, l.block_number ASC, l.log_index ASC LIMIT ?`
	allArgs = append(allArgs, it.pageSize)

	var rows []*logRow
	if err := meddler.QueryAll(it.store.db, &rows, query, allArgs...); err != nil {
		return nil, fmt.Errorf("scan replay page: %w", err)
	}
	return rows, nil
}

// sourcePredicate renders the OR-union of what each source can express in
// SQL. It only has to be sound (never exclude a matching log); precision
// comes from the host-side match.
func (it *LogEventIterator) sourcePredicate() (string, []interface{}) {
	var terms []string
	var args []interface{}

	for _, src := range it.sources {
		if src.dead {
			continue
		}
		if src.isFactory && len(src.children) == 0 {
			// No children discovered yet: nothing can match.
			continue
		}

		conds := []string{"l.chain_id = ?"}
		srcArgs := []interface{}{src.chainID}

		if src.isFactory {
			placeholders := make([]string, 0, len(src.children))
			for child := range src.children {
				placeholders = append(placeholders, "?")
				srcArgs = append(srcArgs, dbutil.EncodeAddress(child))
			}
			conds = append(conds, "l.address IN ("+strings.Join(placeholders, ", ")+")")
		} else {
			if src.criteria.Address != nil {
				placeholders := make([]string, len(src.criteria.Address))
				for i, a := range src.criteria.Address {
					placeholders[i] = "?"
					srcArgs = append(srcArgs, a)
				}
				conds = append(conds, "l.address IN ("+strings.Join(placeholders, ", ")+")")
			}
			for pos, slot := range src.criteria.Topics {
				if slot == nil {
					continue
				}
				placeholders := make([]string, len(slot))
				for i, topic := range slot {
					placeholders[i] = "?"
					srcArgs = append(srcArgs, topic)
				}
				conds = append(conds, fmt.Sprintf("l.topic%d IN (%s)", pos, strings.Join(placeholders, ", ")))
			}
			if src.fromBlock != nil {
				conds = append(conds, "l.block_number >= ?")
				srcArgs = append(srcArgs, dbutil.EncodeBigNum(src.fromBlock))
			}
		}

		terms = append(terms, "("+strings.Join(conds, " AND ")+")")
		args = append(args, srcArgs...)
	}

	if len(terms) == 0 {
		return "0", nil
	}
	return strings.Join(terms, " OR "), args
}

// buildPage enriches the scanned logs and fans each one out to every source
// it matches, preserving source input order between duplicates.
func (it *LogEventIterator) buildPage(rows []*logRow) (*LogEventPage, error) {
	blocks, txs, err := it.store.loadPageArtifacts(rows)
	if err != nil {
		return nil, err
	}

	var events []LogEvent
	for _, row := range rows {
		log := row.toLog()
		block, ok := blocks[row.BlockHash]
		if !ok {
			return nil, fmt.Errorf("replay page: block %s vanished mid-scan", row.BlockHash.Hex())
		}
		tx, ok := txs[row.TransactionHash]
		if !ok {
			return nil, fmt.Errorf("replay page: transaction %s vanished mid-scan", row.TransactionHash.Hex())
		}

		for _, src := range it.sources {
			if !it.sourceMatches(src, row.ChainID, log, block) {
				continue
			}
			events = append(events, LogEvent{
				EventSourceName: src.name,
				ChainID:         row.ChainID,
				Log:             log,
				Block:           block,
				Transaction:     tx,
			})
		}
	}

	last := rows[len(rows)-1]
	lastBlock := blocks[last.BlockHash]
	return &LogEventPage{
		Events: events,
		Cursor: EventCursor{
			Timestamp:   lastBlock.Timestamp,
			ChainID:     last.ChainID,
			BlockNumber: last.BlockNumber,
			LogIndex:    last.LogIndex,
		},
	}, nil
}

func (it *LogEventIterator) sourceMatches(src compiledSource, chainID uint64, log *inter.Log, block *inter.Block) bool {
	if src.dead || src.chainID != chainID {
		return false
	}

	if src.isFactory {
		discovered, ok := src.children[log.Address]
		return ok && discovered.Cmp(log.BlockNumber) <= 0
	}

	if src.fromBlock != nil && block.Number.Cmp(src.fromBlock) < 0 {
		return false
	}
	return filter.Matches(src.criteria, log)
}

// loadPageArtifacts fetches the blocks and transactions referenced by a page
// of logs, keyed for enrichment.
func (s *Store) loadPageArtifacts(rows []*logRow) (map[common.Hash]*inter.Block, map[common.Hash]*inter.Transaction, error) {
	blockKeys := make(map[common.Hash]uint64)
	txKeys := make(map[common.Hash]uint64)
	for _, row := range rows {
		blockKeys[row.BlockHash] = row.ChainID
		txKeys[row.TransactionHash] = row.ChainID
	}

	blocks := make(map[common.Hash]*inter.Block, len(blockKeys))
	for hash, chainID := range blockKeys {
		var row blockRow
		err := meddler.QueryRow(s.db, &row,
			`SELECT * FROM blocks WHERE chain_id = ? AND hash = ?`,
			chainID, dbutil.EncodeHash(hash))
		if err != nil {
			return nil, nil, fmt.Errorf("load block %s: %w", hash.Hex(), err)
		}
		blocks[hash] = row.toBlock()
	}

	txs := make(map[common.Hash]*inter.Transaction, len(txKeys))
	for hash, chainID := range txKeys {
		var row transactionRow
		err := meddler.QueryRow(s.db, &row,
			`SELECT * FROM transactions WHERE chain_id = ? AND hash = ?`,
			chainID, dbutil.EncodeHash(hash))
		if err != nil {
			return nil, nil, fmt.Errorf("load transaction %s: %w", hash.Hex(), err)
		}
		tx, err := row.toTransaction()
		if err != nil {
			return nil, nil, err
		}
		txs[hash] = tx
	}
	return blocks, txs, nil
}
