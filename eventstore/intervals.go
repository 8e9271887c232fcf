package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/russross/meddler"

	"github.com/rony4d/go-chain-index/filter"
	"github.com/rony4d/go-chain-index/inter"
	"github.com/rony4d/go-chain-index/utils/dbutil"
)

// Interval ledger. Each (chain, filter) pair owns an ordered set of closed
// block ranges recording what has been indexed for it. Inserts re-merge the
// set inside the same transaction, so after any write the stored rows are
// the minimal disjoint representation of the union (no overlaps, no
// abutments). Reads aggregate coverage across every stored filter the query
// is a subset of.

// InsertLogFilterInterval records, in one transaction, the artifacts fetched
// for a filter over [interval.Start, interval.End] together with the
// coverage itself: the block is upserted with its transactions and logs, the
// filter row is ensured under its canonical id, and the interval is inserted
// and merged with the existing set.
func (s *Store) InsertLogFilterInterval(
	ctx context.Context,
	chainID uint64,
	criteria filter.Criteria,
	block *inter.Block,
	txs []*inter.Transaction,
	logs []*inter.Log,
	interval inter.Interval,
) error {
	filterID, err := filter.ID(chainID, criteria)
	if err != nil {
		return err
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if block != nil {
			if err := insertArtifactsTx(tx, chainID, block, txs, logs); err != nil {
				return err
			}
		}
		if err := ensureLogFilterTx(tx, chainID, filterID, criteria); err != nil {
			return err
		}
		return insertAndMergeIntervalTx(tx, logFilterIntervalTable, filterID, interval)
	})
}

// GetLogFilterIntervals returns the merged union of coverage valid for the
// given criteria: the intervals of every stored filter of the chain that the
// criteria is a subset of (a narrower filter transparently reuses a broader
// filter's coverage).
func (s *Store) GetLogFilterIntervals(ctx context.Context, chainID uint64, criteria filter.Criteria) ([]inter.Interval, error) {
	if _, err := criteria.Normalize(); err != nil {
		return nil, err
	}

	var stored []*logFilterRow
	err := meddler.QueryAll(s.db, &stored,
		`SELECT * FROM log_filters WHERE chain_id = ?`, chainID)
	if err != nil {
		return nil, fmt.Errorf("load log filters for chain %d: %w", chainID, err)
	}

	var covering []string
	for _, row := range stored {
		b, err := filter.CriteriaFromSlotsJSON([5]string{row.Address, row.Topic0, row.Topic1, row.Topic2, row.Topic3})
		if err != nil {
			return nil, fmt.Errorf("log filter %s: %w", row.ID, err)
		}
		if filter.Subset(criteria, b) {
			covering = append(covering, row.ID)
		}
	}

	var all []inter.Interval
	for _, id := range covering {
		ivs, err := loadIntervals(s.db, logFilterIntervalTable, id)
		if err != nil {
			return nil, err
		}
		all = append(all, ivs...)
	}
	return inter.NormalizeIntervals(all), nil
}

// InsertFactoryLogFilterInterval records coverage of the child contracts'
// logs under a factory, with the backing artifacts, mirroring
// InsertLogFilterInterval on the factory interval table.
func (s *Store) InsertFactoryLogFilterInterval(
	ctx context.Context,
	chainID uint64,
	f filter.Factory,
	block *inter.Block,
	txs []*inter.Transaction,
	logs []*inter.Log,
	interval inter.Interval,
) error {
	factoryID := filter.FactoryID(chainID, f)

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if block != nil {
			if err := insertArtifactsTx(tx, chainID, block, txs, logs); err != nil {
				return err
			}
		}
		if err := ensureFactoryTx(tx, chainID, factoryID, f); err != nil {
			return err
		}
		return insertAndMergeIntervalTx(tx, factoryIntervalTable, factoryID, interval)
	})
}

// GetFactoryLogFilterIntervals returns the merged child-log coverage for a
// factory. Factories are matched solely by parent address, event selector
// and child-address location; any topics carried by the query do not narrow
// the answer.
func (s *Store) GetFactoryLogFilterIntervals(ctx context.Context, chainID uint64, f filter.Factory) ([]inter.Interval, error) {
	factoryID := filter.FactoryID(chainID, f)
	ivs, err := loadIntervals(s.db, factoryIntervalTable, factoryID)
	if err != nil {
		return nil, err
	}
	return inter.NormalizeIntervals(ivs), nil
}

// intervalTable abstracts the two interval tables so the merge logic is
// written once.
type intervalTable struct {
	name      string
	keyColumn string
}

var (
	logFilterIntervalTable = intervalTable{name: "log_filter_intervals", keyColumn: "filter_id"}
	factoryIntervalTable   = intervalTable{name: "factory_log_filter_intervals", keyColumn: "factory_id"}
)

func ensureLogFilterTx(tx *sql.Tx, chainID uint64, filterID string, criteria filter.Criteria) error {
	slots, err := criteria.SlotsJSON()
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO log_filters (id, chain_id, address, topic0, topic1, topic2, topic3)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		filterID, chainID, slots[0], slots[1], slots[2], slots[3], slots[4])
	if err != nil {
		return fmt.Errorf("ensure log filter %s: %w", filterID, err)
	}
	return nil
}

func ensureFactoryTx(tx *sql.Tx, chainID uint64, factoryID string, f filter.Factory) error {
	_, err := tx.Exec(
		`INSERT INTO factories (id, chain_id, address, event_selector, child_address_location)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		factoryID, chainID,
		dbutil.EncodeAddress(f.Address),
		dbutil.EncodeHash(f.EventSelector),
		f.ChildLocation.String())
	if err != nil {
		return fmt.Errorf("ensure factory %s: %w", factoryID, err)
	}
	return nil
}

// insertAndMergeIntervalTx appends one observation and rewrites the key's
// interval set as its minimal merged form. The read-back happens inside the
// caller's transaction, so concurrent writers serialize on the write lock
// and each sees the previous writer's merged set.
func insertAndMergeIntervalTx(tx *sql.Tx, table intervalTable, key string, iv inter.Interval) error {
	if iv.Start == nil || iv.End == nil || iv.Start.Cmp(iv.End) > 0 {
		return fmt.Errorf("eventstore: malformed interval %s", iv)
	}

	_, err := tx.Exec(
		fmt.Sprintf(`INSERT INTO %s (%s, start_block, end_block) VALUES (?, ?, ?)`, table.name, table.keyColumn),
		key, dbutil.EncodeBigNum(iv.Start), dbutil.EncodeBigNum(iv.End))
	if err != nil {
		return fmt.Errorf("insert interval into %s: %w", table.name, err)
	}

	existing, err := loadIntervals(tx, table, key)
	if err != nil {
		return err
	}
	merged := inter.NormalizeIntervals(existing)
	if len(merged) == len(existing) {
		// The insert did not collapse anything; rows are already minimal.
		return nil
	}

	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table.name, table.keyColumn), key); err != nil {
		return fmt.Errorf("clear intervals in %s: %w", table.name, err)
	}
	for _, m := range merged {
		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %s (%s, start_block, end_block) VALUES (?, ?, ?)`, table.name, table.keyColumn),
			key, dbutil.EncodeBigNum(m.Start), dbutil.EncodeBigNum(m.End)); err != nil {
			return fmt.Errorf("rewrite intervals in %s: %w", table.name, err)
		}
	}
	return nil
}

// loadIntervals reads the interval set for one key, ordered by start block.
func loadIntervals(db meddler.DB, table intervalTable, key string) ([]inter.Interval, error) {
	query := fmt.Sprintf(
		`SELECT * FROM %s WHERE %s = ? ORDER BY start_block ASC`, table.name, table.keyColumn)

	var out []inter.Interval
	switch table {
	case logFilterIntervalTable:
		var rows []*intervalRow
		if err := meddler.QueryAll(db, &rows, query, key); err != nil {
			return nil, fmt.Errorf("load intervals from %s: %w", table.name, err)
		}
		for _, r := range rows {
			out = append(out, inter.Interval{Start: r.StartBlock, End: r.EndBlock})
		}
	default:
		var rows []*factoryIntervalRow
		if err := meddler.QueryAll(db, &rows, query, key); err != nil {
			return nil, fmt.Errorf("load intervals from %s: %w", table.name, err)
		}
		for _, r := range rows {
			out = append(out, inter.Interval{Start: r.StartBlock, End: r.EndBlock})
		}
	}
	return out, nil
}
