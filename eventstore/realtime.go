package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rony4d/go-chain-index/filter"
	"github.com/rony4d/go-chain-index/inter"
	"github.com/rony4d/go-chain-index/utils/dbutil"
)

// Realtime ingestion. Realtime blocks land as plain artifacts; coverage is
// recorded separately once the range is known final enough, and a reorg
// rolls both back from the fork point.

// InsertRealtimeBlock upserts one realtime-ingested block with its
// transactions and logs. No interval is written; coverage for realtime
// ranges arrives via InsertRealtimeInterval.
func (s *Store) InsertRealtimeBlock(ctx context.Context, chainID uint64, block *inter.Block, txs []*inter.Transaction, logs []*inter.Log) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		return insertArtifactsTx(tx, chainID, block, txs, logs)
	})
}

// InsertRealtimeInterval records coverage over one realtime range for a set
// of log filters and factories at once. Each filter gets a normal interval
// insert-and-merge. Each factory additionally gets the same range under its
// synthetic parent-emission filter (address + event selector), so the raw
// parent coverage stays visible through the log filter path, plus the
// factory's own child-log interval.
func (s *Store) InsertRealtimeInterval(
	ctx context.Context,
	chainID uint64,
	criterias []filter.Criteria,
	factories []filter.Factory,
	interval inter.Interval,
) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, c := range criterias {
			filterID, err := filter.ID(chainID, c)
			if err != nil {
				return err
			}
			if err := ensureLogFilterTx(tx, chainID, filterID, c); err != nil {
				return err
			}
			if err := insertAndMergeIntervalTx(tx, logFilterIntervalTable, filterID, interval); err != nil {
				return err
			}
		}

		for _, f := range factories {
			synthetic := filter.SyntheticCriteria(f)
			filterID, err := filter.ID(chainID, synthetic)
			if err != nil {
				return err
			}
			if err := ensureLogFilterTx(tx, chainID, filterID, synthetic); err != nil {
				return err
			}
			if err := insertAndMergeIntervalTx(tx, logFilterIntervalTable, filterID, interval); err != nil {
				return err
			}

			factoryID := filter.FactoryID(chainID, f)
			if err := ensureFactoryTx(tx, chainID, factoryID, f); err != nil {
				return err
			}
			if err := insertAndMergeIntervalTx(tx, factoryIntervalTable, factoryID, interval); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRealtimeData rolls the chain back to just before fromBlock: every
// log, transaction and block at or above that height is deleted, and every
// coverage interval of the chain is truncated so no range at or above
// fromBlock remains. The whole rollback is one atomic transaction.
func (s *Store) DeleteRealtimeData(ctx context.Context, chainID uint64, fromBlock *big.Int) error {
	boundary := dbutil.EncodeBigNum(fromBlock)

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM logs WHERE chain_id = ? AND block_number >= ?`,
			`DELETE FROM transactions WHERE chain_id = ? AND block_number >= ?`,
			`DELETE FROM blocks WHERE chain_id = ? AND number >= ?`,
		} {
			if _, err := tx.Exec(stmt, chainID, boundary); err != nil {
				return fmt.Errorf("reorg delete: %w", err)
			}
		}

		if err := truncateIntervalsTx(tx, logFilterIntervalTable,
			`SELECT id FROM log_filters WHERE chain_id = ?`, chainID, fromBlock); err != nil {
			return err
		}
		return truncateIntervalsTx(tx, factoryIntervalTable,
			`SELECT id FROM factories WHERE chain_id = ?`, chainID, fromBlock)
	})
}

// truncateIntervalsTx shrinks every interval of the chain's keys in one
// table: rows entirely past the boundary are deleted, straddling rows end at
// fromBlock - 1.
func truncateIntervalsTx(tx *sql.Tx, table intervalTable, keyQuery string, chainID uint64, fromBlock *big.Int) error {
	boundary := dbutil.EncodeBigNum(fromBlock)
	limit := dbutil.EncodeBigNum(new(big.Int).Sub(fromBlock, big.NewInt(1)))

	keyRows, err := tx.Query(keyQuery, chainID)
	if err != nil {
		return fmt.Errorf("reorg truncate: list keys: %w", err)
	}
	defer keyRows.Close()

	var keys []string
	for keyRows.Next() {
		var key string
		if err := keyRows.Scan(&key); err != nil {
			return fmt.Errorf("reorg truncate: scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := keyRows.Err(); err != nil {
		return fmt.Errorf("reorg truncate: %w", err)
	}

	for _, key := range keys {
		if _, err := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND start_block >= ?`, table.name, table.keyColumn),
			key, boundary); err != nil {
			return fmt.Errorf("reorg truncate %s: %w", table.name, err)
		}
		if _, err := tx.Exec(
			fmt.Sprintf(`UPDATE %s SET end_block = ? WHERE %s = ? AND end_block >= ?`, table.name, table.keyColumn),
			limit, key, boundary); err != nil {
			return fmt.Errorf("reorg truncate %s: %w", table.name, err)
		}
	}
	return nil
}
