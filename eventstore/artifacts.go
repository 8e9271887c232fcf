package eventstore

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-chain-index/inter"
	"github.com/rony4d/go-chain-index/utils/dbutil"
)

// Artifact writes. Blocks, transactions and logs are keyed by their
// chain-native identifiers; re-inserting an existing artifact is a no-op, so
// overlapping backfill ranges and realtime replays never duplicate rows.

const insertBlockSQL = `INSERT INTO blocks (
	chain_id, hash, number, timestamp, parent_hash, base_fee_per_gas,
	difficulty, total_difficulty, gas_limit, gas_used, size, miner, mix_hash,
	nonce, logs_bloom, extra_data, receipts_root, sha3_uncles, state_root,
	transactions_root
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (chain_id, hash) DO NOTHING`

const insertTransactionSQL = `INSERT INTO transactions (
	chain_id, hash, block_hash, block_number, transaction_index, from_address,
	to_address, input, value, nonce, gas, tx_type, gas_price, max_fee_per_gas,
	max_priority_fee_per_gas, max_fee_per_blob_gas, access_list,
	blob_versioned_hashes, v, r, s
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (chain_id, hash) DO NOTHING`

const insertLogSQL = `INSERT INTO logs (
	chain_id, block_hash, log_index, block_number, transaction_hash,
	transaction_index, address, topic0, topic1, topic2, topic3, data, removed
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (chain_id, block_hash, log_index) DO NOTHING`

func insertBlockTx(tx *sql.Tx, chainID uint64, b *inter.Block) error {
	row := newBlockRow(chainID, b)
	_, err := tx.Exec(insertBlockSQL,
		row.ChainID,
		dbutil.EncodeHash(row.Hash),
		dbutil.EncodeBigNum(row.Number),
		dbutil.EncodeUint64(row.Timestamp),
		dbutil.EncodeHash(row.ParentHash),
		encodeNullableBigNum(row.BaseFeePerGas),
		dbutil.EncodeBigNum(row.Difficulty),
		dbutil.EncodeBigNum(row.TotalDifficulty),
		dbutil.EncodeBigNum(row.GasLimit),
		dbutil.EncodeBigNum(row.GasUsed),
		dbutil.EncodeBigNum(row.Size),
		dbutil.EncodeAddress(row.Miner),
		dbutil.EncodeHash(row.MixHash),
		encodeBytes(row.Nonce),
		encodeBytes(row.LogsBloom),
		encodeBytes(row.ExtraData),
		dbutil.EncodeHash(row.ReceiptsRoot),
		dbutil.EncodeHash(row.Sha3Uncles),
		dbutil.EncodeHash(row.StateRoot),
		dbutil.EncodeHash(row.TransactionsRoot),
	)
	if err != nil {
		return fmt.Errorf("insert block %s: %w", b.Hash.Hex(), err)
	}
	return nil
}

func insertTransactionTx(tx *sql.Tx, chainID uint64, t *inter.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	row, err := newTransactionRow(chainID, t)
	if err != nil {
		return err
	}

	var to interface{}
	if row.To != nil {
		to = dbutil.EncodeAddress(*row.To)
	}

	_, err = tx.Exec(insertTransactionSQL,
		row.ChainID,
		dbutil.EncodeHash(row.Hash),
		dbutil.EncodeHash(row.BlockHash),
		dbutil.EncodeBigNum(row.BlockNumber),
		row.TransactionIndex,
		dbutil.EncodeAddress(row.From),
		to,
		encodeBytes(row.Input),
		dbutil.EncodeBigNum(row.Value),
		row.Nonce,
		dbutil.EncodeBigNum(row.Gas),
		row.Type,
		encodeNullableBigNum(row.GasPrice),
		encodeNullableBigNum(row.MaxFeePerGas),
		encodeNullableBigNum(row.MaxPriorityFeePerGas),
		encodeNullableBigNum(row.MaxFeePerBlobGas),
		nullableString(row.AccessList),
		nullableString(row.BlobVersionedHashes),
		encodeNullableBigNum(row.V),
		encodeNullableBigNum(row.R),
		encodeNullableBigNum(row.S),
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.Hash.Hex(), err)
	}
	return nil
}

func insertLogTx(tx *sql.Tx, chainID uint64, l *inter.Log) error {
	row, err := newLogRow(chainID, l)
	if err != nil {
		return err
	}

	topics := make([]interface{}, 4)
	for i, topic := range []*common.Hash{row.Topic0, row.Topic1, row.Topic2, row.Topic3} {
		if topic != nil {
			topics[i] = dbutil.EncodeHash(*topic)
		}
	}

	_, err = tx.Exec(insertLogSQL,
		row.ChainID,
		dbutil.EncodeHash(row.BlockHash),
		row.LogIndex,
		dbutil.EncodeBigNum(row.BlockNumber),
		dbutil.EncodeHash(row.TransactionHash),
		row.TransactionIndex,
		dbutil.EncodeAddress(row.Address),
		topics[0], topics[1], topics[2], topics[3],
		encodeBytes(row.Data),
		row.Removed,
	)
	if err != nil {
		return fmt.Errorf("insert log %s: %w", l.EventID(), err)
	}
	return nil
}

// insertArtifactsTx writes one block with its transactions and logs after
// checking batch-level referential integrity: every transaction must belong
// to the block, and every log must reference the block and one of its
// transactions.
func insertArtifactsTx(tx *sql.Tx, chainID uint64, block *inter.Block, txs []*inter.Transaction, logs []*inter.Log) error {
	if err := checkReferences(block, txs, logs); err != nil {
		return err
	}

	if err := insertBlockTx(tx, chainID, block); err != nil {
		return err
	}
	for _, t := range txs {
		if err := insertTransactionTx(tx, chainID, t); err != nil {
			return err
		}
	}
	for _, l := range logs {
		if err := insertLogTx(tx, chainID, l); err != nil {
			return err
		}
	}
	return nil
}

func checkReferences(block *inter.Block, txs []*inter.Transaction, logs []*inter.Log) error {
	txHashes := make(map[common.Hash]struct{}, len(txs))
	for _, t := range txs {
		if t.BlockHash != block.Hash {
			return fmt.Errorf("%w: transaction %s references block %s, batch block is %s",
				ErrReferentialViolation, t.Hash.Hex(), t.BlockHash.Hex(), block.Hash.Hex())
		}
		txHashes[t.Hash] = struct{}{}
	}
	for _, l := range logs {
		if l.BlockHash != block.Hash {
			return fmt.Errorf("%w: log %s references block %s, batch block is %s",
				ErrReferentialViolation, l.EventID(), l.BlockHash.Hex(), block.Hash.Hex())
		}
		if _, ok := txHashes[l.TransactionHash]; !ok {
			return fmt.Errorf("%w: log %s references transaction %s missing from the batch",
				ErrReferentialViolation, l.EventID(), l.TransactionHash.Hex())
		}
	}
	return nil
}
