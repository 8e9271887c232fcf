package eventstore

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rony4d/go-chain-index/inter"
	"github.com/rony4d/go-chain-index/utils/dbutil"
)

// Row structs mirror the schema one to one; the meddler column types from
// utils/dbutil handle the chain-native encodings. Writes go through explicit
// upsert SQL (see artifacts.go); these structs serve reads and the
// value-marshalling helpers.

type blockRow struct {
	ChainID          uint64         `meddler:"chain_id"`
	Hash             common.Hash    `meddler:"hash,hash"`
	Number           *big.Int       `meddler:"number,bignum"`
	Timestamp        uint64         `meddler:"timestamp,uhex"`
	ParentHash       common.Hash    `meddler:"parent_hash,hash"`
	BaseFeePerGas    *big.Int       `meddler:"base_fee_per_gas,bignum"`
	Difficulty       *big.Int       `meddler:"difficulty,bignum"`
	TotalDifficulty  *big.Int       `meddler:"total_difficulty,bignum"`
	GasLimit         *big.Int       `meddler:"gas_limit,bignum"`
	GasUsed          *big.Int       `meddler:"gas_used,bignum"`
	Size             *big.Int       `meddler:"size,bignum"`
	Miner            common.Address `meddler:"miner,address"`
	MixHash          common.Hash    `meddler:"mix_hash,hash"`
	Nonce            hexutil.Bytes  `meddler:"nonce,hexbytes"`
	LogsBloom        hexutil.Bytes  `meddler:"logs_bloom,hexbytes"`
	ExtraData        hexutil.Bytes  `meddler:"extra_data,hexbytes"`
	ReceiptsRoot     common.Hash    `meddler:"receipts_root,hash"`
	Sha3Uncles       common.Hash    `meddler:"sha3_uncles,hash"`
	StateRoot        common.Hash    `meddler:"state_root,hash"`
	TransactionsRoot common.Hash    `meddler:"transactions_root,hash"`
}

func newBlockRow(chainID uint64, b *inter.Block) *blockRow {
	return &blockRow{
		ChainID:          chainID,
		Hash:             b.Hash,
		Number:           b.Number,
		Timestamp:        b.Timestamp,
		ParentHash:       b.ParentHash,
		BaseFeePerGas:    b.BaseFeePerGas,
		Difficulty:       b.Difficulty,
		TotalDifficulty:  b.TotalDifficulty,
		GasLimit:         b.GasLimit,
		GasUsed:          b.GasUsed,
		Size:             b.Size,
		Miner:            b.Miner,
		MixHash:          b.MixHash,
		Nonce:            b.Nonce,
		LogsBloom:        b.LogsBloom,
		ExtraData:        b.ExtraData,
		ReceiptsRoot:     b.ReceiptsRoot,
		Sha3Uncles:       b.Sha3Uncles,
		StateRoot:        b.StateRoot,
		TransactionsRoot: b.TransactionsRoot,
	}
}

func (r *blockRow) toBlock() *inter.Block {
	return &inter.Block{
		Hash:             r.Hash,
		Number:           r.Number,
		Timestamp:        r.Timestamp,
		ParentHash:       r.ParentHash,
		BaseFeePerGas:    r.BaseFeePerGas,
		Difficulty:       r.Difficulty,
		TotalDifficulty:  r.TotalDifficulty,
		GasLimit:         r.GasLimit,
		GasUsed:          r.GasUsed,
		Size:             r.Size,
		Miner:            r.Miner,
		MixHash:          r.MixHash,
		Nonce:            r.Nonce,
		LogsBloom:        r.LogsBloom,
		ExtraData:        r.ExtraData,
		ReceiptsRoot:     r.ReceiptsRoot,
		Sha3Uncles:       r.Sha3Uncles,
		StateRoot:        r.StateRoot,
		TransactionsRoot: r.TransactionsRoot,
	}
}

type transactionRow struct {
	ChainID              uint64          `meddler:"chain_id"`
	Hash                 common.Hash     `meddler:"hash,hash"`
	BlockHash            common.Hash     `meddler:"block_hash,hash"`
	BlockNumber          *big.Int        `meddler:"block_number,bignum"`
	TransactionIndex     uint64          `meddler:"transaction_index"`
	From                 common.Address  `meddler:"from_address,address"`
	To                   *common.Address `meddler:"to_address,nulladdress"`
	Input                hexutil.Bytes   `meddler:"input,hexbytes"`
	Value                *big.Int        `meddler:"value,bignum"`
	Nonce                uint64          `meddler:"nonce"`
	Gas                  *big.Int        `meddler:"gas,bignum"`
	Type                 uint8           `meddler:"tx_type"`
	GasPrice             *big.Int        `meddler:"gas_price,bignum"`
	MaxFeePerGas         *big.Int        `meddler:"max_fee_per_gas,bignum"`
	MaxPriorityFeePerGas *big.Int        `meddler:"max_priority_fee_per_gas,bignum"`
	MaxFeePerBlobGas     *big.Int        `meddler:"max_fee_per_blob_gas,bignum"`
	AccessList           *string         `meddler:"access_list"`
	BlobVersionedHashes  *string         `meddler:"blob_versioned_hashes"`
	V                    *big.Int        `meddler:"v,bignum"`
	R                    *big.Int        `meddler:"r,bignum"`
	S                    *big.Int        `meddler:"s,bignum"`
}

func newTransactionRow(chainID uint64, tx *inter.Transaction) (*transactionRow, error) {
	row := &transactionRow{
		ChainID:              chainID,
		Hash:                 tx.Hash,
		BlockHash:            tx.BlockHash,
		BlockNumber:          tx.BlockNumber,
		TransactionIndex:     tx.TransactionIndex,
		From:                 tx.From,
		To:                   tx.To,
		Input:                tx.Input,
		Value:                tx.Value,
		Nonce:                tx.Nonce,
		Gas:                  tx.Gas,
		Type:                 tx.Type,
		GasPrice:             tx.GasPrice,
		MaxFeePerGas:         tx.MaxFeePerGas,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		MaxFeePerBlobGas:     tx.MaxFeePerBlobGas,
		V:                    tx.V,
		R:                    tx.R,
		S:                    tx.S,
	}

	if tx.AccessList != nil {
		raw, err := json.Marshal(tx.AccessList)
		if err != nil {
			return nil, fmt.Errorf("tx %s: marshal access list: %w", tx.Hash.Hex(), err)
		}
		s := string(raw)
		row.AccessList = &s
	}
	if tx.BlobVersionedHashes != nil {
		raw, err := json.Marshal(tx.BlobVersionedHashes)
		if err != nil {
			return nil, fmt.Errorf("tx %s: marshal blob hashes: %w", tx.Hash.Hex(), err)
		}
		s := string(raw)
		row.BlobVersionedHashes = &s
	}
	return row, nil
}

func (r *transactionRow) toTransaction() (*inter.Transaction, error) {
	tx := &inter.Transaction{
		Hash:                 r.Hash,
		BlockHash:            r.BlockHash,
		BlockNumber:          r.BlockNumber,
		TransactionIndex:     r.TransactionIndex,
		From:                 r.From,
		To:                   r.To,
		Input:                r.Input,
		Value:                r.Value,
		Nonce:                r.Nonce,
		Gas:                  r.Gas,
		Type:                 r.Type,
		GasPrice:             r.GasPrice,
		MaxFeePerGas:         r.MaxFeePerGas,
		MaxPriorityFeePerGas: r.MaxPriorityFeePerGas,
		MaxFeePerBlobGas:     r.MaxFeePerBlobGas,
		V:                    r.V,
		R:                    r.R,
		S:                    r.S,
	}

	if r.AccessList != nil {
		if err := json.Unmarshal([]byte(*r.AccessList), &tx.AccessList); err != nil {
			return nil, fmt.Errorf("tx %s: unmarshal access list: %w", r.Hash.Hex(), err)
		}
	}
	if r.BlobVersionedHashes != nil {
		if err := json.Unmarshal([]byte(*r.BlobVersionedHashes), &tx.BlobVersionedHashes); err != nil {
			return nil, fmt.Errorf("tx %s: unmarshal blob hashes: %w", r.Hash.Hex(), err)
		}
	}
	return tx, nil
}

type logRow struct {
	ChainID          uint64         `meddler:"chain_id"`
	BlockHash        common.Hash    `meddler:"block_hash,hash"`
	LogIndex         uint64         `meddler:"log_index"`
	BlockNumber      *big.Int       `meddler:"block_number,bignum"`
	TransactionHash  common.Hash    `meddler:"transaction_hash,hash"`
	TransactionIndex uint64         `meddler:"transaction_index"`
	Address          common.Address `meddler:"address,address"`
	Topic0           *common.Hash   `meddler:"topic0,nullhash"`
	Topic1           *common.Hash   `meddler:"topic1,nullhash"`
	Topic2           *common.Hash   `meddler:"topic2,nullhash"`
	Topic3           *common.Hash   `meddler:"topic3,nullhash"`
	Data             hexutil.Bytes  `meddler:"data,hexbytes"`
	Removed          bool           `meddler:"removed"`
}

func newLogRow(chainID uint64, l *inter.Log) (*logRow, error) {
	if len(l.Topics) > inter.MaxTopics {
		return nil, fmt.Errorf("log %s: %d topics exceeds maximum of %d", l.EventID(), len(l.Topics), inter.MaxTopics)
	}
	row := &logRow{
		ChainID:          chainID,
		BlockHash:        l.BlockHash,
		LogIndex:         l.LogIndex,
		BlockNumber:      l.BlockNumber,
		TransactionHash:  l.TransactionHash,
		TransactionIndex: l.TransactionIndex,
		Address:          l.Address,
		Data:             l.Data,
		Removed:          l.Removed,
	}
	slots := []**common.Hash{&row.Topic0, &row.Topic1, &row.Topic2, &row.Topic3}
	for i := range l.Topics {
		topic := l.Topics[i]
		*slots[i] = &topic
	}
	return row, nil
}

func (r *logRow) toLog() *inter.Log {
	l := &inter.Log{
		BlockHash:        r.BlockHash,
		LogIndex:         r.LogIndex,
		BlockNumber:      r.BlockNumber,
		TransactionHash:  r.TransactionHash,
		TransactionIndex: r.TransactionIndex,
		Address:          r.Address,
		Data:             r.Data,
		Removed:          r.Removed,
	}
	for _, topic := range []*common.Hash{r.Topic0, r.Topic1, r.Topic2, r.Topic3} {
		if topic == nil {
			break
		}
		l.Topics = append(l.Topics, *topic)
	}
	return l
}

// Bind helpers for the hand-written upsert statements.

func encodeNullableBigNum(n *big.Int) interface{} {
	if n == nil {
		return nil
	}
	return dbutil.EncodeBigNum(n)
}

func encodeBytes(b hexutil.Bytes) string {
	return hexutil.Encode(b)
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

type intervalRow struct {
	ID         int64    `meddler:"id,pk"`
	FilterID   string   `meddler:"filter_id"`
	StartBlock *big.Int `meddler:"start_block,bignum"`
	EndBlock   *big.Int `meddler:"end_block,bignum"`
}

type factoryIntervalRow struct {
	ID         int64    `meddler:"id,pk"`
	FactoryID  string   `meddler:"factory_id"`
	StartBlock *big.Int `meddler:"start_block,bignum"`
	EndBlock   *big.Int `meddler:"end_block,bignum"`
}

type logFilterRow struct {
	ID      string `meddler:"id"`
	ChainID uint64 `meddler:"chain_id"`
	Address string `meddler:"address"`
	Topic0  string `meddler:"topic0"`
	Topic1  string `meddler:"topic1"`
	Topic2  string `meddler:"topic2"`
	Topic3  string `meddler:"topic3"`
}
