package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rony4d/go-chain-index/utils/dbutil"
)

// Contract read cache. Results of eth_call-style reads are keyed by
// (chain, contract, call data, block number) so that identical reads across
// runs hit the cache. The block number is pinned by the caller: the same
// call data at two different heights is two distinct entries, which is what
// keeps historical replays correct.

// ContractReadResult is one cached contract read.
type ContractReadResult struct {
	ChainID     uint64
	Address     common.Address
	BlockNumber *big.Int

	// Data is the call data of the read.
	Data hexutil.Bytes

	// Result is the raw return payload.
	Result hexutil.Bytes
}

// InsertContractReadResult upserts a cached read; a conflicting key replaces
// the stored result.
func (s *Store) InsertContractReadResult(ctx context.Context, r ContractReadResult) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO contract_read_results (chain_id, address, block_number, data, result)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (chain_id, address, block_number, data) DO UPDATE SET result = excluded.result`,
			r.ChainID,
			dbutil.EncodeAddress(r.Address),
			dbutil.EncodeBigNum(r.BlockNumber),
			hexutil.Encode(r.Data),
			hexutil.Encode(r.Result),
		)
		if err != nil {
			return fmt.Errorf("insert contract read result: %w", err)
		}
		return nil
	})
}

// GetContractReadResult looks up a cached read. A miss returns (nil, nil);
// the caller performs the real call and inserts the result.
func (s *Store) GetContractReadResult(ctx context.Context, chainID uint64, address common.Address, blockNumber *big.Int, data hexutil.Bytes) (*ContractReadResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result FROM contract_read_results
		 WHERE chain_id = ? AND address = ? AND block_number = ? AND data = ?`,
		chainID,
		dbutil.EncodeAddress(address),
		dbutil.EncodeBigNum(blockNumber),
		hexutil.Encode(data),
	)

	var encoded string
	if err := row.Scan(&encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contract read result: %w", err)
	}

	result, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("get contract read result: malformed stored payload: %w", err)
	}
	return &ContractReadResult{
		ChainID:     chainID,
		Address:     address,
		BlockNumber: blockNumber,
		Data:        data,
		Result:      result,
	}, nil
}
