package inter

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction type identifiers per EIP-2718.
const (
	LegacyTxType     = uint8(0x0)
	AccessListTxType = uint8(0x1)
	DynamicFeeTxType = uint8(0x2)
	BlobTxType       = uint8(0x3)
)

// ErrUnknownTxType is returned when a transaction carries a type byte outside
// the supported Legacy/AccessList/DynamicFee/Blob set.
var ErrUnknownTxType = errors.New("unknown tx type: supported types are Legacy, AccessList, DynamicFee, Blob")

// AccessTuple is one entry of an EIP-2930 access list.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// Transaction is the stored form of a chain transaction. It is a tagged
// variant keyed on Type: the shared fields are always populated, while the
// fee and payload extensions are set only on the arms they belong to.
//
//	Legacy (0x0):      GasPrice
//	AccessList (0x1):  GasPrice, AccessList
//	DynamicFee (0x2):  MaxFeePerGas, MaxPriorityFeePerGas, AccessList
//	Blob (0x3):        DynamicFee fields plus MaxFeePerBlobGas, BlobVersionedHashes
type Transaction struct {
	// Hash identifies the transaction within a chain.
	Hash common.Hash

	// BlockHash and BlockNumber locate the containing block.
	BlockHash   common.Hash
	BlockNumber *big.Int

	// TransactionIndex is the position within the containing block.
	TransactionIndex uint64

	From common.Address

	// To is nil for contract-creation transactions.
	To *common.Address

	Input hexutil.Bytes
	Value *big.Int
	Nonce uint64
	Gas   *big.Int

	// Type selects the variant arm below.
	Type uint8

	// GasPrice is set on Legacy and AccessList transactions.
	GasPrice *big.Int

	// MaxFeePerGas and MaxPriorityFeePerGas are set on DynamicFee and Blob
	// transactions.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	// MaxFeePerBlobGas and BlobVersionedHashes are set on Blob transactions.
	MaxFeePerBlobGas    *big.Int
	BlobVersionedHashes []common.Hash

	// AccessList is set on AccessList, DynamicFee and Blob transactions.
	AccessList []AccessTuple

	// Raw signature values.
	V *big.Int
	R *big.Int
	S *big.Int
}

// Validate checks that the variant fields are consistent with the declared
// transaction type.
func (tx *Transaction) Validate() error {
	switch tx.Type {
	case LegacyTxType:
		if tx.GasPrice == nil {
			return fmt.Errorf("legacy tx %s: missing gasPrice", tx.Hash.Hex())
		}
	case AccessListTxType:
		if tx.GasPrice == nil {
			return fmt.Errorf("access list tx %s: missing gasPrice", tx.Hash.Hex())
		}
	case DynamicFeeTxType:
		if tx.MaxFeePerGas == nil || tx.MaxPriorityFeePerGas == nil {
			return fmt.Errorf("dynamic fee tx %s: missing fee caps", tx.Hash.Hex())
		}
	case BlobTxType:
		if tx.MaxFeePerGas == nil || tx.MaxPriorityFeePerGas == nil {
			return fmt.Errorf("blob tx %s: missing fee caps", tx.Hash.Hex())
		}
		if tx.MaxFeePerBlobGas == nil {
			return fmt.Errorf("blob tx %s: missing maxFeePerBlobGas", tx.Hash.Hex())
		}
	default:
		return ErrUnknownTxType
	}
	return nil
}
