// Package dbutil wires the chain-native column encodings into meddler so
// that row structs can scan and save go-ethereum types directly.
//
// Encodings:
//   - hash, nullhash:       common.Hash as 0x-prefixed lowercase hex
//   - address, nulladdress: common.Address as 0x-prefixed lowercase hex
//   - bignum:               *big.Int as fixed-width 64-char lowercase hex,
//     so lexicographic order equals numeric order; NULL round-trips to nil
//   - uhex:                 uint64 as fixed-width 16-char lowercase hex
//   - hexbytes:             hexutil.Bytes as a 0x-prefixed hex string
package dbutil

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/russross/meddler"
)

func init() {
	meddler.Default = meddler.SQLite

	meddler.Register("hash", hashMeddler{})
	meddler.Register("nullhash", nullHashMeddler{})
	meddler.Register("address", addressMeddler{})
	meddler.Register("nulladdress", nullAddressMeddler{})
	meddler.Register("bignum", bigNumMeddler{})
	meddler.Register("uhex", uint64HexMeddler{})
	meddler.Register("hexbytes", hexBytesMeddler{})
}

// EncodeBigNum renders an unsigned big integer as fixed-width 64-character
// lowercase hex. No width check is made: a value wider than 256 bits renders
// as a longer string.
func EncodeBigNum(n *big.Int) string {
	return fmt.Sprintf("%064x", n)
}

// DecodeBigNum parses a fixed-width hex column back into a big integer.
func DecodeBigNum(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("dbutil: malformed bignum column %q", s)
	}
	return n, nil
}

// EncodeUint64 renders a uint64 as fixed-width 16-character lowercase hex.
func EncodeUint64(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

// DecodeUint64 parses a fixed-width hex column back into a uint64.
func DecodeUint64(s string) (uint64, error) {
	n, err := DecodeBigNum(s)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("dbutil: uhex column %q overflows uint64", s)
	}
	return n.Uint64(), nil
}

// EncodeAddress renders an address in the canonical stored form: lowercase
// 0x-prefixed hex, length 42.
func EncodeAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// EncodeHash renders a hash in the canonical stored form: lowercase
// 0x-prefixed hex, length 66.
func EncodeHash(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

type hashMeddler struct{}

func (hashMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(string), nil
}

func (hashMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	field, ok := fieldAddr.(*common.Hash)
	if !ok {
		return fmt.Errorf("dbutil: hash column into %T", fieldAddr)
	}
	*field = common.HexToHash(*scanTarget.(*string))
	return nil
}

func (hashMeddler) PreWrite(field interface{}) (interface{}, error) {
	h, ok := field.(common.Hash)
	if !ok {
		return nil, fmt.Errorf("dbutil: hash column from %T", field)
	}
	return EncodeHash(h), nil
}

type nullHashMeddler struct{}

func (nullHashMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(sql.NullString), nil
}

func (nullHashMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	field, ok := fieldAddr.(**common.Hash)
	if !ok {
		return fmt.Errorf("dbutil: nullhash column into %T", fieldAddr)
	}
	ns := scanTarget.(*sql.NullString)
	if !ns.Valid {
		*field = nil
		return nil
	}
	h := common.HexToHash(ns.String)
	*field = &h
	return nil
}

func (nullHashMeddler) PreWrite(field interface{}) (interface{}, error) {
	h, ok := field.(*common.Hash)
	if !ok {
		return nil, fmt.Errorf("dbutil: nullhash column from %T", field)
	}
	if h == nil {
		return nil, nil
	}
	return EncodeHash(*h), nil
}

type addressMeddler struct{}

func (addressMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(string), nil
}

func (addressMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	field, ok := fieldAddr.(*common.Address)
	if !ok {
		return fmt.Errorf("dbutil: address column into %T", fieldAddr)
	}
	*field = common.HexToAddress(*scanTarget.(*string))
	return nil
}

func (addressMeddler) PreWrite(field interface{}) (interface{}, error) {
	a, ok := field.(common.Address)
	if !ok {
		return nil, fmt.Errorf("dbutil: address column from %T", field)
	}
	return EncodeAddress(a), nil
}

type nullAddressMeddler struct{}

func (nullAddressMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(sql.NullString), nil
}

func (nullAddressMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	field, ok := fieldAddr.(**common.Address)
	if !ok {
		return fmt.Errorf("dbutil: nulladdress column into %T", fieldAddr)
	}
	ns := scanTarget.(*sql.NullString)
	if !ns.Valid {
		*field = nil
		return nil
	}
	a := common.HexToAddress(ns.String)
	*field = &a
	return nil
}

func (nullAddressMeddler) PreWrite(field interface{}) (interface{}, error) {
	a, ok := field.(*common.Address)
	if !ok {
		return nil, fmt.Errorf("dbutil: nulladdress column from %T", field)
	}
	if a == nil {
		return nil, nil
	}
	return EncodeAddress(*a), nil
}

type bigNumMeddler struct{}

func (bigNumMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(sql.NullString), nil
}

func (bigNumMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	field, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("dbutil: bignum column into %T", fieldAddr)
	}
	ns := scanTarget.(*sql.NullString)
	if !ns.Valid {
		*field = nil
		return nil
	}
	n, err := DecodeBigNum(ns.String)
	if err != nil {
		return err
	}
	*field = n
	return nil
}

func (bigNumMeddler) PreWrite(field interface{}) (interface{}, error) {
	n, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("dbutil: bignum column from %T", field)
	}
	if n == nil {
		return nil, nil
	}
	return EncodeBigNum(n), nil
}

type uint64HexMeddler struct{}

func (uint64HexMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(string), nil
}

func (uint64HexMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	field, ok := fieldAddr.(*uint64)
	if !ok {
		return fmt.Errorf("dbutil: uhex column into %T", fieldAddr)
	}
	v, err := DecodeUint64(*scanTarget.(*string))
	if err != nil {
		return err
	}
	*field = v
	return nil
}

func (uint64HexMeddler) PreWrite(field interface{}) (interface{}, error) {
	v, ok := field.(uint64)
	if !ok {
		return nil, fmt.Errorf("dbutil: uhex column from %T", field)
	}
	return EncodeUint64(v), nil
}

type hexBytesMeddler struct{}

func (hexBytesMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(string), nil
}

func (hexBytesMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	field, ok := fieldAddr.(*hexutil.Bytes)
	if !ok {
		return fmt.Errorf("dbutil: hexbytes column into %T", fieldAddr)
	}
	raw, err := hexutil.Decode(*scanTarget.(*string))
	if err != nil {
		return fmt.Errorf("dbutil: malformed hexbytes column: %w", err)
	}
	*field = raw
	return nil
}

func (hexBytesMeddler) PreWrite(field interface{}) (interface{}, error) {
	b, ok := field.(hexutil.Bytes)
	if !ok {
		return nil, fmt.Errorf("dbutil: hexbytes column from %T", field)
	}
	return hexutil.Encode(b), nil
}
