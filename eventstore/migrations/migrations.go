// Package migrations holds the event store schema as embedded sql-migrate
// migrations, so that opening a store on a fresh database always produces
// the current layout.
package migrations

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

// Source returns the ordered migration set for the event store schema.
//
// Column conventions: hashes, addresses and byte payloads are 0x-prefixed
// lowercase hex TEXT; block numbers and other 256-bit integers are
// fixed-width 64-char hex TEXT (lexicographic order equals numeric order);
// timestamps are fixed-width 16-char hex TEXT; small positional indices are
// INTEGER.
func Source() migrate.MigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1-init",
				Up: []string{
					`CREATE TABLE blocks (
						chain_id          INTEGER NOT NULL,
						hash              TEXT NOT NULL,
						number            TEXT NOT NULL,
						timestamp         TEXT NOT NULL,
						parent_hash       TEXT NOT NULL,
						base_fee_per_gas  TEXT,
						difficulty        TEXT NOT NULL,
						total_difficulty  TEXT NOT NULL,
						gas_limit         TEXT NOT NULL,
						gas_used          TEXT NOT NULL,
						size              TEXT NOT NULL,
						miner             TEXT NOT NULL,
						mix_hash          TEXT NOT NULL,
						nonce             TEXT NOT NULL,
						logs_bloom        TEXT NOT NULL,
						extra_data        TEXT NOT NULL,
						receipts_root     TEXT NOT NULL,
						sha3_uncles       TEXT NOT NULL,
						state_root        TEXT NOT NULL,
						transactions_root TEXT NOT NULL,
						PRIMARY KEY (chain_id, hash)
					)`,
					`CREATE INDEX blocks_chain_number ON blocks (chain_id, number)`,

					`CREATE TABLE transactions (
						chain_id                 INTEGER NOT NULL,
						hash                     TEXT NOT NULL,
						block_hash               TEXT NOT NULL,
						block_number             TEXT NOT NULL,
						transaction_index        INTEGER NOT NULL,
						from_address             TEXT NOT NULL,
						to_address               TEXT,
						input                    TEXT NOT NULL,
						value                    TEXT NOT NULL,
						nonce                    INTEGER NOT NULL,
						gas                      TEXT NOT NULL,
						tx_type                  INTEGER NOT NULL,
						gas_price                TEXT,
						max_fee_per_gas          TEXT,
						max_priority_fee_per_gas TEXT,
						max_fee_per_blob_gas     TEXT,
						access_list              TEXT,
						blob_versioned_hashes    TEXT,
						v                        TEXT,
						r                        TEXT,
						s                        TEXT,
						PRIMARY KEY (chain_id, hash)
					)`,
					`CREATE INDEX transactions_chain_block ON transactions (chain_id, block_hash)`,
					`CREATE INDEX transactions_chain_number ON transactions (chain_id, block_number)`,

					`CREATE TABLE logs (
						chain_id          INTEGER NOT NULL,
						block_hash        TEXT NOT NULL,
						log_index         INTEGER NOT NULL,
						block_number      TEXT NOT NULL,
						transaction_hash  TEXT NOT NULL,
						transaction_index INTEGER NOT NULL,
						address           TEXT NOT NULL,
						topic0            TEXT,
						topic1            TEXT,
						topic2            TEXT,
						topic3            TEXT,
						data              TEXT NOT NULL,
						removed           INTEGER NOT NULL DEFAULT 0,
						PRIMARY KEY (chain_id, block_hash, log_index)
					)`,
					`CREATE INDEX logs_chain_number ON logs (chain_id, block_number)`,
					`CREATE INDEX logs_chain_address_topic0 ON logs (chain_id, address, topic0)`,

					`CREATE TABLE log_filters (
						id       TEXT NOT NULL PRIMARY KEY,
						chain_id INTEGER NOT NULL,
						address  TEXT NOT NULL,
						topic0   TEXT NOT NULL,
						topic1   TEXT NOT NULL,
						topic2   TEXT NOT NULL,
						topic3   TEXT NOT NULL
					)`,
					`CREATE INDEX log_filters_chain ON log_filters (chain_id)`,

					`CREATE TABLE log_filter_intervals (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						filter_id   TEXT NOT NULL REFERENCES log_filters (id),
						start_block TEXT NOT NULL,
						end_block   TEXT NOT NULL
					)`,
					`CREATE INDEX log_filter_intervals_filter ON log_filter_intervals (filter_id)`,

					`CREATE TABLE factories (
						id                     TEXT NOT NULL PRIMARY KEY,
						chain_id               INTEGER NOT NULL,
						address                TEXT NOT NULL,
						event_selector         TEXT NOT NULL,
						child_address_location TEXT NOT NULL
					)`,
					`CREATE INDEX factories_chain ON factories (chain_id)`,

					`CREATE TABLE factory_log_filter_intervals (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						factory_id  TEXT NOT NULL REFERENCES factories (id),
						start_block TEXT NOT NULL,
						end_block   TEXT NOT NULL
					)`,
					`CREATE INDEX factory_log_filter_intervals_factory ON factory_log_filter_intervals (factory_id)`,

					`CREATE TABLE contract_read_results (
						chain_id     INTEGER NOT NULL,
						address      TEXT NOT NULL,
						block_number TEXT NOT NULL,
						data         TEXT NOT NULL,
						result       TEXT NOT NULL,
						PRIMARY KEY (chain_id, address, block_number, data)
					)`,
				},
				Down: []string{
					`DROP TABLE contract_read_results`,
					`DROP TABLE factory_log_filter_intervals`,
					`DROP TABLE factories`,
					`DROP TABLE log_filter_intervals`,
					`DROP TABLE log_filters`,
					`DROP TABLE logs`,
					`DROP TABLE transactions`,
					`DROP TABLE blocks`,
				},
			},
		},
	}
}

// Run applies all pending migrations.
func Run(db *sql.DB) error {
	if _, err := migrate.Exec(db, "sqlite3", Source(), migrate.Up); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}
