// Package gateway defines the Index Gateway abstraction: a thin
// key/value contract over a content-addressed store of components and
// files (spec §4.2, §6). The store itself — and how it was built — is an
// external collaborator; this package only defines the contract the
// Match Engine and Match Compiler call into, plus two concrete
// implementations (an in-memory one for tests, a bbolt-backed one for
// local/offline use) that satisfy it.
package gateway

import "errors"

// Table names the two tables the spec defines plus the secondary
// fingerprint index the snippet tier consults.
type Table string

const (
	TableComponents Table = "components"
	TableFiles      Table = "files"
	TableSnippets   Table = "snippets"
)

// ErrRecordOversize is returned by the record decoders when a raw record
// exceeds MaxRecordSize. Per spec §7 this skips the one record and
// continues iteration (BoltGateway.Fetch skips such records without
// calling the handler); it is never fatal to the scan.
var ErrRecordOversize = errors.New("gateway: record exceeds size limit")

// Handler is invoked once per record returned by Fetch. iteration is the
// 0-based position of this record within the fetch. Returning stop=true
// ends iteration early without visiting further records.
type Handler func(subkey []byte, value []byte, iteration int) (stop bool)

// Gateway is the abstract Index Gateway: key_exists and fetch_records
// from spec §4.2, expressed as a Go interface so the Match Engine and
// Match Compiler never depend on a concrete backend.
type Gateway interface {
	// Exists reports whether any record is stored under key in table.
	Exists(table Table, key []byte) (bool, error)

	// Fetch streams every record stored under key in table to handler,
	// stopping early if handler returns true. It returns the number of
	// records visited.
	Fetch(table Table, key []byte, handler Handler) (int, error)

	// Close releases any resources held by the gateway.
	Close() error
}

// Writer is implemented by gateways that can also be populated — used by
// ingestion tooling and tests, never by the Match Engine or Compiler
// (which only read).
type Writer interface {
	Put(table Table, key []byte, value []byte) error
}
