package gateway

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// keyLenForTable mirrors spec §6's key/subkey split: COMPONENTS and
// FILES shard on the first 4 bytes of a 16-byte digest (digest.KeyLen),
// SNIPPETS shards on the first 2 bytes of a 4-byte fingerprint. This is
// purely a storage-layout optimization so a single bbolt bucket isn't one
// giant flat namespace; callers of Gateway always pass the complete key.
func keyLenForTable(t Table) int {
	if t == TableSnippets {
		return 2
	}
	return 4
}

var tableBuckets = map[Table][]byte{
	TableComponents: []byte("components"),
	TableFiles:      []byte("files"),
	TableSnippets:   []byte("snippets"),
}

// BoltGateway is a go.etcd.io/bbolt-backed Gateway: a real local store a
// caller can point at a pre-built snapshot, mirroring how the teacher's
// BoltStore is its reference storage implementation. Each table is a top
// level bbolt bucket; within it, a nested bucket is keyed by the first
// keyLenForTable(table) bytes of the lookup key (the shard), and entries
// within that nested bucket are keyed by subkey+sequence so multiple
// records can share the same full key (e.g. a file digest present in
// several components).
type BoltGateway struct {
	db *bolt.DB
}

// OpenBoltGateway opens (creating if necessary) a bbolt-backed gateway at
// path.
func OpenBoltGateway(path string) (*BoltGateway, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("gateway: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range tableBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("gateway: initialize buckets: %w", err)
	}

	return &BoltGateway{db: db}, nil
}

func (g *BoltGateway) Close() error { return g.db.Close() }

// shardAndEntryKey splits a full lookup key into its shard prefix and the
// entry key used within the shard's nested bucket (subkey + a monotonic
// sequence number, to allow duplicate full-key records).
func shardAndEntryKey(table Table, key []byte, seq uint64) (shard []byte, entryKey []byte) {
	n := keyLenForTable(table)
	if n > len(key) {
		n = len(key)
	}
	shard = key[:n]
	subkey := key[n:]

	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	entryKey = append(append([]byte{}, subkey...), seqBytes...)
	return shard, entryKey
}

// Put stores value under key in table, appending to any existing records
// that share the same key (Writer interface, used by ingestion tooling
// and tests — never by the Match Engine or Compiler).
func (g *BoltGateway) Put(table Table, key []byte, value []byte) error {
	bucketName, ok := tableBuckets[table]
	if !ok {
		return fmt.Errorf("gateway: unknown table %q", table)
	}

	return g.db.Update(func(tx *bolt.Tx) error {
		top := tx.Bucket(bucketName)
		shard, _ := shardAndEntryKey(table, key, 0)
		shardBucket, err := top.CreateBucketIfNotExists(shard)
		if err != nil {
			return err
		}
		seq, err := shardBucket.NextSequence()
		if err != nil {
			return err
		}
		_, entryKey := shardAndEntryKey(table, key, seq)
		return shardBucket.Put(entryKey, value)
	})
}

func (g *BoltGateway) Exists(table Table, key []byte) (bool, error) {
	bucketName, ok := tableBuckets[table]
	if !ok {
		return false, fmt.Errorf("gateway: unknown table %q", table)
	}

	found := false
	err := g.db.View(func(tx *bolt.Tx) error {
		top := tx.Bucket(bucketName)
		shard, _ := shardAndEntryKey(table, key, 0)
		shardBucket := top.Bucket(shard)
		if shardBucket == nil {
			return nil
		}
		c := shardBucket.Cursor()
		subkeyPrefix := key[keyLenForTable(table):]
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if hasSubkeyPrefix(k, subkeyPrefix) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (g *BoltGateway) Fetch(table Table, key []byte, handler Handler) (int, error) {
	bucketName, ok := tableBuckets[table]
	if !ok {
		return 0, fmt.Errorf("gateway: unknown table %q", table)
	}

	count := 0
	err := g.db.View(func(tx *bolt.Tx) error {
		top := tx.Bucket(bucketName)
		shard, _ := shardAndEntryKey(table, key, 0)
		shardBucket := top.Bucket(shard)
		if shardBucket == nil {
			return nil
		}

		subkeyPrefix := key[keyLenForTable(table):]
		c := shardBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !hasSubkeyPrefix(k, subkeyPrefix) {
				continue
			}
			value := make([]byte, len(v))
			copy(value, v)
			if len(value) > MaxRecordSize {
				count++
				continue // ErrRecordOversize policy: skip, keep iterating (spec §7).
			}
			subkey := append([]byte{}, k[:len(k)-8]...) // strip the trailing sequence suffix
			stop := handler(subkey, value, count)
			count++
			if stop {
				break
			}
		}
		return nil
	})
	return count, err
}

func hasSubkeyPrefix(entryKey, subkeyPrefix []byte) bool {
	if len(entryKey) < len(subkeyPrefix)+8 {
		return false
	}
	for i, b := range subkeyPrefix {
		if entryKey[i] != b {
			return false
		}
	}
	return true
}
