// Package resultindex persists compiled scan results so past runs can be
// browsed and searched after the fact, independent of whatever external
// OSS component/file/snippet index the Match Engine consults during a
// scan. It stores one serializer.Record per scanned target in a bbolt
// database, keyed by a ULID scan ID, and indexes vendor, component,
// file_path, and match_type into a Bleve full-text index so a CLI
// "browse" command can filter and free-text search across a history of
// scans.
package resultindex

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"crypto/sha256"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/sourcetrace/sourcetrace/pkg/serializer"
)

var (
	bucketScans     = []byte("scans")
	bucketScansMeta = []byte("scans_meta")

	// ErrNotFound is returned when a scan ID has no stored entry.
	ErrNotFound = fmt.Errorf("resultindex: scan not found")

	errClosed = fmt.Errorf("resultindex: search index is closed")
)

var resultindexLog = log.New(os.Stderr, "[sourcetrace:resultindex] ", log.Ltime)

// Entry is one stored scan result, addressable by ScanID.
type Entry struct {
	ScanID     string           `json:"scan_id"`
	TargetPath string           `json:"target_path"`
	ScannedAt  time.Time        `json:"scanned_at"`
	Record     serializer.Record `json:"record"`
}

// SearchOptions narrows a free-text query by field: Vendor and Component
// are matched against the lowercased text fields, FilePath and MatchType
// exactly against the keyword-analyzed fields in the Bleve mapping below.
type SearchOptions struct {
	Vendor    string
	Component string
	FilePath  string
	MatchType string
	Limit     int
}

// SearchResult pairs a matched Entry with its Bleve relevance score.
type SearchResult struct {
	Entry Entry
	Score float64
}

// ResultIndex is a bbolt-backed store of scan Entries with a Bleve search
// index layered over it, the same two-tier arrangement the teacher's
// findings store uses for full-text search over bbolt-persisted records.
type ResultIndex struct {
	db         *bolt.DB
	search     bleve.Index
	dbPath     string
	searchPath string
}

// Open opens or creates a ResultIndex rooted at dir.
func Open(dir string) (*ResultIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("resultindex: create dir: %w", err)
	}

	dbPath := filepath.Join(dir, "results.db")
	searchPath := filepath.Join(dir, "search.bleve")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("resultindex: open db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketScans, bucketScansMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("resultindex: init buckets: %w", err)
	}

	index, err := openOrCreateSearchIndex(searchPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("resultindex: open search index: %w", err)
	}

	ri := &ResultIndex{db: db, search: index, dbPath: dbPath, searchPath: searchPath}
	if err := ri.ensureMapping(); err != nil {
		index.Close()
		db.Close()
		return nil, fmt.Errorf("resultindex: mapping check: %w", err)
	}
	return ri, nil
}

func openOrCreateSearchIndex(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createSearchIndex(path)
	}

	index, err := bleve.Open(path)
	if err == nil {
		return index, nil
	}

	resultindexLog.Printf("search index corrupted at %s (%v), rebuilding", path, err)
	if rmErr := os.RemoveAll(path); rmErr != nil {
		return nil, fmt.Errorf("remove corrupted index: %w (original error: %v)", rmErr, err)
	}
	return createSearchIndex(path)
}

func createSearchIndex(path string) (bleve.Index, error) {
	m, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	return bleve.New(path, m)
}

// buildIndexMapping defines the search schema: a lowercased free-text
// analyzer for the fields worth fuzzy-matching (vendor and component), and
// exact keyword analyzers for file_path and match_type.
func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	if err := indexMapping.AddCustomAnalyzer("standard_lower", map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	}); err != nil {
		return nil, err
	}

	resultMapping := bleve.NewDocumentMapping()

	vendorField := bleve.NewTextFieldMapping()
	vendorField.Analyzer = "standard_lower"
	resultMapping.AddFieldMappingsAt("vendor", vendorField)

	componentField := bleve.NewTextFieldMapping()
	componentField.Analyzer = "standard_lower"
	resultMapping.AddFieldMappingsAt("component", componentField)

	filePathField := bleve.NewTextFieldMapping()
	filePathField.Analyzer = keyword.Name
	resultMapping.AddFieldMappingsAt("file_path", filePathField)

	matchTypeField := bleve.NewTextFieldMapping()
	matchTypeField.Analyzer = keyword.Name
	resultMapping.AddFieldMappingsAt("match_type", matchTypeField)

	indexMapping.AddDocumentMapping("scan_result", resultMapping)
	indexMapping.DefaultMapping = resultMapping

	return indexMapping, nil
}

func mappingHash(m mapping.IndexMapping) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

func (ri *ResultIndex) ensureMapping() error {
	m, err := buildIndexMapping()
	if err != nil {
		return err
	}
	hash := mappingHash(m)

	var stored string
	if err := ri.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketScansMeta).Get([]byte("search_mapping_hash"))
		if data != nil {
			stored = string(data)
		}
		return nil
	}); err != nil {
		return err
	}

	if hash == stored {
		return nil
	}
	if stored != "" {
		resultindexLog.Printf("search mapping changed, rebuilding index")
	}

	if err := ri.search.Close(); err != nil {
		return fmt.Errorf("close search for rebuild: %w", err)
	}
	if err := os.RemoveAll(ri.searchPath); err != nil {
		return fmt.Errorf("remove search for rebuild: %w", err)
	}
	index, err := createSearchIndex(ri.searchPath)
	if err != nil {
		return err
	}
	ri.search = index

	err = ri.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketScans).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if err := ri.indexEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return ri.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScansMeta).Put([]byte("search_mapping_hash"), []byte(hash))
	})
}

// Close closes both the search index and the underlying database.
func (ri *ResultIndex) Close() error {
	var errs []error
	if ri.search != nil {
		if err := ri.search.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if ri.db != nil {
		if err := ri.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("resultindex: close: %v", errs)
	}
	return nil
}

// Put stores rec under a freshly minted ULID scan ID and indexes it for
// search, returning the ID so a caller (e.g. the scan driver or a CLI
// command) can reference this specific run later.
func (ri *ResultIndex) Put(targetPath string, rec serializer.Record, scannedAt time.Time) (string, error) {
	e := Entry{
		ScanID:     ulid.Make().String(),
		TargetPath: targetPath,
		ScannedAt:  scannedAt,
		Record:     rec,
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("resultindex: marshal entry: %w", err)
	}

	if err := ri.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScans).Put([]byte(e.ScanID), data)
	}); err != nil {
		return "", err
	}

	if err := ri.indexEntry(e); err != nil {
		return "", err
	}
	return e.ScanID, nil
}

// searchDoc is the per-match document shape indexed into Bleve. Each
// match in a Record gets its own document so a vendor/component filter
// can select the specific hit rather than the whole scan.
type searchDoc struct {
	Vendor    string `json:"vendor"`
	Component string `json:"component"`
	FilePath  string `json:"file_path"`
	MatchType string `json:"match_type"`
}

func (ri *ResultIndex) indexEntry(e Entry) error {
	if len(e.Record.Matches) == 0 {
		doc := searchDoc{FilePath: e.Record.FilePath, MatchType: e.Record.MatchType}
		return ri.search.Index(e.ScanID, doc)
	}
	for i, m := range e.Record.Matches {
		doc := searchDoc{
			Vendor:    m.Vendor,
			Component: m.Component,
			FilePath:  e.Record.FilePath,
			MatchType: e.Record.MatchType,
		}
		docID := fmt.Sprintf("%s#%d", e.ScanID, i)
		if err := ri.search.Index(docID, doc); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a stored Entry by scan ID.
func (ri *ResultIndex) Get(scanID string) (*Entry, error) {
	var e Entry
	err := ri.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketScans).Get([]byte(scanID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// scanIDOf strips a per-match "#N" suffix off a Bleve document ID to
// recover the owning scan's bbolt key.
func scanIDOf(docID string) string {
	for i := len(docID) - 1; i >= 0; i-- {
		if docID[i] == '#' {
			return docID[:i]
		}
	}
	return docID
}

// Search runs a free-text query (against vendor/component) optionally
// narrowed by exact-match fields, and returns the owning Entry for every
// hit, deduplicated by scan ID.
func (ri *ResultIndex) Search(queryStr string, opts SearchOptions) ([]*SearchResult, error) {
	if ri.search == nil {
		return nil, errClosed
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var queries []query.Query
	if queryStr != "" {
		queries = append(queries, bleve.NewQueryStringQuery(queryStr))
	}
	if opts.Vendor != "" {
		q := bleve.NewMatchQuery(opts.Vendor)
		q.SetField("vendor")
		queries = append(queries, q)
	}
	if opts.Component != "" {
		q := bleve.NewMatchQuery(opts.Component)
		q.SetField("component")
		queries = append(queries, q)
	}
	if opts.FilePath != "" {
		q := bleve.NewTermQuery(opts.FilePath)
		q.SetField("file_path")
		queries = append(queries, q)
	}
	if opts.MatchType != "" {
		q := bleve.NewTermQuery(opts.MatchType)
		q.SetField("match_type")
		queries = append(queries, q)
	}

	var searchQuery query.Query
	switch len(queries) {
	case 0:
		searchQuery = bleve.NewMatchAllQuery()
	case 1:
		searchQuery = queries[0]
	default:
		searchQuery = bleve.NewConjunctionQuery(queries...)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	result, err := ri.search.Search(req)
	if err != nil {
		return nil, fmt.Errorf("resultindex: search failed: %w", err)
	}

	seen := make(map[string]bool, len(result.Hits))
	var out []*SearchResult
	for _, hit := range result.Hits {
		scanID := scanIDOf(hit.ID)
		if seen[scanID] {
			continue
		}
		seen[scanID] = true

		e, err := ri.Get(scanID)
		if err != nil {
			continue
		}
		out = append(out, &SearchResult{Entry: *e, Score: hit.Score})
	}
	return out, nil
}
