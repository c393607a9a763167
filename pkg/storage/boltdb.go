package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/types"
)

var (
	// Bucket names
	bucketDocuments = []byte("documents")
	bucketTypes     = []byte("types")
)

// BoltStore implements DocumentStore using BoltDB. Documents are stored
// under their $uniqueid as tagged JSON; a second bucket indexes ids by
// the type item so DocumentsByType avoids a full scan.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed document store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "flowmill.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDocuments, bucketTypes} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.WithComponent("storage").Debug().Str("path", dbPath).Msg("document store opened")
	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save persists the document, stamping $uniqueid on first save and
// $created/$modified timestamps.
func (s *BoltStore) Save(doc *document.ItemCollection) (*document.ItemCollection, error) {
	now := time.Now().UTC()
	id := doc.UniqueID()
	if id == "" {
		id = uuid.New().String()
		if err := doc.ReplaceItemValue(types.ItemUniqueID, id); err != nil {
			return nil, err
		}
	}
	if !doc.HasItem(types.ItemCreated) {
		if err := doc.ReplaceItemValue(types.ItemCreated, now); err != nil {
			return nil, err
		}
	}
	if err := doc.ReplaceItemValue(types.ItemModified, now); err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)

		// drop a stale type-index entry when the type changed
		if old := docs.Get([]byte(id)); old != nil {
			prev := document.New()
			if err := json.Unmarshal(old, prev); err == nil && prev.Type() != doc.Type() {
				if err := tx.Bucket(bucketTypes).Delete(typeKey(prev.Type(), id)); err != nil {
					return err
				}
			}
		}

		if err := docs.Put([]byte(id), data); err != nil {
			return err
		}
		return tx.Bucket(bucketTypes).Put(typeKey(doc.Type(), id), []byte(id))
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Load returns the document with the given id or ErrNotFound
func (s *BoltStore) Load(id string) (*document.ItemCollection, error) {
	doc := document.New()
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document and its type-index entry
func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		data := docs.Get([]byte(id))
		if data == nil {
			return nil
		}
		doc := document.New()
		if err := json.Unmarshal(data, doc); err == nil {
			if err := tx.Bucket(bucketTypes).Delete(typeKey(doc.Type(), id)); err != nil {
				return err
			}
		}
		return docs.Delete([]byte(id))
	})
}

// DocumentsByType returns all documents with the given type item
func (s *BoltStore) DocumentsByType(doctype string) ([]*document.ItemCollection, error) {
	var docs []*document.ItemCollection
	prefix := []byte(doctype + "/")

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketTypes).Cursor()
		documents := tx.Bucket(bucketDocuments)
		for k, id := index.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, id = index.Next() {
			data := documents.Get(id)
			if data == nil {
				continue
			}
			doc := document.New()
			if err := json.Unmarshal(data, doc); err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

// Find runs a name=substring query with paging
func (s *BoltStore) Find(query string, pageSize, pageIndex int, sortBy string, reverse bool) ([]*document.ItemCollection, error) {
	terms, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	var matches []*document.ItemCollection
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			doc := document.New()
			if err := json.Unmarshal(v, doc); err != nil {
				return err
			}
			if matchesTerms(doc, terms) {
				matches = append(matches, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if sortBy != "" {
		sort.SliceStable(matches, func(i, j int) bool {
			less := matches[i].GetItemValueString(sortBy) < matches[j].GetItemValueString(sortBy)
			if reverse {
				return !less
			}
			return less
		})
	}

	if pageSize <= 0 {
		return matches, nil
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	start := pageIndex * pageSize
	if start >= len(matches) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], nil
}

type queryTerm struct {
	name  string
	value string
}

func parseQuery(query string) ([]queryTerm, error) {
	var terms []queryTerm
	for _, field := range strings.Fields(query) {
		name, value, found := strings.Cut(field, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid query term: %q", field)
		}
		terms = append(terms, queryTerm{name: name, value: strings.ToLower(value)})
	}
	return terms, nil
}

func matchesTerms(doc *document.ItemCollection, terms []queryTerm) bool {
	for _, term := range terms {
		matched := false
		for _, v := range doc.GetItemValue(term.name) {
			if strings.Contains(strings.ToLower(fmt.Sprint(v)), term.value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func typeKey(doctype, id string) []byte {
	return []byte(doctype + "/" + id)
}
