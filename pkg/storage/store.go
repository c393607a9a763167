package storage

import (
	"errors"

	"github.com/flowmill/flowmill/pkg/document"
)

// ErrNotFound is returned by Load when no document with the given id
// exists.
var ErrNotFound = errors.New("document not found")

// DocumentStore is the persistence contract of the engine. Save stamps
// $uniqueid, $created and $modified; all other semantics are up to the
// implementation.
type DocumentStore interface {
	// Save persists the document and returns the stored state.
	Save(doc *document.ItemCollection) (*document.ItemCollection, error)

	// Load returns the document with the given $uniqueid or ErrNotFound.
	Load(id string) (*document.ItemCollection, error)

	// Find runs a query with paging. The query string is a whitespace
	// separated list of name=substring terms; a document matches when
	// every term matches case-insensitively.
	Find(query string, pageSize, pageIndex int, sortBy string, reverse bool) ([]*document.ItemCollection, error)

	// DocumentsByType returns all documents with the given type item.
	DocumentsByType(doctype string) ([]*document.ItemCollection, error)

	// Delete removes the document with the given id. Deleting a missing
	// document is not an error.
	Delete(id string) error

	Close() error
}
