package jobs

import (
	"fmt"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/scheduler"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/types"
)

// RunnerNameIndexRebuild is the registry name of the index rebuild job.
const RunnerNameIndexRebuild = "indexrebuild"

// Configuration items of an index rebuild job document.
const (
	itemDocType   = "doctype"
	itemBlockSize = "blocksize"
	itemCursor    = "_index_cursor"
	itemProcessed = "_index_processed"
)

// IndexRebuild re-saves documents of one type in blocks, which rewrites
// their store representation and type index entries. The cursor lives in
// the job's own configuration document, so a rebuild survives restarts.
// The job self-terminates when a block comes back short.
type IndexRebuild struct {
	store     storage.DocumentStore
	blockSize int
}

func NewIndexRebuild(store storage.DocumentStore, blockSize int) *IndexRebuild {
	if blockSize <= 0 {
		blockSize = 500
	}
	return &IndexRebuild{store: store, blockSize: blockSize}
}

func (j *IndexRebuild) Run(config *document.ItemCollection) (*document.ItemCollection, scheduler.Disposition) {
	logger := log.WithScheduler(config.UniqueID())

	doctype := config.GetItemValueString(itemDocType)
	if doctype == "" {
		doctype = types.TypeWorkitem
	}
	blockSize := config.GetItemValueInteger(itemBlockSize)
	if blockSize <= 0 {
		blockSize = j.blockSize
	}
	cursor := config.GetItemValueInteger(itemCursor)

	block, err := j.store.Find(fmt.Sprintf("%s=%s", types.ItemType, doctype),
		blockSize, cursor, types.ItemUniqueID, false)
	if err != nil {
		return config, scheduler.Continue(err)
	}

	processed := config.GetItemValueInteger(itemProcessed)
	for _, doc := range block {
		if _, err := j.store.Save(doc); err != nil {
			// per-document errors are logged and skipped
			logger.Error().Err(err).Str("workitem_id", doc.UniqueID()).Msg("reindex failed")
			continue
		}
		processed++
	}
	_ = config.ReplaceItemValue(itemProcessed, processed)

	if len(block) < blockSize {
		// short block, the walk is complete
		_ = config.ReplaceItemValue(itemCursor, 0)
		logger.Info().Int("processed", processed).Str("doctype", doctype).Msg("index rebuild complete")
		return config, scheduler.Stop(nil)
	}

	_ = config.ReplaceItemValue(itemCursor, cursor+1)
	logger.Debug().Int("block", cursor).Int("processed", processed).Msg("index block done")
	return config, scheduler.Ok()
}
