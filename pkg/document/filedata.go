package document

import (
	"sort"

	"github.com/flowmill/flowmill/pkg/types"
)

// FileData represents a file attachment of a workitem. Attachments are
// stored under the reserved $file item as name -> [contentType, content,
// attributes], with $file.count and $file.names kept consistent on every
// mutation.
type FileData struct {
	Name        string
	ContentType string
	Content     []byte
	Attributes  map[string][]any
}

// AddFileData attaches a file, overriding an existing attachment of the
// same name.
func (d *ItemCollection) AddFileData(file FileData) error {
	d.PurgeItemValue(types.ItemFile)
	if file.Name == "" {
		return types.NewWorkflowError("document", types.CodeInvalidValue, "file name is empty")
	}
	files := d.fileMap()
	info := []any{file.ContentType, file.Content}
	if file.Attributes != nil {
		info = append(info, file.Attributes)
	}
	files[file.Name] = info
	return d.storeFileMap(files)
}

// GetFileData returns the attachment with the given name, or nil.
func (d *ItemCollection) GetFileData(name string) *FileData {
	if name == "" {
		return nil
	}
	for _, file := range d.FileDataList() {
		if file.Name == name {
			f := file
			return &f
		}
	}
	return nil
}

// FileDataList returns all attachments.
func (d *ItemCollection) FileDataList() []FileData {
	d.PurgeItemValue(types.ItemFile)
	files := d.fileMap()
	result := make([]FileData, 0, len(files))
	for _, name := range sortedKeys(files) {
		info := files[name]
		file := FileData{Name: name}
		if len(info) > 0 {
			if ct, ok := info[0].(string); ok {
				file.ContentType = ct
			}
		}
		if len(info) > 1 {
			if content, ok := info[1].([]byte); ok {
				file.Content = content
			}
		}
		if len(info) > 2 {
			if attrs, ok := info[2].(map[string][]any); ok {
				file.Attributes = attrs
			}
		}
		result = append(result, file)
	}
	return result
}

// RemoveFile deletes the attachment with the given name.
func (d *ItemCollection) RemoveFile(name string) error {
	files := d.fileMap()
	delete(files, name)
	return d.storeFileMap(files)
}

// FileNames returns the names of all attachments, free of duplicates.
func (d *ItemCollection) FileNames() []string {
	return sortedKeys(d.fileMap())
}

// FileCount returns the number of attachments.
func (d *ItemCollection) FileCount() int {
	return len(d.fileMap())
}

// fileMap returns the live $file map, or an empty one.
func (d *ItemCollection) fileMap() map[string][]any {
	list := d.GetItemValue(types.ItemFile)
	if len(list) > 0 {
		if m, ok := list[0].(map[string][]any); ok {
			return m
		}
	}
	return make(map[string][]any)
}

// storeFileMap writes the $file item and refreshes the derived
// $file.count and $file.names items.
func (d *ItemCollection) storeFileMap(files map[string][]any) error {
	if err := d.SetItemValue(types.ItemFile, files); err != nil {
		return err
	}
	if err := d.SetItemValue(types.ItemFileCount, len(files)); err != nil {
		return err
	}
	names := sortedKeys(files)
	if len(names) == 0 {
		return d.SetItemValue(types.ItemFileNames, []any{})
	}
	return d.SetItemValue(types.ItemFileNames, names)
}

func sortedKeys(m map[string][]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// deterministic order for $file.names and FileDataList
	sort.Strings(keys)
	return keys
}
