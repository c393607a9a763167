package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFileDataRoundTrip(t *testing.T) {
	doc := New()
	file := FileData{
		Name:        "contract.pdf",
		ContentType: "application/pdf",
		Content:     []byte{0x25, 0x50, 0x44, 0x46},
	}
	require.NoError(t, doc.AddFileData(file))

	loaded := doc.GetFileData("contract.pdf")
	require.NotNil(t, loaded)
	assert.Equal(t, "application/pdf", loaded.ContentType)
	assert.Equal(t, file.Content, loaded.Content)

	assert.Equal(t, 1, doc.GetItemValueInteger("$file.count"))
	assert.Equal(t, []string{"contract.pdf"}, doc.GetItemValueStringList("$file.names"))
}

func TestAddFileDataOverridesExisting(t *testing.T) {
	doc := New()
	require.NoError(t, doc.AddFileData(FileData{Name: "a.txt", ContentType: "text/plain", Content: []byte("v1")}))
	require.NoError(t, doc.AddFileData(FileData{Name: "a.txt", ContentType: "text/plain", Content: []byte("v2")}))

	assert.Equal(t, 1, doc.FileCount())
	assert.Equal(t, []byte("v2"), doc.GetFileData("a.txt").Content)
}

func TestFileBookkeepingStaysConsistent(t *testing.T) {
	doc := New()
	require.NoError(t, doc.AddFileData(FileData{Name: "b.txt", ContentType: "text/plain", Content: []byte("b")}))
	require.NoError(t, doc.AddFileData(FileData{Name: "a.txt", ContentType: "text/plain", Content: []byte("a")}))

	assert.Equal(t, 2, doc.GetItemValueInteger("$file.count"))
	assert.Equal(t, []string{"a.txt", "b.txt"}, doc.FileNames())

	require.NoError(t, doc.RemoveFile("a.txt"))
	assert.Equal(t, 1, doc.GetItemValueInteger("$file.count"))
	assert.Equal(t, []string{"b.txt"}, doc.GetItemValueStringList("$file.names"))

	require.NoError(t, doc.RemoveFile("b.txt"))
	assert.Equal(t, 0, doc.FileCount())
	assert.Empty(t, doc.FileNames())
}

func TestFileAttributesSurvive(t *testing.T) {
	doc := New()
	require.NoError(t, doc.AddFileData(FileData{
		Name:        "scan.png",
		ContentType: "image/png",
		Content:     []byte{1},
		Attributes:  map[string][]any{"source": {"scanner"}},
	}))

	loaded := doc.GetFileData("scan.png")
	require.NotNil(t, loaded)
	require.NotNil(t, loaded.Attributes)
	assert.Equal(t, []any{"scanner"}, loaded.Attributes["source"])
}

func TestGetFileDataMissing(t *testing.T) {
	doc := New()
	assert.Nil(t, doc.GetFileData("missing"))
	assert.Nil(t, doc.GetFileData(""))
}
