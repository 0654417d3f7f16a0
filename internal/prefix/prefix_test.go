package prefix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/pathset"
)

func sample() *Index {
	x := New()
	x.Load([]docstore.Entry{
		{Path: "Daily", Folder: true},
		{Path: "Empty", Folder: true},
		{Path: "Daily/2024-01-01.md"},
		{Path: "Daily/2024-01-02.md"},
		{Path: "Daily/old/2023-12-31.md"},
		{Path: "Daily/data.csv"},
		{Path: "A/B.md"},
		{Path: "root.md"},
	})
	return x
}

func TestGet(t *testing.T) {
	x := sample()

	all := x.Get("Daily", nil)
	assert.Equal(t, []string{
		"Daily/2024-01-01.md", "Daily/2024-01-02.md", "Daily/data.csv", "Daily/old/2023-12-31.md",
	}, all.Sorted())

	md := x.Get("Daily", docstore.IsMarkdownPath)
	assert.False(t, md.Contains("Daily/data.csv"))
	assert.Equal(t, 3, md.Len())

	root := x.Get("", docstore.IsMarkdownPath)
	assert.Equal(t, 5, root.Len())

	assert.Equal(t, 0, x.Get("Empty", nil).Len())
	assert.Equal(t, 0, x.Get("Missing", nil).Len())
	// A file is not a prefix
	assert.Equal(t, 0, x.Get("root.md", nil).Len())
}

func TestExistence(t *testing.T) {
	x := sample()

	assert.True(t, x.PathExists("A/B.md"))
	assert.True(t, x.PathExists("A"))
	assert.False(t, x.PathExists("A/B"))
	assert.False(t, x.PathExists(""))

	assert.True(t, x.NodeExists("A"))
	assert.True(t, x.NodeExists("Empty"))
	assert.True(t, x.NodeExists(""))
	assert.False(t, x.NodeExists("A/B.md"))
	assert.False(t, x.NodeExists("A/B"))

	assert.Equal(t, 6, x.Len())
}

func TestResolveRelative(t *testing.T) {
	x := sample()

	tests := []struct {
		name, path, origin, want string
	}{
		{"no origin", "data.csv", "", "data.csv"},
		{"sibling exists", "data.csv", "Daily/2024-01-01.md", "Daily/data.csv"},
		{"nested sibling", "old/2023-12-31.md", "Daily/2024-01-01.md", "Daily/old/2023-12-31.md"},
		{"sibling missing", "nope.csv", "Daily/2024-01-01.md", "nope.csv"},
		{"absolute", "/Daily/data.csv", "A/B.md", "Daily/data.csv"},
		{"origin at root", "A/B.md", "root.md", "A/B.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, x.ResolveRelative(tt.path, tt.origin))
		})
	}
}

func TestRemove(t *testing.T) {
	x := sample()

	require.True(t, x.Remove("Daily/2024-01-01.md"))
	assert.False(t, x.PathExists("Daily/2024-01-01.md"))
	assert.Equal(t, 5, x.Len())

	require.True(t, x.Remove("Daily"))
	assert.False(t, x.NodeExists("Daily"))
	assert.False(t, x.PathExists("Daily/old/2023-12-31.md"))
	assert.Equal(t, 2, x.Len())

	assert.False(t, x.Remove("Daily"))
	assert.False(t, x.Remove(""))
}

func TestRenameFile(t *testing.T) {
	x := sample()

	require.True(t, x.Rename("Daily/2024-01-01.md", "Archive/2024/2024-01-01.md"))
	assert.False(t, x.PathExists("Daily/2024-01-01.md"))
	assert.True(t, x.PathExists("Archive/2024/2024-01-01.md"))
	assert.True(t, x.NodeExists("Archive/2024"))
	assert.Equal(t, pathset.New("Archive/2024/2024-01-01.md"), x.Get("Archive", nil))
	assert.Equal(t, 6, x.Len())
}

func TestRenameFolder(t *testing.T) {
	x := sample()

	require.True(t, x.Rename("Daily", "Journal"))
	assert.False(t, x.NodeExists("Daily"))
	assert.Equal(t, []string{
		"Journal/2024-01-01.md", "Journal/2024-01-02.md", "Journal/data.csv", "Journal/old/2023-12-31.md",
	}, x.Get("Journal", nil).Sorted())
	assert.Equal(t, 6, x.Len())
}

func TestRenameNoop(t *testing.T) {
	x := sample()

	assert.False(t, x.Rename("missing.md", "other.md"))
	assert.False(t, x.Rename("Daily", "Daily/inner"))
	assert.False(t, x.Rename("root.md", "root.md"))
	assert.Equal(t, 6, x.Len())
}

func TestOnDocumentChanged(t *testing.T) {
	x := New()

	x.OnDocumentChanged(&docstore.DocumentChange{Type: docstore.ChangeCreated, Path: "Notes", Folder: true})
	x.OnDocumentChanged(&docstore.DocumentChange{Type: docstore.ChangeCreated, Path: "Notes/a.md"})
	assert.True(t, x.NodeExists("Notes"))
	assert.True(t, x.PathExists("Notes/a.md"))

	// Content edits leave the tree alone, even for paths it does not know
	x.OnDocumentChanged(&docstore.DocumentChange{Type: docstore.ChangeModified, Path: "Other/b.md"})
	assert.False(t, x.PathExists("Other/b.md"))

	x.OnDocumentChanged(&docstore.DocumentChange{Type: docstore.ChangeRenamed, OldPath: "Notes/a.md", Path: "Notes/b.md"})
	assert.True(t, x.PathExists("Notes/b.md"))
	assert.False(t, x.PathExists("Notes/a.md"))

	x.OnDocumentChanged(&docstore.DocumentChange{Type: docstore.ChangeDeleted, Path: "Notes", Folder: true})
	assert.False(t, x.NodeExists("Notes"))
	assert.Equal(t, 0, x.Len())
}

func TestFileReplacedByFolder(t *testing.T) {
	x := New()
	x.Add("A")
	require.Equal(t, 1, x.Len())

	x.Add("A/b.md")
	assert.True(t, x.NodeExists("A"))
	assert.Equal(t, 1, x.Len())
}
