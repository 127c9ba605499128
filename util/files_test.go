package util

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFiles(t *testing.T) {
	rootPath := t.TempDir()
	t.Log("TestFiles: " + rootPath)

	assert.Nil(t, os.Mkdir(path.Join(rootPath, "subDir1"), 0755))
	assert.Nil(t, os.WriteFile(path.Join(rootPath, "subDir1", "test1b"), []byte("Hello1b"), 0644))
	assert.Nil(t, os.WriteFile(path.Join(rootPath, "subDir1", "test1a"), []byte("Hello1a"), 0644))

	dir1, err1 := os.Open(path.Join(rootPath, "subDir1"))
	assert.Nil(t, err1)
	defer dir1.Close()

	t.Run("list files at", func(t *testing.T) {
		names, err := ListFileNamesAt(dir1)
		assert.Nil(t, err)
		assert.Equal(t, []string{"test1a", "test1b"}, names)
		// repeated listing must restart from the beginning
		names, err = ListFileNamesAt(dir1)
		assert.Nil(t, err)
		assert.Equal(t, []string{"test1a", "test1b"}, names)
	})

	t.Run("read file at", func(t *testing.T) {
		content, err := ReadFileAt(dir1, "test1a")
		assert.Nil(t, err)
		assert.Equal(t, "Hello1a", string(content))
	})

	t.Run("unlink file at", func(t *testing.T) {
		assert.Nil(t, UnlinkFileAt(dir1, "test1a"))
		_, err := ReadFileAt(dir1, "test1a")
		assert.NotNil(t, err)
	})

	t.Run("write file at", func(t *testing.T) {
		assert.Nil(t, WriteFileAt(dir1, "test4", []byte("Hello4"), 0644))
		content4, _ := ReadFileAt(dir1, "test4")
		assert.Equal(t, "Hello4", string(content4))
		names, _ := ListFileNamesAt(dir1)
		assert.Equal(t, []string{"test1b", "test4"}, names)
	})

	t.Run("rename file at", func(t *testing.T) {
		assert.Nil(t, RenameFileAt(dir1, "test4", "test5"))
		_, rerr := ReadFileAt(dir1, "test4")
		assert.NotNil(t, rerr)
		content5, rerr := ReadFileAt(dir1, "test5")
		assert.Nil(t, rerr)
		assert.Equal(t, "Hello4", string(content5))
	})
}
