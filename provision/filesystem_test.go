package provision

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/wp-provisioner/interfaces"
)

func TestResolveOwner(t *testing.T) {
	current, err := user.Current()
	require.NoError(t, err)
	group, err := user.LookupGroupId(current.Gid)
	require.NoError(t, err)

	owner, err := ResolveOwner(current.Username, group.Name)
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), owner.UID)
	assert.Equal(t, os.Getgid(), owner.GID)

	owner, err = ResolveOwner("33", "33")
	require.NoError(t, err)
	assert.Equal(t, Owner{UID: 33, GID: 33}, owner)

	_, err = ResolveOwner("no-such-user-wp-provisioner", group.Name)
	require.Error(t, err)
	_, err = ResolveOwner(current.Username, "no-such-group-wp-provisioner")
	require.Error(t, err)
}

func TestNormalizePermissions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.php"), "<?php", 0o600)
	writeFile(t, filepath.Join(root, "wp-content", "uploads", "image.png"), "png", 0o777)
	require.NoError(t, os.Symlink("index.php", filepath.Join(root, "link.php")))

	require.NoError(t, NormalizePermissions(root))
	require.NoError(t, ChownTree(root, Owner{UID: os.Getuid(), GID: os.Getgid()}))

	assertMode(t, root, DirMode)
	assertMode(t, filepath.Join(root, "index.php"), FileMode)
	assertMode(t, filepath.Join(root, "wp-content"), DirMode)
	assertMode(t, filepath.Join(root, "wp-content", "uploads", "image.png"), FileMode)

	info, err := os.Lstat(filepath.Join(root, "link.php"))
	require.NoError(t, err)
	assert.Equal(t, os.ModeSymlink, info.Mode().Type())
}

func assertMode(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, mode, info.Mode().Perm(), path)
}

func TestChownTree_MissingRoot(t *testing.T) {
	err := ChownTree(filepath.Join(t.TempDir(), "missing"), Owner{UID: os.Getuid(), GID: os.Getgid()})
	require.ErrorIs(t, err, interfaces.ErrFileSystem)
}

func TestClearDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	// Missing directories are created.
	require.NoError(t, ClearDirectory(dir))
	assert.DirExists(t, dir)

	writeFile(t, filepath.Join(dir, "page.html"), "cached", 0o644)
	writeFile(t, filepath.Join(dir, "nested", "deep", "page.html"), "cached", 0o644)

	require.NoError(t, ClearDirectory(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCopyFileIfExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.php")
	dst := filepath.Join(dir, "dst.php")

	copied, err := CopyFileIfExists(src, dst)
	require.NoError(t, err)
	assert.False(t, copied)
	assert.NoFileExists(t, dst)

	writeFile(t, src, "<?php // drop-in", 0o600)
	writeFile(t, dst, "old content that is longer than the new one", 0o644)

	copied, err = CopyFileIfExists(src, dst)
	require.NoError(t, err)
	assert.True(t, copied)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "<?php // drop-in", string(content))

	_, err = CopyFileIfExists(src, filepath.Join(dir, "missing", "dst.php"))
	require.ErrorIs(t, err, interfaces.ErrFileSystem)
}

func TestLookupID(t *testing.T) {
	id, err := lookupID("1000", nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, id)

	id, err = lookupID("www-data", func(string) (string, error) { return strconv.Itoa(33), nil })
	require.NoError(t, err)
	assert.Equal(t, 33, id)
}
