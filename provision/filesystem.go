package provision

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/ruteri/wp-provisioner/interfaces"
)

const (
	DirMode  fs.FileMode = 0o755
	FileMode fs.FileMode = 0o644
)

// Owner is a resolved numeric user and group.
type Owner struct {
	UID int
	GID int
}

// ResolveOwner looks up a user and group by name or numeric id.
func ResolveOwner(userName, groupName string) (Owner, error) {
	uid, err := lookupID(userName, func(name string) (string, error) {
		u, err := user.Lookup(name)
		if err != nil {
			return "", err
		}
		return u.Uid, nil
	})
	if err != nil {
		return Owner{}, fmt.Errorf("could not resolve user %q: %w", userName, err)
	}

	gid, err := lookupID(groupName, func(name string) (string, error) {
		g, err := user.LookupGroup(name)
		if err != nil {
			return "", err
		}
		return g.Gid, nil
	})
	if err != nil {
		return Owner{}, fmt.Errorf("could not resolve group %q: %w", groupName, err)
	}

	return Owner{UID: uid, GID: gid}, nil
}

func lookupID(name string, lookup func(string) (string, error)) (int, error) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	id, err := lookup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(id)
}

// ChownTree recursively changes ownership of root and everything below it.
// Symbolic links are changed themselves, not followed.
func ChownTree(root string, owner Owner) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, owner.UID, owner.GID)
	})
	if err != nil {
		return fmt.Errorf("%w: could not chown %s: %w", interfaces.ErrFileSystem, root, err)
	}
	return nil
}

// NormalizePermissions sets directories to 0755 and regular files to 0644 below root.
func NormalizePermissions(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.Chmod(path, DirMode)
		case d.Type().IsRegular():
			return os.Chmod(path, FileMode)
		default:
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("%w: could not chmod %s: %w", interfaces.ErrFileSystem, root, err)
	}
	return nil
}

// ClearDirectory removes every entry of dir, creating dir if it does not exist.
func ClearDirectory(dir string) error {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
		}
	}
	return nil
}

// CopyFileIfExists copies src to dst and reports whether src existed.
func CopyFileIfExists(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileMode)
	if err != nil {
		return false, fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, fmt.Errorf("%w: could not copy %s: %w", interfaces.ErrFileSystem, src, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}
	return true, nil
}
