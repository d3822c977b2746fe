package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/ruteri/wp-provisioner/interfaces"
)

// cleanKey normalizes a slash-separated storage key and rejects keys that
// would escape the backend's root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: invalid key %q", interfaces.ErrInvalidLocationURI, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: invalid key %q", interfaces.ErrInvalidLocationURI, key)
	}
	return cleaned, nil
}
