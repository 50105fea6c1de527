package pluginmgr

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DistHash walks distDir, collects relative POSIX paths, sorts them
// lexicographically, and feeds each path's UTF-8 bytes, a single NUL
// byte, and the file's contents into a single SHA-256. The result is
// lowercase hex. This is the only identity accepted for lock
// validation; any byte change anywhere in the tree changes the hash.
func DistHash(distDir string) (hash string, fileCount int, totalBytes int64, err error) {
	var relPaths []string
	sizes := make(map[string]int64)

	err = filepath.WalkDir(distDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(distDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		relPaths = append(relPaths, rel)
		sizes[rel] = info.Size()
		return nil
	})
	if err != nil {
		return "", 0, 0, err
	}

	sort.Strings(relPaths)

	h := sha256.New()
	for _, rel := range relPaths {
		h.Write([]byte(rel))
		h.Write([]byte{0})
		content, err := os.ReadFile(filepath.Join(distDir, filepath.FromSlash(rel)))
		if err != nil {
			return "", 0, 0, err
		}
		h.Write(content)
		totalBytes += sizes[rel]
	}

	return hex.EncodeToString(h.Sum(nil)), len(relPaths), totalBytes, nil
}

// LockFile is the manager-written record of the dist metadata observed
// at the most recent load.
type LockFile struct {
	ObservedDist   DistInfo  `json:"observed_dist"`
	Timestamp      time.Time `json:"timestamp"`
	KeyFingerprint string    `json:"key_fingerprint,omitempty"`
}
