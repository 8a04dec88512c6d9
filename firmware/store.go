// Package firmware stores lock firmware images on disk, one file per
// version, and tracks which version is current.
package firmware

import (
	"crypto/md5"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Info describes one stored firmware image.
type Info struct {
	Version     string `json:"version"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	Modified    string `json:"modified"`
	MD5         string `json:"md5"`
	IsLatest    bool   `json:"is_latest"`
	DownloadURL string `json:"download_url"`
}

// Store holds firmware images under a single directory as
// firmware_<version>.bin files.
type Store struct {
	dir string

	mu     sync.RWMutex
	latest string
}

// NewStore opens (creating if needed) the firmware directory.  latest is the
// version reported to polling clients until an upload supersedes it.
func NewStore(dir, latest string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create firmware directory %s: %w", dir, err)
	}

	return &Store{dir: dir, latest: latest}, nil
}

// Latest returns the current firmware version.
func (s *Store) Latest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest
}

// SetLatest marks version as current.
func (s *Store) SetLatest(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = version
}

// validVersion rejects version strings which could escape the firmware
// directory once embedded in a filename.
func validVersion(v string) error {
	if v == "" {
		return fmt.Errorf("empty version")
	}

	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid version %q", v)
		}
	}

	return nil
}

func filename(version string) string {
	return "firmware_" + version + ".bin"
}

// Path returns the on-disk location for a version.  The version must already
// be validated.
func (s *Store) Path(version string) string {
	return filepath.Join(s.dir, filename(version))
}

// Save stores the image for version and marks it latest, returning the
// number of bytes written.
func (s *Store) Save(version string, r io.Reader) (int64, error) {
	if err := validVersion(version); err != nil {
		return 0, err
	}

	dst, err := os.Create(s.Path(version))
	if err != nil {
		return 0, fmt.Errorf("failed to create firmware file: %w", err)
	}

	n, err := io.Copy(dst, r)
	if err != nil {
		dst.Close()
		return n, fmt.Errorf("failed to write firmware file: %w", err)
	}

	if err := dst.Close(); err != nil {
		return n, fmt.Errorf("failed to close firmware file: %w", err)
	}

	s.SetLatest(version)

	return n, nil
}

// Stat reports metadata for a stored version.  A missing image yields an
// fs.ErrNotExist error.
func (s *Store) Stat(version string) (fs.FileInfo, error) {
	if err := validVersion(version); err != nil {
		return nil, err
	}

	return os.Stat(s.Path(version))
}

// Delete removes a stored version.
func (s *Store) Delete(version string) error {
	if err := validVersion(version); err != nil {
		return err
	}

	return os.Remove(s.Path(version))
}

// MD5 returns the hex MD5 digest of a stored image, used by the ESP8266 OTA
// client to verify the download.
func (s *Store) MD5(version string) (string, error) {
	if err := validVersion(version); err != nil {
		return "", err
	}

	f, err := os.Open(s.Path(version))
	if err != nil {
		return "", fmt.Errorf("failed to open firmware file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash firmware file: %w", err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// List returns metadata for every stored image, sorted by version.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware directory: %w", err)
	}

	latest := s.Latest()

	var list []Info

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "firmware_") || !strings.HasSuffix(name, ".bin") {
			continue
		}

		version := strings.TrimSuffix(strings.TrimPrefix(name, "firmware_"), ".bin")

		fi, err := e.Info()
		if err != nil {
			continue
		}

		sum, err := s.MD5(version)
		if err != nil {
			continue
		}

		list = append(list, Info{
			Version:     version,
			Filename:    name,
			Size:        fi.Size(),
			Modified:    fi.ModTime().Format("2006-01-02 15:04:05"),
			MD5:         sum,
			IsLatest:    version == latest,
			DownloadURL: "/firmware?version=" + version,
		})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })

	return list, nil
}
