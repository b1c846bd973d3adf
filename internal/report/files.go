package report

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
)

// File describes one artifact in the reports directory
type File struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

var artifactPrefixes = []string{"run_report_", "top_loss_", "top_blended_"}

// IsArtifactName reports whether name is a plain report artifact file name
func IsArtifactName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	ext := filepath.Ext(name)
	if ext != ".json" && ext != ".csv" {
		return false
	}
	for _, p := range artifactPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// List returns the report artifacts in dir, newest first.
// A missing directory is an empty list.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, File{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Open reads one artifact. Names that are not plain artifact names are
// rejected before the filesystem is touched.
func Open(dir, name string) ([]byte, error) {
	if !IsArtifactName(name) {
		return nil, contracts.NewValidationError("name", "invalid report name %q", name)
	}
	body, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, contracts.ErrNotFound
	}
	return body, err
}
