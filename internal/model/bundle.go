package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// BundleVersion is bumped whenever the serialised layout changes
const BundleVersion = 1

// Bundle is everything scoring needs: three models and the frozen features
type Bundle struct {
	Version      int           `json:"version"`
	TrainedAt    time.Time     `json:"trained_at"`
	ParamsHash   string        `json:"params_hash"`
	Params       Params        `json:"params"`
	FeatureSet   FeatureSet    `json:"feature_set"`
	TrainCutoffs []time.Time   `json:"train_cutoffs"`
	TestCutoffs  []time.Time   `json:"test_cutoffs"`
	Churn        *ChurnModel   `json:"churn"`
	Spend        *SpendModel   `json:"spend"`
	Revenue      *RevenueModel `json:"revenue"`
	Metrics      Evaluation    `json:"metrics"`
}

// Validate rejects bundles that cannot score
func (b *Bundle) Validate() error {
	switch {
	case b.Version != BundleVersion:
		return fmt.Errorf("unsupported bundle version %d (want %d)", b.Version, BundleVersion)
	case b.Churn == nil || b.Spend == nil || b.Revenue == nil:
		return fmt.Errorf("bundle is missing a model")
	case len(b.FeatureSet.Columns) == 0:
		return fmt.Errorf("bundle has an empty feature set")
	}
	return nil
}

const (
	bundlePrefix = "bundle_"
	latestBundle = "latest.json"
)

// ArtifactStore keeps model bundles as JSON files in one directory
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates a store rooted at dir
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir returns the store directory
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Save writes bundle_<timestamp>.json and replaces latest.json.
// Both files are renamed into place after a complete write.
func (s *ArtifactStore) Save(b *Bundle) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model dir: %w", err)
	}

	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to encode bundle: %w", err)
	}

	name := bundlePrefix + b.TrainedAt.UTC().Format("20060102T150405") + ".json"
	path := filepath.Join(s.dir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(s.dir, latestBundle), data); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads one bundle file
func (s *ArtifactStore) Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle %s: %w", path, err)
	}
	return &b, nil
}

// Latest loads latest.json
func (s *ArtifactStore) Latest() (*Bundle, error) {
	return s.Load(filepath.Join(s.dir, latestBundle))
}

// List returns bundle file names, newest first
func (s *ArtifactStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), bundlePrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
