package params

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML document at path and validates it.
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Document, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	return doc, data, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist
func LoadOrDefault(path string) (*Document, []byte, error) {
	doc, data, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil, nil
	}
	return doc, data, err
}

// Parse decodes a document. Omitted sections keep their defaults.
func Parse(data []byte) (*Document, error) {
	doc := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Hash generates a SHA-256 hash of the canonical JSON form
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(doc *Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// NewSnapshot captures the document for run metadata
func NewSnapshot(doc *Document, yamlData []byte, path string) (*Snapshot, error) {
	hash, err := Hash(doc)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Hash:      hash,
		YAML:      string(yamlData),
		Path:      path,
		CreatedAt: time.Now(),
	}, nil
}
