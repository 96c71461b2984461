package store

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/renameio"
)

// FileMetadata is the per-path record kept in the manifest.
type FileMetadata struct {
	Path           string    `json:"path"`
	FirstBlockUUID [16]byte  `json:"first_block_uuid"`
	Size           int64     `json:"size"`
	BlockCount     int       `json:"block_count"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	Extension      string    `json:"extension,omitempty"`
	MimeType       string    `json:"mime_type,omitempty"`
	ContentHash    *[32]byte `json:"content_hash,omitempty"`
}

// manifestDocument is the literal manifest.json shape: a single JSON
// document wrapping the path → FileMetadata map, per spec.md §6.
type manifestDocument struct {
	Entries map[string]FileMetadata `json:"entries"`
}

// LoadManifest reads the manifest document, returning an empty map if no
// manifest file exists yet (a fresh data directory). A half-written
// manifest is impossible by construction: SaveManifest only ever
// publishes a fully-rendered document via atomic rename, so a reader
// either sees the previous generation or the new one, never a torn file.
func (l Layout) LoadManifest() (map[string]FileMetadata, error) {
	raw, err := os.ReadFile(l.ManifestPath())
	if os.IsNotExist(err) {
		return map[string]FileMetadata{}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc manifestDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Entries == nil {
		doc.Entries = map[string]FileMetadata{}
	}
	return doc.Entries, nil
}

// SaveManifest durably overwrites the manifest document with entries.
// Idempotent: calling it twice with the same map produces the same
// on-disk bytes both times.
func (l Layout) SaveManifest(entries map[string]FileMetadata) error {
	doc := manifestDocument{Entries: entries}
	raw, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return err
	}
	f, err := renameio.TempFile("", l.ManifestPath())
	if err != nil {
		return err
	}
	defer f.Cleanup()
	if _, err := f.Write(raw); err != nil {
		return err
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return fsyncDir(l.Root)
}

// SaveMetadata writes optional extended per-file metadata keyed by a hash
// of the path, atomically.
func (l Layout) SaveMetadata(pathHash [32]byte, raw []byte) error {
	f, err := renameio.TempFile("", l.MetadataPath(pathHash))
	if err != nil {
		return err
	}
	defer f.Cleanup()
	if _, err := f.Write(raw); err != nil {
		return err
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return fsyncDir(l.MetadataDir())
}
