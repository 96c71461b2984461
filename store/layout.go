// Package store implements durable, crash-safe persistence for blocks,
// the path manifest, and per-file extended metadata, per the on-disk
// layout:
//
//	blocks/<uuid-hex>.block
//	manifest.json
//	metadata/<sha256(path)-hex>.json
//
// Every mutation is write-temp-then-rename via github.com/google/renameio,
// matching the teacher's durability convention throughout its package
// builder and installer.
package store

import (
	"encoding/hex"
	"os"
	"path/filepath"
)

const (
	blocksDirName   = "blocks"
	metadataDirName = "metadata"
	manifestName    = "manifest.json"
	queueDirName    = "replicate_queue"
	blockExt        = ".block"
	pendingExt      = ".pending"
)

// Layout resolves the on-disk paths rooted at a data directory.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) BlocksDir() string   { return filepath.Join(l.Root, blocksDirName) }
func (l Layout) MetadataDir() string { return filepath.Join(l.Root, metadataDirName) }
func (l Layout) QueueDir() string    { return filepath.Join(l.Root, queueDirName) }
func (l Layout) ManifestPath() string { return filepath.Join(l.Root, manifestName) }

func (l Layout) BlockPath(uuid [16]byte) string {
	return filepath.Join(l.BlocksDir(), hex.EncodeToString(uuid[:])+blockExt)
}

func (l Layout) MetadataPath(pathHash [32]byte) string {
	return filepath.Join(l.MetadataDir(), hex.EncodeToString(pathHash[:])+".json")
}

func (l Layout) QueueMarkerPath(uuid [16]byte) string {
	return filepath.Join(l.QueueDir(), hex.EncodeToString(uuid[:])+pendingExt)
}

// EnsureDirs creates the layout's directories if absent.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.Root, l.BlocksDir(), l.MetadataDir(), l.QueueDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// fsyncDir fsyncs a directory handle so a preceding rename within it is
// durable. renameio guarantees the rename itself is atomic but, per its
// own documentation, does not fsync the parent directory on every
// platform; store does so explicitly for the block and manifest
// directories.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
