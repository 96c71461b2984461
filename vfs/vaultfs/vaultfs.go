// Package vaultfs exposes a vfs.VFS as a FUSE file system: a read/write,
// hierarchical view over the vault's flat path namespace, generalized from
// the squashfs-union-overlay file system in internal/fuse.
package vaultfs

import (
	"context"
	"log"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/xerrors"

	"github.com/vaultnetwork/vault/vfs"
)

const rootInode = fuseops.RootInodeID

// never is a timestamp one year after package init. No FUSE reply uses it:
// directory and file entries alike expire after entryExpiration.
var never = time.Now().Add(365 * 24 * time.Hour)

// entryExpiration bounds how long the kernel may cache a file's attributes
// and directory listings before re-querying, since unlike the teacher's
// squashfs images, a vault is mutated concurrently by other nodes.
const entryExpiration = 1 * time.Second

type inode struct {
	id       fuseops.InodeID
	parent   fuseops.InodeID
	name     string
	isDir    bool
	children map[string]fuseops.InodeID // dirs only
	vpath    string                     // files only: the vault path
	size     int64
	mtime    time.Time
}

func (n *inode) mode() os.FileMode {
	if n.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}

// handle buffers the full contents of a file open for writing. The vault has
// no partial-write primitive, so a write handle accumulates bytes locally and
// commits them as a single vfs.Write on flush, mirroring the teacher's
// whole-file-at-a-time model (its squashfs readers are similarly whole-image,
// just read-only).
type handle struct {
	inode *inode
	buf   []byte
	dirty bool
}

// FS is a fuseutil.FileSystem backed by a vfs.VFS. Unlike the teacher's
// fuseFS, which rebuilds its inode table from squashfs image metadata that
// never changes after Mount, FS refreshes its tree from VFS.List on every
// LookUpInode/ReadDir so that files written by other nodes become visible
// without remounting.
type FS struct {
	fuseutil.NotImplementedFileSystem

	vfs *vfs.VFS
	log *log.Logger

	// mu guards inodes/nextInode/handles the same way store's sharded
	// mutexes guard block I/O: one lock per mutable table, held for the
	// duration of the table operation. It is never held across a vault
	// Read/Write/Delete, but LookUpInode and ReadDir hold it across the
	// VFS.List call that refresh makes.
	mu        sync.Mutex
	inodes    map[fuseops.InodeID]*inode
	nextInode fuseops.InodeID

	handlesMu sync.Mutex
	handles   map[fuseops.HandleID]*handle
	nextHandle fuseops.HandleID
}

// New constructs an FS over v. Call Mount to attach it to the kernel.
func New(v *vfs.VFS, logger *log.Logger) *FS {
	fs := &FS{
		vfs:       v,
		log:       logger,
		inodes:    make(map[fuseops.InodeID]*inode),
		nextInode: rootInode + 1,
		handles:   make(map[fuseops.HandleID]*handle),
	}
	fs.inodes[rootInode] = &inode{
		id:       rootInode,
		isDir:    true,
		children: make(map[string]fuseops.InodeID),
		mtime:    time.Now(),
	}
	return fs
}

// Mount attaches fs at mountpoint and returns a join function that blocks
// until the file system is unmounted, following the teacher's Mount/join
// convention in internal/fuse.Mount.
func Mount(ctx context.Context, v *vfs.VFS, logger *log.Logger, mountpoint string) (join func(context.Context) error, err error) {
	fs := New(v, logger)
	server := fuseutil.NewFileSystemServer(fs)
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName: "vault",
		Options: map[string]string{
			"allow_other": "",
		},
	})
	if err != nil {
		return nil, xerrors.Errorf("fuse.Mount: %w", err)
	}
	join = func(ctx context.Context) error {
		defer syscall.Unmount(mountpoint, 0)
		return mfs.Join(ctx)
	}
	return join, nil
}

// refresh rebuilds the directory tree from the vault's current file list.
// Existing inode numbers are preserved for paths that still exist so that
// in-flight lookups and open handles remain valid; new paths get fresh
// inode numbers and vanished paths are dropped.
func (fs *FS) refresh() error {
	files, err := fs.vfs.List()
	if err != nil {
		return err
	}

	byPath := make(map[string]fuseops.InodeID)
	dirByPath := make(map[string]fuseops.InodeID)
	for id, n := range fs.inodes {
		if !n.isDir {
			byPath[n.vpath] = id
		} else if id != rootInode {
			dirByPath[parentPath(fs.inodes, n)] = id
		}
	}

	root := fs.inodes[rootInode]
	root.children = make(map[string]fuseops.InodeID)
	dirs := map[string]*inode{"/": root}

	var ensureDir func(dirPath string) *inode
	ensureDir = func(dirPath string) *inode {
		if d, ok := dirs[dirPath]; ok {
			return d
		}
		parentPath := path.Dir(dirPath)
		parent := ensureDir(parentPath)
		name := path.Base(dirPath)
		id, existing := dirByPath[dirPath]
		if !existing {
			id = fs.allocInode()
		}
		d := &inode{
			id:       id,
			parent:   parent.id,
			name:     name,
			isDir:    true,
			children: make(map[string]fuseops.InodeID),
			mtime:    time.Now(),
		}
		fs.inodes[d.id] = d
		parent.children[name] = d.id
		dirs[dirPath] = d
		return d
	}

	seen := make(map[string]bool)
	for _, f := range files {
		clean := path.Clean("/" + strings.TrimPrefix(f.Path, "/"))
		dirPath := path.Dir(clean)
		name := path.Base(clean)
		var d *inode
		if dirPath == "/" || dirPath == "." {
			d = root
		} else {
			d = ensureDir(dirPath)
		}

		id, existing := byPath[clean]
		if !existing {
			id = fs.allocInode()
		}
		n := &inode{
			id:    id,
			parent: d.id,
			name:  name,
			vpath: clean,
			size:  f.Size,
			mtime: f.ModifiedAt,
		}
		fs.inodes[id] = n
		d.children[name] = id
		seen[clean] = true
	}

	for p, id := range byPath {
		if !seen[p] {
			delete(fs.inodes, id)
		}
	}
	for p, id := range dirByPath {
		if _, ok := dirs[p]; !ok {
			delete(fs.inodes, id)
		}
	}
	return nil
}

func (fs *FS) allocInode() fuseops.InodeID {
	id := fs.nextInode
	fs.nextInode++
	return id
}

func (fs *FS) attributesFor(n *inode) fuseops.InodeAttributes {
	if n.isDir {
		return fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  n.mode(),
			Atime: n.mtime,
			Mtime: n.mtime,
			Ctime: n.mtime,
		}
	}
	return fuseops.InodeAttributes{
		Size:  uint64(n.size),
		Nlink: 1,
		Mode:  n.mode(),
		Atime: n.mtime,
		Mtime: n.mtime,
		Ctime: n.mtime,
	}
}

func (fs *FS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 4096
	op.Blocks = 1
	op.BlocksFree = 0
	op.BlocksAvailable = 0
	op.IoSize = 65536
	return nil
}

func (fs *FS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.refresh(); err != nil {
		fs.log.Printf("vaultfs: refresh: %v", err)
		return fuse.EIO
	}
	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		return fuse.ENOENT
	}
	childID, ok := parent.children[op.Name]
	if !ok {
		return fuse.ENOENT
	}
	child := fs.inodes[childID]
	op.Entry.Child = childID
	op.Entry.Attributes = fs.attributesFor(child)
	op.Entry.AttributesExpiration = time.Now().Add(entryExpiration)
	op.Entry.EntryExpiration = time.Now().Add(entryExpiration)
	return nil
}

func (fs *FS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, ok := fs.inodes[op.Inode]
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes = fs.attributesFor(n)
	op.AttributesExpiration = time.Now().Add(entryExpiration)
	return nil
}

func (fs *FS) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, ok := fs.inodes[op.Inode]
	if !ok {
		return fuse.ENOENT
	}
	if op.Size != nil {
		n.size = int64(*op.Size)
	}
	op.Attributes = fs.attributesFor(n)
	op.AttributesExpiration = time.Now().Add(entryExpiration)
	return nil
}

func (fs *FS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return nil
}

func (fs *FS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	if err := fs.refresh(); err != nil {
		fs.mu.Unlock()
		fs.log.Printf("vaultfs: refresh: %v", err)
		return fuse.EIO
	}
	n, ok := fs.inodes[op.Inode]
	if !ok || !n.isDir {
		fs.mu.Unlock()
		return fuse.EIO
	}
	type namedChild struct {
		name string
		id   fuseops.InodeID
	}
	var children []namedChild
	for name, id := range n.children {
		children = append(children, namedChild{name, id})
	}
	entries := make([]fuseutil.Dirent, 0, len(children))
	for i, c := range children {
		child := fs.inodes[c.id]
		typ := fuseutil.DT_File
		if child.isDir {
			typ = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  c.id,
			Name:   c.name,
			Type:   typ,
		})
	}
	fs.mu.Unlock()

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		wrote := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if wrote == 0 {
			break
		}
		op.BytesRead += wrote
	}
	return nil
}

func (fs *FS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	// Directories are derived purely from path components of stored files;
	// they exist implicitly and are created the moment a file under them is
	// written. An explicit mkdir always returns ENOSYS, even where a
	// directory with that path already exists implicitly: the vault has no
	// concept of an empty directory to persist.
	return fuse.ENOSYS
}

func (fs *FS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	n, ok := fs.inodes[op.Inode]
	fs.mu.Unlock()
	if !ok || n.isDir {
		return fuse.EIO
	}

	data, err := fs.vfs.Read(ctx, n.vpath, nil)
	if err != nil {
		fs.log.Printf("vaultfs: open %s: %v", n.vpath, err)
		return fuse.EIO
	}

	fs.handlesMu.Lock()
	id := fs.nextHandle
	fs.nextHandle++
	fs.handles[id] = &handle{inode: n, buf: data}
	fs.handlesMu.Unlock()

	op.Handle = id
	op.UseDirectIO = true
	return nil
}

func (fs *FS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.handlesMu.Lock()
	h, ok := fs.handles[op.Handle]
	fs.handlesMu.Unlock()
	if !ok {
		return fuse.EIO
	}
	if op.Offset >= int64(len(h.buf)) {
		op.BytesRead = 0
		return nil
	}
	op.BytesRead = copy(op.Dst, h.buf[op.Offset:])
	return nil
}

func (fs *FS) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	fs.mu.Lock()
	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		fs.mu.Unlock()
		return fuse.ENOENT
	}
	var vpath string
	if parent.id == rootInode {
		vpath = "/" + op.Name
	} else {
		vpath = parentPath(fs.inodes, parent) + "/" + op.Name
	}
	id := fs.allocInode()
	n := &inode{id: id, parent: parent.id, name: op.Name, vpath: vpath, mtime: time.Now()}
	fs.inodes[id] = n
	parent.children[op.Name] = id
	fs.mu.Unlock()

	fs.handlesMu.Lock()
	hid := fs.nextHandle
	fs.nextHandle++
	fs.handles[hid] = &handle{inode: n, dirty: true}
	fs.handlesMu.Unlock()

	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(n)
	op.Entry.AttributesExpiration = time.Now().Add(entryExpiration)
	op.Entry.EntryExpiration = time.Now().Add(entryExpiration)
	op.Handle = hid
	return nil
}

func parentPath(inodes map[fuseops.InodeID]*inode, n *inode) string {
	if n.id == rootInode {
		return ""
	}
	parent, ok := inodes[n.parent]
	if !ok || parent.id == rootInode {
		return "/" + n.name
	}
	return parentPath(inodes, parent) + "/" + n.name
}

func (fs *FS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	fs.handlesMu.Lock()
	h, ok := fs.handles[op.Handle]
	fs.handlesMu.Unlock()
	if !ok {
		return fuse.EIO
	}
	end := op.Offset + int64(len(op.Data))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[op.Offset:end], op.Data)
	h.dirty = true
	return nil
}

func (fs *FS) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	fs.handlesMu.Lock()
	h, ok := fs.handles[op.Handle]
	fs.handlesMu.Unlock()
	if !ok || !h.dirty {
		return nil
	}
	return fs.commit(ctx, h)
}

func (fs *FS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.handlesMu.Lock()
	h, ok := fs.handles[op.Handle]
	delete(fs.handles, op.Handle)
	fs.handlesMu.Unlock()
	if !ok || !h.dirty {
		return nil
	}
	return fs.commit(ctx, h)
}

// commit writes a handle's buffered bytes through to the vault, mirroring
// cmd/vaultnode put's WriteFile call but without progress reporting, since
// nothing in the FUSE protocol has anywhere to surface it.
func (fs *FS) commit(ctx context.Context, h *handle) error {
	if _, _, err := fs.vfs.Write(ctx, h.inode.vpath, h.buf, nil); err != nil {
		fs.log.Printf("vaultfs: commit %s: %v", h.inode.vpath, err)
		return fuse.EIO
	}
	fs.mu.Lock()
	h.inode.size = int64(len(h.buf))
	h.inode.mtime = time.Now()
	fs.mu.Unlock()
	h.dirty = false
	return nil
}

func (fs *FS) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	fs.mu.Lock()
	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		fs.mu.Unlock()
		return fuse.ENOENT
	}
	childID, ok := parent.children[op.Name]
	if !ok {
		fs.mu.Unlock()
		return fuse.ENOENT
	}
	child := fs.inodes[childID]
	vpath := child.vpath
	delete(parent.children, op.Name)
	delete(fs.inodes, childID)
	fs.mu.Unlock()

	if err := fs.vfs.Delete(ctx, vpath); err != nil {
		fs.log.Printf("vaultfs: delete %s: %v", vpath, err)
		return fuse.EIO
	}
	return nil
}

func (fs *FS) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}
