package fs

import (
	"context"
	"hash/fnv"
	"os/user"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/prologic/historykv/store"
)

// separator splits keys into directory levels
const separator = "/"

// Set file owners to the current user,
// otherwise in OSX, we will fail to start.
var uid, gid uint32

func init() {
	u, err := user.Current()
	if err != nil {
		panic(err)
	}
	uid32, _ := strconv.ParseUint(u.Uid, 10, 32)
	gid32, _ := strconv.ParseUint(u.Gid, 10, 32)
	uid = uint32(uid32)
	gid = uint32(gid32)
}

// A tree node in filesystem, it acts as both a directory and a history file
type Node struct {
	fs.Inode
	store  store.Store
	isLeaf bool   // A leaf of the filesystem tree is a history record
	path   string // Key of the record, or key prefix of a directory

	rwMu    sync.RWMutex // Protect content and pending
	content []byte       // Record as read at Open, one entry per line
	pending []byte       // Bytes written since the last Flush
}

// NewRoot returns the root directory node
func NewRoot(s store.Store) *Node {
	return &Node{
		store:  s,
		isLeaf: false,
	}
}

// List keys under the current prefix, and output the next hierarchy level
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	parent := n.prefix()
	logrus.WithField("path", parent).Debug("Node Readdir")

	keys, err := n.store.ListKeys(ctx, parent)
	if err != nil {
		logrus.WithError(err).WithField("path", parent).Error("Failed to list keys from store")
		return nil, syscall.EIO
	}

	entrySet := make(map[string]fuse.DirEntry)
	for _, key := range keys {
		nextLevel, hasMore := nextHierarchyLevel(key, parent)
		if nextLevel == "" {
			continue
		}
		if e, exist := entrySet[nextLevel]; exist && e.Mode&syscall.S_IFDIR != 0 {
			continue
		}
		entrySet[nextLevel] = fuse.DirEntry{
			Mode: getMode(!hasMore),
			Name: nextLevel,
			Ino:  inodeHash(n.resolve(nextLevel)),
		}
	}

	entries := make([]fuse.DirEntry, 0, len(entrySet))
	for _, e := range entrySet {
		entries = append(entries, e)
	}
	return fs.NewListDirStream(entries), fs.OK
}

// Returns next hierarchy level and tells if we have more hierarchies
// key "foo/bar", parent "foo/" => "bar", false
func nextHierarchyLevel(key, parent string) (string, bool) {
	baseName := strings.TrimPrefix(key, parent)
	hierarchies := strings.SplitN(baseName, separator, 2)
	return hierarchies[0], len(hierarchies) >= 2
}

// prefix is the key prefix shared by everything under a directory node
func (n *Node) prefix() string {
	if n.path == "" {
		return ""
	}
	return n.path + separator
}

// resolve returns the key of a child of the current node
func (n *Node) resolve(name string) string {
	return n.prefix() + name
}

// classify tells whether key is a record, a directory of records, or neither
func (n *Node) classify(ctx context.Context, key string) (isLeaf, found bool, err error) {
	keys, err := n.store.ListKeys(ctx, key)
	if err != nil {
		return false, false, err
	}
	for _, k := range keys {
		if k == key {
			return true, true, nil
		}
		if strings.HasPrefix(k, key+separator) {
			found = true
		}
	}
	return false, found, nil
}

// Lookup finds a record or directory under the current node
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	fullPath := n.resolve(name)
	logrus.WithField("path", fullPath).Debug("Node Lookup")

	isLeaf, found, err := n.classify(ctx, fullPath)
	if err != nil {
		logrus.WithError(err).WithField("path", fullPath).Error("Failed to list keys from store")
		return nil, syscall.EIO
	}
	if !found {
		return nil, syscall.ENOENT
	}
	child := &Node{
		path:   fullPath,
		store:  n.store,
		isLeaf: isLeaf,
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: getMode(child.isLeaf), Ino: inodeHash(child.path)}), fs.OK
}

func getMode(isLeaf bool) uint32 {
	if isLeaf {
		return 0644 | uint32(syscall.S_IFREG)
	}
	return 0755 | uint32(syscall.S_IFDIR)
}

// Getattr outputs file attributes. A record's size is read from the store.
func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = getMode(n.isLeaf)
	if n.isLeaf {
		content, errno := n.load(ctx)
		if errno != fs.OK {
			return errno
		}
		out.Size = uint64(len(content))
	}
	out.Ino = inodeHash(n.path)
	now := time.Now()
	out.SetTimes(&now, &now, &now)
	out.Uid = uid
	out.Gid = gid
	return fs.OK
}

// Hash key into inode number, so we can ensure the same record always gets the same inode number
func inodeHash(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return h.Sum64()
}

var (
	_ fs.NodeGetattrer = &Node{}
	_ fs.NodeReaddirer = &Node{}
	_ fs.NodeLookuper  = &Node{}
)
