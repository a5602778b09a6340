package fs

import (
	"context"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/historykv/history"
)

func (n *Node) record() *history.Storage {
	return history.New(n.store, n.path)
}

// render lays out entries one per line
func render(entries []string) []byte {
	if len(entries) == 0 {
		return []byte{}
	}
	return []byte(strings.Join(entries, "\n") + "\n")
}

// lines splits written bytes into the entries to insert, dropping empty lines
func lines(buf []byte) []string {
	var out []string
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (n *Node) load(ctx context.Context) ([]byte, syscall.Errno) {
	entries, err := n.record().Fetch(ctx)
	if err != nil {
		log.WithError(err).WithField("path", n.path).Errorf("Failed to fetch history from store")
		return nil, syscall.EIO
	}
	return render(entries), fs.OK
}

// Open reads the record from the store, and saves it in "content" for later read
func (n *Node) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	content, errno := n.load(ctx)
	if errno != fs.OK {
		return nil, 0, errno
	}
	n.rwMu.Lock()
	n.content = content
	n.rwMu.Unlock()
	log.WithField("path", n.path).WithField("length", len(content)).Debug("Node Open")
	return n, fuse.FOPEN_DIRECT_IO, fs.OK
}

// Read returns bytes from "content", which should be filled by a prior Open operation
func (n *Node) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.rwMu.RLock()
	defer n.rwMu.RUnlock()
	log.WithField("path", n.path).Debug("Node Read")

	if off >= int64(len(n.content)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := int(off) + len(dest)
	if end > len(n.content) {
		end = len(n.content)
	}
	return fuse.ReadResultData(n.content[off:end]), fs.OK
}

// Write collects bytes in the "pending" buffer. History files are append only,
// so the offset is ignored.
func (n *Node) Write(ctx context.Context, fh fs.FileHandle, buf []byte, off int64) (uint32, syscall.Errno) {
	n.rwMu.Lock()
	defer n.rwMu.Unlock()
	log.WithField("path", n.path).WithField("length", len(buf)).Debug("Node Write")
	n.pending = append(n.pending, buf...)
	return uint32(len(buf)), fs.OK
}

// Create returns a node for a new record. Nothing is stored until lines are written.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	fullPath := n.resolve(name)
	log.WithField("path", fullPath).Debug("Node Create")
	child := &Node{
		path:    fullPath,
		store:   n.store,
		isLeaf:  true,
		content: []byte{},
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: getMode(child.isLeaf), Ino: inodeHash(child.path)}), child, fuse.FOPEN_DIRECT_IO, fs.OK
}

// Flush inserts the non-empty lines written since the last flush into the
// record. A final line without a newline is inserted too. When an insert
// fails, the lines not yet inserted stay pending for the next flush.
func (n *Node) Flush(ctx context.Context, fh fs.FileHandle) syscall.Errno {
	log.WithField("path", n.path).Debug("Node Flush")
	n.rwMu.Lock()
	defer n.rwMu.Unlock()
	if len(n.pending) == 0 {
		return fs.OK
	}

	rec := n.record()
	todo := lines(n.pending)
	for i, line := range todo {
		if err := rec.Insert(ctx, line); err != nil {
			log.WithError(err).WithField("path", n.path).Errorf("Failed to insert into history")
			n.pending = render(todo[i:])
			return syscall.EIO
		}
	}
	n.pending = nil
	return fs.OK
}

// Some editors (eg. Vim) need to call Fsync, so implement it here as a no-op
func (n *Node) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	log.WithField("path", n.path).Debug("Node Fsync")
	return fs.OK
}

// Unlink clears a record
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	fullPath := n.resolve(name)
	log.WithField("path", fullPath).Debug("Node Unlink")
	if err := history.New(n.store, fullPath).Clear(ctx); err != nil {
		log.WithError(err).WithField("path", fullPath).Errorf("Failed to clear history")
		return syscall.EIO
	}
	return fs.OK
}

// Implement Setattr to support truncation; truncating to zero clears the record
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if sz, ok := in.GetSize(); ok {
		if sz != 0 {
			return syscall.EINVAL
		}
		if err := n.record().Clear(ctx); err != nil {
			log.WithError(err).WithField("path", n.path).Errorf("Failed to clear history")
			return syscall.EIO
		}
		n.rwMu.Lock()
		n.content = []byte{}
		n.rwMu.Unlock()
	}
	return n.Getattr(ctx, fh, out)
}

var (
	_ fs.NodeUnlinker  = &Node{}
	_ fs.NodeCreater   = &Node{}
	_ fs.NodeOpener    = &Node{}
	_ fs.FileReader    = &Node{}
	_ fs.NodeWriter    = &Node{}
	_ fs.NodeFlusher   = &Node{}
	_ fs.NodeFsyncer   = &Node{}
	_ fs.NodeSetattrer = &Node{}
)
