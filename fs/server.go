package fs

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/historykv/store"
)

// Server is a mounted history filesystem.
type Server struct {
	*fuse.Server
	mountPoint string
}

// attributes and entries are cached briefly; records change under us through
// the other front ends
var cacheDuration = 200 * time.Millisecond

func mountOptions(options []string) *fs.Options {
	return &fs.Options{
		AttrTimeout:  &cacheDuration,
		EntryTimeout: &cacheDuration,
		MountOptions: fuse.MountOptions{
			Options: options,
			FsName:  "historykv",
			Name:    "historykv",
		},
	}
}

// checkMountPoint fails early for mount points fuse would reject with a less
// helpful error.
func checkMountPoint(mountPoint string) error {
	fi, err := os.Stat(mountPoint)
	if err != nil {
		return fmt.Errorf("error checking mount point: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("mount point %q is not a directory", mountPoint)
	}
	return nil
}

// Mount exposes the records of s as files under mountPoint.
func Mount(mountPoint string, options []string, s store.Store) (*Server, error) {
	if err := checkMountPoint(mountPoint); err != nil {
		return nil, err
	}
	server, err := fs.Mount(mountPoint, NewRoot(s), mountOptions(options))
	if err != nil {
		return nil, fmt.Errorf("error mounting %q: %w", mountPoint, err)
	}
	log.WithField("mountPoint", mountPoint).Debug("Mounted")
	return &Server{Server: server, mountPoint: mountPoint}, nil
}

// UnmountOnSignal unmounts the server on the first SIGINT or SIGTERM, which
// lets Wait return. A second signal exits the process.
func (s *Server) UnmountOnSignal() {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	sig := <-c
	log.Infof("Got %s signal, unmounting %q...", sig, s.mountPoint)
	if err := s.Unmount(); err != nil {
		log.WithError(err).Errorf("Failed to unmount, try %q manually.", "umount "+s.mountPoint)
	}
	<-c
	log.Warn("Force exiting...")
	os.Exit(1)
}
