package main

import (
	"context"
	"fmt"
	"io"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/prologic/historykv/api"
	"github.com/prologic/historykv/config"
	"github.com/prologic/historykv/fs"
	"github.com/prologic/historykv/history"
	"github.com/prologic/historykv/store"
)

func main() {
	if !config.Execute() {
		return
	}

	ctx := context.Background()
	s, err := store.Open(ctx, config.StoreOptions())
	if err != nil {
		log.WithError(err).WithField("backend", config.Backend).Fatal("error creating store")
		return
	}
	defer s.Close()
	history.SetDefaultStore(s)

	if err := run(ctx, os.Stdout, s); err != nil {
		log.WithError(err).WithField("key", config.Key).Errorf("%s failed", config.Action)
		s.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, s store.Store) error {
	h := history.Default()
	if config.Key != history.DefaultKey {
		h = history.New(s, config.Key)
	}

	switch config.Action {
	case config.ActionInsert:
		return h.Insert(ctx, config.Value)
	case config.ActionFetch:
		entries, err := h.Fetch(ctx)
		if err != nil {
			return err
		}
		for i, e := range entries {
			fmt.Fprintf(w, "%d\t%s\n", i, e)
		}
		return nil
	case config.ActionRemove:
		return h.Remove(ctx, config.Index)
	case config.ActionClear:
		return h.Clear(ctx)
	case config.ActionServe:
		log.Infof("Serving history API on %q", config.Listen)
		return api.New(s).Start(config.Listen)
	case config.ActionMount:
		mountPoint, err := filepath.Abs(config.MountPoint)
		if err != nil {
			log.WithError(err).WithField("mountPoint", config.MountPoint).Fatal("Failed to get abs file path")
			return err
		}
		server, err := fs.Mount(mountPoint, config.MountOptions, s)
		if err != nil {
			return err
		}
		go server.UnmountOnSignal()
		log.Infof("Mounted to %q, use ctrl+c to terminate.", mountPoint)
		server.Wait()
		return nil
	default:
		return fmt.Errorf("unknown action %q", config.Action)
	}
}
