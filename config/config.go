package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prologic/historykv/history"
	"github.com/prologic/historykv/store"
)

const (
	defaultPprofAddress = "localhost:9327"
	defaultListen       = "localhost:8322"
	defaultDBPath       = "history.db"
)

// Actions selected by the subcommands
const (
	ActionInsert = "insert"
	ActionFetch  = "fetch"
	ActionRemove = "remove"
	ActionClear  = "clear"
	ActionServe  = "serve"
	ActionMount  = "mount"
)

var (
	ConfigFile  string
	Verbose     bool
	EnablePprof bool

	Backend       string
	DBPath        string
	Key           string
	Namespace     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	S3Bucket      string
	S3Endpoint    string

	Listen       string
	MountPoint   string
	MountOptions []string

	// Action is the subcommand to run, with its argument in Value or Index
	Action string
	Value  string
	Index  int

	// Will be set by go-build
	Version string
	Rev     string
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "15:04:05", FullTimestamp: true})
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <command>", os.Args[0]),
		Short: "Keep ordered histories of strings in a key-value store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfigFile(cmd.Flags())
		},
	}

	version := Version
	if version != "" && Rev != "" {
		version = fmt.Sprintf("%s, build %s", version, Rev)
	}
	rootCmd.Version = version

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ConfigFile, "config", "", "YAML configuration file; explicit flags take precedence")
	flags.BoolVarP(&Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&EnablePprof, "enable-pprof", false, fmt.Sprintf("enable runtime profiling data via HTTP server. Address is at %q", "http://"+defaultPprofAddress+"/debug/pprof"))

	flags.StringVar(&Backend, "backend", store.BackendBitcask, "key-value engine: bitcask, redis, s3 or memory")
	flags.StringVarP(&DBPath, "path", "p", defaultDBPath, "path to bitcask database")
	flags.StringVarP(&Key, "key", "k", history.DefaultKey, "key of the history record")
	flags.StringVar(&Namespace, "namespace", store.DefaultNamespace, "key prefix in shared engines (redis, s3)")
	flags.StringVar(&RedisAddr, "redis-addr", "localhost:6379", "redis address")
	flags.StringVar(&RedisPassword, "redis-password", "", "redis password")
	flags.IntVar(&RedisDB, "redis-db", 0, "redis database number")
	flags.StringVar(&S3Bucket, "s3-bucket", "", "S3 bucket name")
	flags.StringVar(&S3Endpoint, "s3-endpoint", "", "custom S3 endpoint URL")

	flags.SortFlags = false
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "insert <value>",
			Short: "Append a value to the history",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				Action, Value = ActionInsert, args[0]
				return nil
			},
		},
		&cobra.Command{
			Use:   "fetch",
			Short: "Print the history, oldest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				Action = ActionFetch
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <index>",
			Short: "Remove the entry at index; out of range indexes are ignored",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				i, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid index %q: %w", args[0], err)
				}
				Action, Index = ActionRemove, i
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the history",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				Action = ActionClear
				return nil
			},
		},
		newServeCmd(),
		newMountCmd(),
	)

	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the history HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			Action = ActionServe
			return nil
		},
	}
	cmd.Flags().StringVar(&Listen, "listen", defaultListen, "address for the HTTP API")
	return cmd
}

func newMountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <mount-point>",
		Short: "Mount the histories to the local file system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			Action, MountPoint = ActionMount, args[0]
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&MountOptions, "mount-options", []string{"nonempty"}, "options are passed as -o string to fusermount")
	return cmd
}

// Execute parses the command line. It returns false when there is nothing
// to run, such as after printing help, and exits on usage errors.
func Execute() bool {
	ok, err := execute(os.Args[1:])
	if err != nil {
		logrus.Errorln(err)
		os.Exit(2)
	}
	return ok
}

func execute(args []string) (bool, error) {
	Action = ""
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return false, err
	}
	if Action == "" {
		return false, nil
	}

	if Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if EnablePprof {
		go func() {
			if err := http.ListenAndServe(defaultPprofAddress, nil); err != nil {
				logrus.WithError(err).Error("Failed to serve pprof")
			}
		}()
	}
	return true, nil
}

// StoreOptions describes the configured engine.
func StoreOptions() store.Options {
	return store.Options{
		Backend: Backend,
		Path:    DBPath,
		Redis: store.RedisOptions{
			Address:   RedisAddr,
			Password:  RedisPassword,
			DB:        RedisDB,
			Namespace: Namespace,
		},
		S3: store.S3Options{
			Bucket:    S3Bucket,
			Namespace: Namespace,
			Endpoint:  S3Endpoint,
		},
	}
}
