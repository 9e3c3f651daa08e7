package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/tokenstore"
)

type app struct {
	configPath  string
	storeKind   string
	storeDir    string
	redisAddr   string
	redisPrefix string
	redisTTL    time.Duration
	debug       bool

	session *goAuthClient.Session
	closers []func()
}

func newRootCommand() *cobra.Command {
	rt := &app{}

	root := &cobra.Command{
		Use:   "authclient",
		Short: "Drive an authenticated API session from the command line",
		Long: `authclient logs in against an identity endpoint, keeps the credentials in a
local store and issues authenticated API requests, refreshing on 401.

Configuration is read from --config and AUTHCLIENT_* environment variables.
The CLI keeps no cookies between runs, so refresh_mode defaults to body here.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rt.open,
		PersistentPostRun: func(*cobra.Command, []string) { rt.close() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.configPath, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&rt.storeKind, "store", "disk", "credential store: disk, redis or memory")
	flags.StringVar(&rt.storeDir, "store-dir", defaultStoreDir(), "directory for the disk store")
	flags.StringVar(&rt.redisAddr, "redis-addr", "localhost:6379", "redis address for the redis store")
	flags.StringVar(&rt.redisPrefix, "redis-prefix", "authclient", "key prefix for the redis store")
	flags.DurationVar(&rt.redisTTL, "redis-ttl", 0, "expiry for stored credentials in redis, 0 keeps them")
	flags.BoolVar(&rt.debug, "debug", false, "log at debug level")

	root.AddCommand(
		newLoginCommand(rt),
		newWhoamiCommand(rt),
		newLogoutCommand(rt),
		newRestoreCommand(rt),
	)
	return root
}

func (rt *app) open(cmd *cobra.Command, _ []string) error {
	if rt.debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := goAuthClient.LoadConfigWithDefaults(rt.configPath, cliDefaults())
	if err != nil {
		return err
	}

	store, err := rt.openStore()
	if err != nil {
		return err
	}

	s, err := goAuthClient.New().
		WithConfig(cfg).
		WithStore(store).
		WithLogger(log.StandardLogger()).
		WithAuditSink(goAuthClient.NewLogrusSink(log.WithField("component", "audit"))).
		Build()
	if err != nil {
		return err
	}
	s.API().Resty().OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		req.SetHeader("X-Request-ID", uuid.NewString())
		return nil
	})

	rt.session = s
	rt.closers = append(rt.closers, s.Close)
	return nil
}

func cliDefaults() goAuthClient.Config {
	cfg := goAuthClient.DefaultConfig()
	cfg.RefreshMode = goAuthClient.RefreshBody
	return cfg
}

func (rt *app) openStore() (tokenstore.Store, error) {
	switch rt.storeKind {
	case "disk":
		if err := os.MkdirAll(rt.storeDir, 0o700); err != nil {
			return nil, err
		}
		return tokenstore.NewDiskStore(rt.storeDir), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: rt.redisAddr})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		return tokenstore.NewRedisStore(client, rt.redisPrefix, rt.redisTTL), nil
	case "memory":
		return tokenstore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store %q", rt.storeKind)
}

func (rt *app) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func defaultStoreDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authclient"
	}
	return filepath.Join(dir, "authclient")
}
