// Package config provides loading and environment overlay for the feed
// engine's runtime configuration. It exposes a Default() baseline and helpers
// to construct an Options struct for the runtime.
//
// Example:
//
//	cfg := config.Default()
//	// Optionally load from file and overlay env vars
//	if fileCfg, err := config.Load("/etc/feedd.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: "/var/lib/feedd", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
package config
