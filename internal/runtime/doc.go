// Package runtime wires the transactional store, the event bus, and the
// mediator into a single-node feed engine instance. It exposes Open/Close,
// a basic health check, and accessors for the operation surface.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(context.Background())
//	// Post an event
//	feed, _ := rt.Mediator().CreateFeed(context.Background())
//	_, _ = rt.Mediator().Post(context.Background(), feed, []byte("hello"), mediator.PostOptions{})
package runtime
