/*
Package tether keeps a build tool and the processes that serve its output in
agreement about where each asset lives.

A producer (the build tool integration) publishes a config record: a small
JSON document next to the project describing the build output, its public
path, and the mapping from logical asset keys to hashed file names. Consumers
(servers rendering pages) load that record, install the mapping, and follow
it as the producer rebuilds.

# Producing

	store := tether.NewStore(filepath.Join(root, tether.CurrentConfigFile()))
	p := tether.NewProducer(store, tether.BuildOptions{
	    OutputPath: "dist",
	    PublicPath: "/assets/",
	    Dev:        &tether.DevServer{Enabled: true},
	})
	p.Start(ctx)

	p.BuildStarted(ctx)            // announce a build in progress
	p.BuildDone(ctx, assets, nil)  // publish the finished mapping

Dev records are written through a debounced Writer so a burst of rebuilds
produces one write per validity. One-shot builds write the record once, with
the mapping split into a sibling assets file.

# Consuming

	c := tether.NewConsumer(store)
	if err := c.LoadAssets(ctx); err != nil {
	    return err
	}
	defer c.Deactivate()

	asset, ok := c.Resolve("./img/logo.png", "src/components/header.js")

LoadAssets waits for the record to appear and become valid, bounded by the
startup timeout, then watches the file and reloads after each change. A record
is adopted only when its timestamp is newer than the installed one, so
repeated or reordered notifications never move the mapping backwards. While
a rebuild is in progress the previous mapping stays installed.

# Locking

Readers and writers of the record coordinate through an advisory lock marker
(see package lock) so a reader never observes a half written file.

# Event channel

A producer that spawns its consumer can push records over an inherited pipe
instead of the file (see SpawnWithChannel and InheritedChannel). The channel
is disabled in production unless TETHER_FORCE_CHANNEL is set.

# Observability

State transitions and record events are emitted as capitan signals (see
signals.go). A MetricsProvider receives the same lifecycle as callbacks; the
prom package exports them to Prometheus.
*/
package tether
