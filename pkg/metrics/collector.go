package metrics

import (
	"time"
)

// Source is the view of the engine the collector polls. pkg/engine's
// Context implements it; kept as an interface here so the collector has
// no dependency back into the engine.
type Source interface {
	// EditorsCached reports how many editors the context cache holds.
	EditorsCached() int
	// Subscribers reports the total subscriber count across all cached
	// editors.
	Subscribers() int
}

// Collector periodically samples gauge-shaped state from the engine.
// Counter- and histogram-shaped metrics are recorded at the call sites
// in pkg/editor and pkg/engine; only values that have to be observed
// (rather than counted) go through here.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	EditorsCached.Set(float64(c.source.EditorsCached()))
	BroadcastSubscribers.Set(float64(c.source.Subscribers()))
}
