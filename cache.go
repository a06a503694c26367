package aqmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/singleflight"
	"github.com/sirupsen/logrus"
)

// DataCache loads datasets on demand and keeps them in memory.
// Repeated requests for the same pollutant and year return the same
// *GridDataSet. It is safe for concurrent use.
type DataCache struct {
	src Source

	// Log receives information about dataset loads.
	Log logrus.FieldLogger

	mu       sync.RWMutex
	datasets map[DatasetKey]*GridDataSet

	loads singleflight.Group
}

// NewDataCache creates a cache that reads datasets from src.
func NewDataCache(src Source) *DataCache {
	return &DataCache{
		src:      src,
		Log:      logrus.StandardLogger(),
		datasets: make(map[DatasetKey]*GridDataSet),
	}
}

// Get returns the dataset for the given pollutant and year, loading it
// if it is not already cached. Concurrent misses for the same key
// share a single load. A miss with a done ctx returns ctx.Err() without
// loading; a load that has started runs to completion.
func (c *DataCache) Get(ctx context.Context, pollutant string, year int) (*GridDataSet, error) {
	key := DatasetKey{Pollutant: pollutant, Year: year}
	c.mu.RLock()
	ds, ok := c.datasets[key]
	c.mu.RUnlock()
	if ok {
		return ds, nil
	}

	dsI, err := c.loads.Do(key.Key(), func() (interface{}, error) {
		// Another load may have finished between the read above and now.
		c.mu.RLock()
		ds, ok := c.datasets[key]
		c.mu.RUnlock()
		if ok {
			return ds, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := c.load(key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.datasets[key] = ds
		c.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return dsI.(*GridDataSet), nil
}

func (c *DataCache) load(key DatasetKey) (*GridDataSet, error) {
	start := time.Now()
	r, err := c.src.Open(key.Pollutant, key.Year)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	ds, stats, err := ReadGrid(r, key.Pollutant, key.Year)
	if err != nil {
		return nil, err
	}
	log := c.Log.WithFields(logrus.Fields{
		"pollutant": key.Pollutant,
		"year":      key.Year,
	})
	if stats.Substituted > 0 || stats.Unlocated > 0 {
		log.Warnf("replaced %d unreadable fields; dropped %d rows without a position", stats.Substituted, stats.Unlocated)
	}
	log.Infof("loaded %d cells from %d rows in %v", ds.Len(), stats.Rows, time.Since(start))
	return ds, nil
}

// Len returns the number of cached datasets.
func (c *DataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.datasets)
}

// PendingDataSet is a dataset that is being loaded in the background.
type PendingDataSet struct {
	done chan struct{}
	ds   *GridDataSet
	err  error
}

// GetAsync starts loading the dataset for the given pollutant and year
// and returns without waiting for it.
func (c *DataCache) GetAsync(ctx context.Context, pollutant string, year int) *PendingDataSet {
	p := &PendingDataSet{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.ds, p.err = c.Get(ctx, pollutant, year)
	}()
	return p
}

// Done returns a channel that is closed when the load has finished.
func (p *PendingDataSet) Done() <-chan struct{} { return p.done }

// Wait blocks until the load has finished and returns its result.
func (p *PendingDataSet) Wait() (*GridDataSet, error) {
	<-p.done
	if p.err != nil {
		return nil, fmt.Errorf("aqmap: loading dataset: %w", p.err)
	}
	return p.ds, nil
}
