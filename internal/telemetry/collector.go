// Package telemetry fans execution events out to pluggable backends.
// Delivery is best-effort per backend: one backend failing or panicking
// never affects the others or the caller.
package telemetry

import (
	"fmt"
	"log"
	"sync"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// Backend is an independently-failing sink for telemetry events.
type Backend interface {
	Name() string
	Record(event domain.TelemetryEvent) error
	Flush() error
}

// Collector records events to every registered backend.
type Collector struct {
	backends []Backend
}

// NewCollector creates a collector over the given backends.
func NewCollector(backends ...Backend) *Collector {
	return &Collector{backends: backends}
}

// Record fans the event out to every backend concurrently. Errors are
// logged and swallowed.
func (c *Collector) Record(event domain.TelemetryEvent) {
	var wg sync.WaitGroup
	for _, b := range c.backends {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()
			if err := safeRecord(b, event); err != nil {
				log.Printf("WARN: telemetry backend %s failed: %v", b.Name(), err)
			}
		}(b)
	}
	wg.Wait()
}

// Flush drains every backend, logging failures.
func (c *Collector) Flush() {
	for _, b := range c.backends {
		if err := b.Flush(); err != nil {
			log.Printf("WARN: telemetry backend %s flush failed: %v", b.Name(), err)
		}
	}
}

func safeRecord(b Backend, event domain.TelemetryEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.Record(event)
}
