package datasource

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DataGrabber fetches a raw series and knows where it lands on disk.
type DataGrabber interface {
	Name() string
	// GrabData downloads the series and persists it as a dataset file.
	GrabData(ctx context.Context) error
	// DatasetFileName resolves the file name for a dataset date. An empty
	// date means the most recently grabbed dataset.
	DatasetFileName(datasetDate string) string
}

// Options configures a grabber. Zero values fall back to defaults.
type Options struct {
	Dir      string
	URL      string
	Location string
	Client   *http.Client
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = DefaultDir
	}
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Location == "" {
		o.Location = DefaultLocation
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Registry maps each Source to the grabber serving it.
type Registry struct {
	grabbers map[Source]DataGrabber
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		grabbers: make(map[Source]DataGrabber),
	}
}

// NewDefaultRegistry registers an OWID grabber for every known source.
// overrides replaces the options of individual sources.
func NewDefaultRegistry(base Options, overrides map[Source]Options) *Registry {
	r := NewRegistry()
	for _, source := range Sources() {
		opts := base
		if o, ok := overrides[source]; ok {
			if o.URL != "" {
				opts.URL = o.URL
			}
			if o.Location != "" {
				opts.Location = o.Location
			}
		}
		r.Register(source, NewOWIDGrabber(source, opts))
	}
	return r
}

// Register adds or replaces the grabber for a source.
func (r *Registry) Register(source Source, grabber DataGrabber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grabbers[source] = grabber
}

// Grabber returns the grabber registered for source.
func (r *Registry) Grabber(source Source) (DataGrabber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grabber, ok := r.grabbers[source]
	if !ok {
		return nil, ErrGrabberNotFound
	}
	return grabber, nil
}

// Sources returns the registered sources in ascending order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.grabbers))
	for source := range r.grabbers {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}

var (
	ErrGrabberNotFound = &GrabberError{Code: "grabber_not_found", Message: "data grabber not found"}
	ErrUnknownSource   = &GrabberError{Code: "unknown_source", Message: "unknown data source"}
)

// GrabberError is returned for registry lookups that cannot be served.
type GrabberError struct {
	Code    string
	Message string
}

func (e *GrabberError) Error() string {
	return e.Message
}
