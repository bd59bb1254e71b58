package services

import (
	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/events"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// Registry provides access to the pipeline components.
type Registry interface {
	Coordinator() *coordinator.Coordinator
	Scraper() pipeline.Scraper
	Normalizer() pipeline.Normalizer
	Writer() *delivery.FileWriter
	Publisher() events.Publisher
}

// Options configures the registry with component instances. Scraper,
// Normalizer and Writer may be nil to disable that stage.
type Options struct {
	Coordinator *coordinator.Coordinator
	Scraper     pipeline.Scraper
	Normalizer  pipeline.Normalizer
	Writer      *delivery.FileWriter
	Publisher   events.Publisher
}

type registry struct {
	coordinator *coordinator.Coordinator
	scraper     pipeline.Scraper
	normalizer  pipeline.Normalizer
	writer      *delivery.FileWriter
	publisher   events.Publisher
}

// NewRegistry creates a registry. A nil publisher becomes a NopPublisher.
func NewRegistry(opts Options) Registry {
	pub := opts.Publisher
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &registry{
		coordinator: opts.Coordinator,
		scraper:     opts.Scraper,
		normalizer:  opts.Normalizer,
		writer:      opts.Writer,
		publisher:   pub,
	}
}

func (r *registry) Coordinator() *coordinator.Coordinator { return r.coordinator }
func (r *registry) Scraper() pipeline.Scraper             { return r.scraper }
func (r *registry) Normalizer() pipeline.Normalizer       { return r.normalizer }
func (r *registry) Writer() *delivery.FileWriter          { return r.writer }
func (r *registry) Publisher() events.Publisher           { return r.publisher }
