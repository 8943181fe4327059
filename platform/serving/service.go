// Package serving hosts inference endpoints. Each endpoint serves a model
// artifact over real HTTP on a loopback listener, speaking the built-in
// container invocation contract: POST /invocations with a text/csv body,
// GET /ping for health.
package serving

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
	"github.com/skiffml/skiff/platform/registry"
	"github.com/skiffml/skiff/platform/store"
)

// EndpointStatus is the lifecycle state of a hosted endpoint.
type EndpointStatus string

const (
	StatusCreating  EndpointStatus = "Creating"
	StatusInService EndpointStatus = "InService"
	StatusFailed    EndpointStatus = "Failed"
)

// EndpointConfig names the model an endpoint serves.
type EndpointConfig struct {
	ImageURI         string
	ModelArtifactKey string
}

// EndpointDescription is the observable state of an endpoint.
type EndpointDescription struct {
	Name          string
	Status        EndpointStatus
	ImageURI      string
	ArtifactKey   string
	URL           string
	FailureReason string
	CreatedAt     time.Time
}

// predictorCacheSize bounds how many deserialized models stay resident
// across endpoints serving the same artifact.
const predictorCacheSize = 16

// Service manages hosted endpoints.
type Service struct {
	blobs  blob.Store
	meta   *store.Metadata
	logger log.Logger

	predictors *lru.Cache // artifact key -> registry.Predictor

	mu      sync.Mutex
	servers map[string]*endpointServer
}

type endpointServer struct {
	server   *http.Server
	listener net.Listener
	url      string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a serving service over the given blob store and
// metadata store.
func NewService(blobs blob.Store, meta *store.Metadata, opts ...Option) (*Service, error) {
	cache, err := lru.New(predictorCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating predictor cache")
	}
	s := &Service{
		blobs:      blobs,
		meta:       meta,
		logger:     log.GetLoggerWithName("platform.serving"),
		predictors: cache,
		servers:    make(map[string]*endpointServer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateEndpoint loads the model artifact, starts a loopback HTTP server
// for it and transitions the endpoint Creating -> InService. Failures leave
// the endpoint in Failed with a reason.
func (s *Service) CreateEndpoint(ctx context.Context, name string, cfg EndpointConfig) (*EndpointDescription, error) {
	rec := &store.EndpointRecord{
		Name:        name,
		Status:      string(StatusCreating),
		ImageURI:    cfg.ImageURI,
		ArtifactKey: cfg.ModelArtifactKey,
		CreatedAt:   time.Now(),
	}
	if err := s.meta.CreateEndpoint(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("Endpoint creating",
		log.EndpointNameKey, name,
		log.StorageKeyKey, cfg.ModelArtifactKey)

	predictor, err := s.loadPredictor(ctx, cfg)
	if err != nil {
		return nil, s.failEndpoint(ctx, rec, err)
	}

	es, err := s.serve(name, predictor)
	if err != nil {
		return nil, s.failEndpoint(ctx, rec, err)
	}

	rec.Status = string(StatusInService)
	rec.URL = es.url
	if err := s.meta.UpdateEndpoint(ctx, rec); err != nil {
		es.close()
		return nil, err
	}

	s.mu.Lock()
	s.servers[name] = es
	s.mu.Unlock()

	s.logger.Info("Endpoint in service",
		log.EndpointNameKey, name, "url", es.url)
	return describeEndpointRecord(rec), nil
}

func (s *Service) failEndpoint(ctx context.Context, rec *store.EndpointRecord, cause error) error {
	rec.Status = string(StatusFailed)
	rec.FailureReason = cause.Error()
	if err := s.meta.UpdateEndpoint(ctx, rec); err != nil {
		s.logger.Error("Recording endpoint failure failed",
			log.EndpointNameKey, rec.Name, log.ErrAttrKey, err)
	}
	s.logger.Error("Endpoint creation failed",
		log.EndpointNameKey, rec.Name, log.ErrAttrKey, cause)
	return cause
}

// loadPredictor resolves the artifact to a predictor, reusing cached
// instances of the same artifact.
func (s *Service) loadPredictor(ctx context.Context, cfg EndpointConfig) (registry.Predictor, error) {
	if cached, ok := s.predictors.Get(cfg.ModelArtifactKey); ok {
		return cached.(registry.Predictor), nil
	}

	container, err := registry.Resolve(cfg.ImageURI)
	if err != nil {
		return nil, err
	}
	artifact, err := blob.GetBytes(ctx, s.blobs, cfg.ModelArtifactKey)
	if err != nil {
		return nil, err
	}
	predictor, err := container.LoadPredictor(artifact)
	if err != nil {
		return nil, errors.Wrapf(err, "loading artifact %q", cfg.ModelArtifactKey)
	}
	s.predictors.Add(cfg.ModelArtifactKey, predictor)
	return predictor, nil
}

func (s *Service) serve(name string, predictor registry.Predictor) (*endpointServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrapf(err, "binding listener for endpoint %q", name)
	}

	handler := newInvocationHandler(predictor, s.logger.With(log.EndpointNameKey, name))
	es := &endpointServer{
		server:   &http.Server{Handler: handler},
		listener: listener,
		url:      fmt.Sprintf("http://%s", listener.Addr()),
	}
	go func() {
		if err := es.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Endpoint server exited",
				log.EndpointNameKey, name, log.ErrAttrKey, err)
		}
	}()
	return es, nil
}

func (es *endpointServer) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	es.server.Shutdown(ctx)
}

// DescribeEndpoint returns the current state of an endpoint.
func (s *Service) DescribeEndpoint(ctx context.Context, name string) (*EndpointDescription, error) {
	rec, err := s.meta.GetEndpoint(ctx, name)
	if err != nil {
		return nil, err
	}
	return describeEndpointRecord(rec), nil
}

// DeleteEndpoint shuts the endpoint's server down and removes its record.
// Deleting an unknown (or already deleted) endpoint yields a NotFoundError.
func (s *Service) DeleteEndpoint(ctx context.Context, name string) error {
	if err := s.meta.DeleteEndpoint(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	es, ok := s.servers[name]
	delete(s.servers, name)
	s.mu.Unlock()
	if ok {
		es.close()
	}

	s.logger.Info("Endpoint deleted", log.EndpointNameKey, name)
	return nil
}

// Shutdown stops all endpoint servers. Endpoint records are kept; a future
// process can recreate the servers from them.
func (s *Service) Shutdown() {
	s.mu.Lock()
	servers := s.servers
	s.servers = make(map[string]*endpointServer)
	s.mu.Unlock()

	for _, es := range servers {
		es.close()
	}
}

func describeEndpointRecord(rec *store.EndpointRecord) *EndpointDescription {
	return &EndpointDescription{
		Name:          rec.Name,
		Status:        EndpointStatus(rec.Status),
		ImageURI:      rec.ImageURI,
		ArtifactKey:   rec.ArtifactKey,
		URL:           rec.URL,
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.CreatedAt,
	}
}
