package rpc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/jobcluster/internal/log"
)

// Service is the process-local endpoint registry.
type Service struct {
	fatal  FailureHandler
	logger *slog.Logger

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	closed    bool
}

// NewService creates a registry. fatal may be nil.
func NewService(fatal FailureHandler) *Service {
	return &Service{
		fatal:     fatal,
		logger:    log.WithComponent("rpc"),
		endpoints: make(map[string]*Endpoint),
	}
}

// Register creates an endpoint for h. The endpoint does not process messages
// until it is started.
func (s *Service) Register(name string, h Handler) (*Endpoint, error) {
	if name == "" {
		return nil, fmt.Errorf("endpoint name is empty")
	}
	if h == nil {
		return nil, fmt.Errorf("endpoint %s: handler is nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrEndpointStopped
	}
	if _, ok := s.endpoints[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEndpointExists, name)
	}
	ep := newEndpoint(name, h, s.fatal, s.logger)
	s.endpoints[name] = ep
	s.logger.Debug("endpoint registered", "endpoint", name)
	return ep, nil
}

// Lookup returns the endpoint registered under name.
func (s *Service) Lookup(name string) (*Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[name]
	return ep, ok
}

// Unregister stops and removes an endpoint.
func (s *Service) Unregister(name string) {
	s.mu.Lock()
	ep, ok := s.endpoints[name]
	delete(s.endpoints, name)
	s.mu.Unlock()
	if ok {
		ep.Stop()
	}
}

// Close stops every endpoint. Register fails afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	eps := make([]*Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		eps = append(eps, ep)
	}
	s.endpoints = map[string]*Endpoint{}
	s.closed = true
	s.mu.Unlock()

	for _, ep := range eps {
		ep.Stop()
	}
	return nil
}
