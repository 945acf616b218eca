package chem

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"chemrpc/catalog"
	"chemrpc/message"
)

// Service implements the documented methods on top of a catalog. Register it with
// server.Register; the exported method names map onto the wire names.
type Service struct {
	catalog  catalog.Catalog
	testing  bool
	onKill   func()
	killOnce sync.Once
	logger   *zap.Logger
}

type ServiceOption func(*Service)

// WithTesting enables the kill method.
func WithTesting(enabled bool) ServiceOption {
	return func(s *Service) { s.testing = enabled }
}

// WithKillFunc sets what an accepted kill does. It runs at most once, on its own goroutine.
func WithKillFunc(fn func()) ServiceOption {
	return func(s *Service) { s.onKill = fn }
}

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(cat catalog.Catalog, opts ...ServiceOption) *Service {
	s := &Service{catalog: cat, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ConvertMoleculeIdentifier(ctx context.Context, p *ConvertParams, reply *string) error {
	if p.Identifier == "" || p.InputFormat == "" || p.OutputFormat == "" {
		return message.ErrInvalidParams("identifier, inputFormat and outputFormat are required")
	}
	mol, err := s.catalog.Lookup(ctx, p.Identifier, p.InputFormat)
	if err != nil {
		return lookupError(err)
	}
	out, err := mol.Identifier(p.OutputFormat)
	if err != nil {
		return message.ErrInvalidParams(err.Error())
	}
	*reply = out
	return nil
}

//nolint:revive // the wire name is getChemicalJson
func (s *Service) GetChemicalJson(ctx context.Context, p *ChemicalJSONParams, reply *string) error {
	if p.InChI == "" {
		return message.ErrInvalidParams("inchi is required")
	}
	mol, err := s.catalog.ByInChI(ctx, p.InChI)
	if err != nil {
		return lookupError(err)
	}
	*reply = mol.Name
	return nil
}

// Kill stops the service when it runs in testing mode and is ignored otherwise.
// A caller that sent it with an id gets true (accepted) or false (ignored).
func (s *Service) Kill(ctx context.Context, p *KillParams, reply *bool) error {
	if !s.testing {
		s.logger.Warn("ignoring kill command, start with --testing to enable")
		*reply = false
		return nil
	}
	s.logger.Info("kill accepted, shutting down")
	*reply = true
	s.killOnce.Do(func() {
		if s.onKill != nil {
			go s.onKill()
		}
	})
	return nil
}

func lookupError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return message.ErrInvalidIdentifier()
	case errors.Is(err, catalog.ErrUnknownFormat):
		return message.ErrInvalidParams(err.Error())
	default:
		return message.ErrInternal(err.Error())
	}
}
