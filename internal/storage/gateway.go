package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// Backend serves one LocationKind.
type Backend interface {
	Read(ctx context.Context, loc Location) ([]byte, error)
	Write(ctx context.Context, loc Location, content []byte) error
	Exists(ctx context.Context, loc Location) (bool, error)
	Delete(ctx context.Context, loc Location) error
}

// Backends groups the implementation for each location kind.
type Backends struct {
	Local  Backend
	HTTP   Backend
	Object Backend
}

// Gateway implements crawler.Gateway by parsing each path once and
// dispatching to the matching Backend. It keeps no per-call state and is safe
// for concurrent use.
type Gateway struct {
	backends map[LocationKind]Backend
	logger   *zap.Logger
}

var _ crawler.Gateway = (*Gateway)(nil)

// NewGateway builds a Gateway. A nil backend makes its kind unsupported.
func NewGateway(b Backends, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	backends := make(map[LocationKind]Backend, 3)
	if b.Local != nil {
		backends[LocationLocal] = b.Local
	}
	if b.HTTP != nil {
		backends[LocationHTTP] = b.HTTP
	}
	if b.Object != nil {
		backends[LocationObject] = b.Object
	}
	return &Gateway{backends: backends, logger: logger}
}

func (g *Gateway) resolve(op, path string) (Location, Backend, error) {
	loc, err := ParseLocation(path)
	if err != nil {
		return Location{}, nil, crawler.NewError(crawler.KindConfig, op, path, err)
	}
	backend, ok := g.backends[loc.Kind]
	if !ok {
		return Location{}, nil, crawler.NewError(crawler.KindUnsupported, op, path,
			fmt.Errorf("no %s backend configured", loc.Kind))
	}
	return loc, backend, nil
}

// Read returns the (extracted) content at path.
func (g *Gateway) Read(ctx context.Context, path string) ([]byte, error) {
	loc, backend, err := g.resolve("read", path)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("reading file", zap.String("path", path), zap.Stringer("kind", loc.Kind))
	content, err := backend.Read(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return content, nil
}

// Write stores content at path.
func (g *Gateway) Write(ctx context.Context, content []byte, path string) error {
	loc, backend, err := g.resolve("write", path)
	if err != nil {
		return err
	}
	g.logger.Debug("writing file",
		zap.String("path", path),
		zap.Stringer("kind", loc.Kind),
		zap.Int("bytes", len(content)),
	)
	if err := backend.Write(ctx, loc, content); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists.
func (g *Gateway) Exists(ctx context.Context, path string) (bool, error) {
	loc, backend, err := g.resolve("exists", path)
	if err != nil {
		return false, err
	}
	ok, err := backend.Exists(ctx, loc)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return ok, nil
}

// Delete removes path.
func (g *Gateway) Delete(ctx context.Context, path string) error {
	loc, backend, err := g.resolve("delete", path)
	if err != nil {
		return err
	}
	g.logger.Debug("deleting file", zap.String("path", path))
	if err := backend.Delete(ctx, loc); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
