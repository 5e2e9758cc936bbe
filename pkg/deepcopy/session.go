package deepcopy

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

const tracerName = "github.com/mesh-intelligence/recopy/pkg/deepcopy"

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records copies and writes in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTracer sets the tracer used for Copy spans. The default comes from
// the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Session copies a source record and its related records into destination
// models, and remembers what it wrote so that copying the same source again
// updates the same destination records. A Session is not safe for
// concurrent use.
type Session struct {
	id      string
	store   types.Store
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer

	src    *types.Record
	dst    *types.Model
	paths  []string
	root   *FieldMap
	byDest map[string]*FieldMap

	srcErr error
	dstErr error

	lastID     int64
	identities map[string]int64
}

// NewSession returns an empty session that reads and writes through store.
func NewSession(store types.Store, opts ...Option) *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	s := &Session{
		id:         id.String(),
		store:      store,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		root:       &FieldMap{},
		byDest:     make(map[string]*FieldMap),
		identities: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// LastID returns the ID of the root destination record written by the
// last successful Copy, or 0.
func (s *Session) LastID() int64 {
	return s.lastID
}

// Reset forgets every destination record the session has written.
// Configuration is kept.
func (s *Session) Reset() {
	s.lastID = 0
	clear(s.identities)
}

// From binds the source record. The record must have been loaded from a
// store; otherwise Copy fails with ErrInvalidState. Binding a record with
// a different model or ID resets the session.
func (s *Session) From(rec *types.Record) *Session {
	if rec == nil || !rec.Loaded() {
		s.srcErr = fmt.Errorf("%w: source record is not loaded", types.ErrInvalidState)
		return s
	}
	if s.src != nil && (s.src.Model.Name != rec.Model.Name || s.src.ID != rec.ID) {
		s.logger.Debug("source changed, resetting session",
			zap.String("model", rec.Model.Name), zap.Int64("id", rec.ID))
		s.Reset()
	}
	s.src = rec
	s.srcErr = nil
	return s
}

// To binds the destination model. Binding a different model resets the
// session.
func (s *Session) To(model *types.Model) *Session {
	if model == nil {
		s.dstErr = fmt.Errorf("%w: destination model is nil", types.ErrInvalidState)
		return s
	}
	if s.dst != nil && s.dst.Name != model.Name {
		s.Reset()
	}
	s.dst = model
	s.dstErr = nil
	return s
}

// With sets the relations to copy along with the root record, replacing
// any set before. Nested relations are named with dotted paths such as
// "Lines.Notes". Relations marked as cascading are always followed.
func (s *Session) With(paths ...string) *Session {
	s.paths = append([]string(nil), paths...)
	return s
}

// Set overrides a destination field of the root record.
func (s *Session) Set(field string, value any) *Session {
	s.root.Overrides = setEntry(s.root.Overrides, field, value)
	return s
}

// Alias copies the root record's srcField into destField.
func (s *Session) Alias(destField, srcField string) *Session {
	s.root.Aliases = setEntry(s.root.Aliases, destField, srcField)
	return s
}

// Transform rewrites the value copied into a destination field of the
// root record.
func (s *Session) Transform(destField string, fn TransformFunc) *Session {
	s.root.Transforms = setEntry(s.root.Transforms, destField, fn)
	return s
}

// Map sets the field mapping for every record copied into the named
// destination model. Root-level Set, Alias and Transform take precedence.
func (s *Session) Map(destModel string, fm FieldMap) *Session {
	s.byDest[destModel] = &fm
	return s
}

func setEntry[V any](m map[string]V, k string, v V) map[string]V {
	if m == nil {
		m = make(map[string]V)
	}
	m[k] = v
	return m
}

// Configure binds source, destination and relation paths, and checks the
// resulting plan without writing anything.
func (s *Session) Configure(src *types.Record, dst *types.Model, paths ...string) error {
	s.From(src).To(dst).With(paths...)
	if err := s.configErr(); err != nil {
		return err
	}
	_, err := buildPlan(s.src.Model, s.dst, s.paths, s.root, s.byDest)
	return err
}

func (s *Session) configErr() error {
	switch {
	case s.srcErr != nil:
		return s.srcErr
	case s.dstErr != nil:
		return s.dstErr
	case s.src == nil:
		return fmt.Errorf("%w: no source record", types.ErrInvalidState)
	case s.dst == nil:
		return fmt.Errorf("%w: no destination model", types.ErrInvalidState)
	}
	return nil
}

// Copy writes the destination graph for the bound source and returns the
// root destination record, loaded through the store so its computed and
// aggregate fields come from the destination model. All writes happen in
// one transaction when the store supports it. On error the session is
// left as it was before the call.
func (s *Session) Copy(ctx context.Context) (*types.Record, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "deepcopy.Session.Copy", trace.WithAttributes(
		attribute.String("recopy.session", s.id),
	))
	defer span.End()

	rec, err := s.copy(ctx, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.observeCopy("error", time.Since(start).Seconds())
		s.logger.Warn("copy failed", zap.Error(err))
		return nil, err
	}
	s.metrics.observeCopy("ok", time.Since(start).Seconds())
	return rec, nil
}

func (s *Session) copy(ctx context.Context, span trace.Span) (*types.Record, error) {
	if err := s.configErr(); err != nil {
		return nil, err
	}
	plan, err := buildPlan(s.src.Model, s.dst, s.paths, s.root, s.byDest)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("recopy.source.model", s.src.Model.Name),
		attribute.Int64("recopy.source.id", s.src.ID),
		attribute.String("recopy.destination.model", s.dst.Name),
		attribute.StringSlice("recopy.with", s.paths),
	)

	w := &walker{
		ids:     maps.Clone(s.identities),
		written: make(map[string]bool),
		logger:  s.logger,
	}
	var (
		out *types.Record
		id  int64
	)
	err = types.Atomically(ctx, s.store, func(st types.Store) error {
		w.st = st
		src, err := st.Load(ctx, s.src.Model, s.src.ID)
		if err != nil {
			return persistence("load", s.src.Model.Name, err)
		}
		if id, err = w.copyNode(ctx, plan, src, nil); err != nil {
			return err
		}
		if out, err = st.Load(ctx, s.dst, id); err != nil {
			return persistence("load", s.dst.Name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.identities = w.ids
	s.lastID = id
	s.metrics.observeWrites(w.writes)
	span.SetAttributes(attribute.Int64("recopy.destination.id", id), attribute.Int("recopy.writes", len(w.writes)))
	s.logger.Info("copy committed",
		zap.String("from", s.src.Model.Name),
		zap.Int64("from_id", s.src.ID),
		zap.String("to", s.dst.Name),
		zap.Int64("to_id", id),
		zap.Int("writes", len(w.writes)),
	)
	return out, nil
}
