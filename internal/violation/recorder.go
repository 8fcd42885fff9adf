package violation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/tracemon/internal/ir"
)

// Store persists violations and their reviews.
// ReadViolation returns sql.ErrNoRows when the id is unknown.
type Store interface {
	WriteViolation(ctx context.Context, v ir.Violation) (created bool, err error)
	ReadViolation(ctx context.Context, id string) (ir.Violation, error)
	WriteReview(ctx context.Context, a ir.Audit) error
}

// Sink exports newly recorded violations to an external system.
type Sink interface {
	Name() string
	Export(ctx context.Context, v ir.Violation) error
}

// Recorder records violations once and fans them out to sinks.
type Recorder struct {
	store  Store
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSinks adds export sinks. Sink failures are logged, not returned.
func WithSinks(sinks ...Sink) Option {
	return func(r *Recorder) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithNow sets the clock used for audit timestamps.
func WithNow(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithIDs sets the audit id generator. The default generates UUIDv7s.
func WithIDs(newID func() string) Option {
	return func(r *Recorder) {
		r.newID = newID
	}
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists v. created is false when a violation with the same id
// already exists; sinks only see newly created violations.
func (r *Recorder) Record(ctx context.Context, v ir.Violation) (bool, error) {
	created, err := r.store.WriteViolation(ctx, v)
	if err != nil {
		return false, fmt.Errorf("record violation %s: %w", v.ID, err)
	}
	if !created {
		r.logger.Debug("violation already recorded",
			zap.String("violation", v.ID),
			zap.String("monitor", v.MonitorID))
		return false, nil
	}

	for _, s := range r.sinks {
		if err := s.Export(ctx, v); err != nil {
			r.logger.Warn("violation export failed",
				zap.String("sink", s.Name()),
				zap.String("violation", v.ID),
				zap.Error(err))
		}
	}
	return true, nil
}

// Audit reviews a violation of monitorID: it moves the status along the
// review lifecycle, stores the reviewer comment and appends an audit row.
func (r *Recorder) Audit(ctx context.Context, monitorID, violationID, comment string, verdict ir.ReviewStatus) (ir.Audit, error) {
	v, err := r.store.ReadViolation(ctx, violationID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Audit{}, fmt.Errorf("%w: %s", ErrUnknownViolation, violationID)
	}
	if err != nil {
		return ir.Audit{}, fmt.Errorf("audit %s: %w", violationID, err)
	}
	if v.MonitorID != monitorID {
		return ir.Audit{}, fmt.Errorf("%w: %s does not belong to monitor %s", ErrUnknownViolation, violationID, monitorID)
	}

	status, err := Transition(ctx, v.Status, verdict)
	if err != nil {
		return ir.Audit{}, err
	}

	a := ir.Audit{
		ID:          r.newID(),
		ViolationID: v.ID,
		MonitorID:   monitorID,
		Status:      status,
		Comment:     comment,
		CreatedAt:   r.now().UnixNano(),
	}
	if err := r.store.WriteReview(ctx, a); err != nil {
		return ir.Audit{}, fmt.Errorf("audit %s: %w", violationID, err)
	}
	r.logger.Info("violation reviewed",
		zap.String("violation", v.ID),
		zap.String("monitor", monitorID),
		zap.String("status", string(status)))
	return a, nil
}
