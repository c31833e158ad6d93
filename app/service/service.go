// Package service provides the record service: intake validation on top of the application store
// and delivery of new applications to the notifier.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/go-playground/validator/v10"

	"github.com/reevolve/reevolve/app/service/request"
	"github.com/reevolve/reevolve/app/web/persistence"
)

//go:generate mockery --name Store --output mocks --outpkg mocks --with-expecter=false
//go:generate mockery --name Notifier --output mocks --outpkg mocks --with-expecter=false

// ErrValidation is the sentinel wrapped by ValidationError
var ErrValidation = errors.New("validation failed")

// ValidationError lists required intake fields that are missing or empty
type ValidationError struct {
	Fields []string // json names of missing fields, in form order
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Unwrap allows errors.Is(err, ErrValidation)
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Store defines persistence operations used by the service
type Store interface {
	Insert(ctx context.Context, rec persistence.Record) (persistence.Record, error)
	Get(ctx context.Context, id int64) (persistence.Record, error)
	List(ctx context.Context) ([]persistence.Record, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
	Aggregate(ctx context.Context, now time.Time) (persistence.Stats, error)
}

// Notifier delivers information about a new application
type Notifier interface {
	NotifyApplication(ctx context.Context, rec persistence.Record) error
}

// Records is the application-facing API over the store
type Records struct {
	store         Store
	notifier      Notifier
	notifyTimeout time.Duration
	now           func() time.Time
	validate      *validator.Validate
	notifyGroup   *syncs.SizedGroup
}

// Params for New
type Params struct {
	Store         Store
	Notifier      Notifier         // optional, nil disables notifications
	NotifyTimeout time.Duration    // per-notification timeout, defaults to 30s
	Concurrency   int              // max parallel notifications, defaults to 4
	Now           func() time.Time // clock, defaults to time.Now
}

// New makes a record service
func New(p Params) *Records {
	res := &Records{
		store:         p.Store,
		notifier:      p.Notifier,
		notifyTimeout: p.NotifyTimeout,
		now:           p.Now,
		validate:      validator.New(),
	}
	if res.now == nil {
		res.now = time.Now
	}
	if res.notifyTimeout <= 0 {
		res.notifyTimeout = 30 * time.Second
	}
	concur := p.Concurrency
	if concur <= 0 {
		concur = 4
	}
	res.notifyGroup = syncs.NewSizedGroup(concur)

	// report json names of failed fields
	res.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return res
}

// Submit validates the intake form and stores a new record stamped with the current time.
// Returns *ValidationError if any required field is empty, nothing is stored in this case.
func (s *Records) Submit(ctx context.Context, req request.Submit) (persistence.Record, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return persistence.Record{}, fmt.Errorf("failed to validate submission: %w", err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return persistence.Record{}, &ValidationError{Fields: fields}
	}

	rec, err := s.store.Insert(ctx, persistence.Record{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		FitnessLevel: req.FitnessLevel,
		PrimaryGoal:  req.PrimaryGoal,
		WhyCoaching:  req.WhyCoaching,
		Timestamp:    s.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return persistence.Record{}, fmt.Errorf("failed to store application: %w", err)
	}
	log.Printf("[INFO] application %d stored, goal %q, level %q", rec.ID, rec.PrimaryGoal, rec.FitnessLevel)

	s.notify(rec)
	return rec, nil
}

// List returns all records, newest first
func (s *Records) List(ctx context.Context) ([]persistence.Record, error) {
	return s.store.List(ctx)
}

// Get returns a single record, persistence.ErrNotFound if missing
func (s *Records) Get(ctx context.Context, id int64) (persistence.Record, error) {
	return s.store.Get(ctx, id)
}

// Remove deletes a single record, persistence.ErrNotFound if missing
func (s *Records) Remove(ctx context.Context, id int64) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	log.Printf("[INFO] application %d deleted", id)
	return nil
}

// RemoveAll deletes all records and returns how many were removed
func (s *Records) RemoveAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] all applications deleted, %d removed", n)
	return n, nil
}

// Stats returns aggregated counters for the current time
func (s *Records) Stats(ctx context.Context) (persistence.Stats, error) {
	return s.store.Aggregate(ctx, s.now())
}

// Close waits for in-flight notifications
func (s *Records) Close() {
	s.notifyGroup.Wait()
}

// notify sends the record to notifier in background, errors are logged only
func (s *Records) notify(rec persistence.Record) {
	if s.notifier == nil {
		return
	}
	s.notifyGroup.Go(func(ctx context.Context) {
		ctxTimeout, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyApplication(ctxTimeout, rec); err != nil {
			log.Printf("[WARN] failed to notify about application %d, %v", rec.ID, err)
		}
	})
}
