package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/billed/internal/application/newbill"
	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
)

// ErrFormNotFound is returned for unknown, expired or foreign forms
var ErrFormNotFound = errors.New("form not found")

// billForm is one open new-bill form
type billForm struct {
	id        string
	owner     string
	page      *formPage
	container *newbill.Container
	lastSeen  time.Time
}

// FormRegistry keeps open new-bill forms between requests.
// Forms idle for longer than the TTL are dropped.
type FormRegistry struct {
	mu     sync.Mutex
	forms  map[string]*billForm
	ttl    time.Duration
	now    func() time.Time
	gauge  func(open int)
	logger Logger
}

// FormOption configures a FormRegistry
type FormOption func(*FormRegistry)

// WithOpenFormsGauge reports the number of open forms after every change
func WithOpenFormsGauge(gauge func(open int)) FormOption {
	return func(r *FormRegistry) {
		r.gauge = gauge
	}
}

// NewFormRegistry creates an empty registry
func NewFormRegistry(ttl time.Duration, logger Logger, opts ...FormOption) *FormRegistry {
	r := &FormRegistry{
		forms:  make(map[string]*billForm),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// open creates a form owned by session. client may be nil.
func (r *FormRegistry) open(session *entity.Session, client port.BillsClient) *billForm {
	page := &formPage{}
	f := &billForm{
		id:        uuid.New().String(),
		owner:     session.UserEmail(),
		page:      page,
		container: newbill.New(client, page, page, session, r.logger),
	}

	r.mu.Lock()
	f.lastSeen = r.now()
	r.forms[f.id] = f
	open := len(r.forms)
	r.mu.Unlock()

	r.report(open)
	r.logger.Info("New bill form opened", "form_id", f.id, "email", f.owner)
	return f
}

// get returns the form id when session owns it, and marks it as used
func (r *FormRegistry) get(id string, session *entity.Session) (*billForm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.forms[id]
	if !ok || r.expired(f) || f.owner != session.UserEmail() {
		return nil, ErrFormNotFound
	}
	f.lastSeen = r.now()
	return f, nil
}

// remove drops a form
func (r *FormRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.forms, id)
	open := len(r.forms)
	r.mu.Unlock()

	r.report(open)
}

// Len returns the number of open forms, expired ones included until the next sweep
func (r *FormRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

// Sweep drops expired forms and returns how many were dropped
func (r *FormRegistry) Sweep() int {
	r.mu.Lock()
	removed := 0
	for id, f := range r.forms {
		if r.expired(f) {
			delete(r.forms, id)
			removed++
		}
	}
	open := len(r.forms)
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("Expired new bill forms dropped", "count", removed, "open", open)
		r.report(open)
	}
	return removed
}

// Run sweeps every interval until ctx is done
func (r *FormRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *FormRegistry) expired(f *billForm) bool {
	return r.now().Sub(f.lastSeen) > r.ttl
}

func (r *FormRegistry) report(open int) {
	if r.gauge != nil {
		r.gauge(open)
	}
}
