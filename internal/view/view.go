// Package view implements the users collection view of a single page session.
//
// A View owns the users collection, its load status, the API health status,
// the create form draft and the last user notice. All of them are mutated on
// one owner goroutine; network calls run on the caller's goroutine and hand
// their results back to the owner. Renderers read immutable Snapshots, either
// by calling Snapshot or by subscribing to changes.
package view

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fullstack-poc/usersview/internal/apiclient"
	"github.com/fullstack-poc/usersview/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is used when Config.BaseURL is empty
const DefaultBaseURL = "http://localhost:3001"

// Config configures a View
type Config struct {
	// BaseURL of the users API, e.g. "http://localhost:3001"
	BaseURL string
}

// UsersAPI is the interface that wraps the users API calls of the view
type UsersAPI interface {
	// Method Health reads the API health status.
	Health(ctx context.Context) (*models.HealthStatus, error)
	// Method ListUsers reads the whole users collection.
	ListUsers(ctx context.Context) ([]models.UserRecord, error)
	// Method CreateUser creates a user and returns the record stored by the server.
	CreateUser(ctx context.Context, draft models.DraftUser) (*models.UserRecord, error)
}

// NoticeKind is the severity of a notice
type NoticeKind string

// NoticeKind constants
const (
	NoticeInfo  NoticeKind = "info"
	NoticeError NoticeKind = "error"
)

// Notice is a message addressed to the user
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Snapshot is an immutable copy of the view state
type Snapshot struct {
	Version    uint64               `json:"version"`
	Users      []models.UserRecord  `json:"users"`
	Status     models.LoadStatus    `json:"status"`
	Health     *models.HealthStatus `json:"health,omitempty"`
	Draft      models.DraftUser     `json:"draft"`
	Submitting bool                 `json:"submitting"`
	Notice     *Notice              `json:"notice,omitempty"`
	APIURL     string               `json:"apiUrl"`
}

// state is owned by the run goroutine
type state struct {
	version    uint64
	loadSeq    uint64
	users      []models.UserRecord
	status     models.LoadStatus
	health     *models.HealthStatus
	draft      models.DraftUser
	submitting bool
	notice     *Notice
}

type operation struct {
	fn   func(*state)
	done chan struct{}
}

// View is the remote users collection view
type View struct {
	api     UsersAPI
	logger  *zap.Logger
	apiURL  string
	ops     chan operation
	closed  chan struct{}
	current atomic.Pointer[Snapshot]

	closeOnce sync.Once

	// owned by the run goroutine
	st      state
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates a view for the users API at cfg.BaseURL and starts its owner goroutine.
// Close must be called to release it.
func New(cfg Config, logger *zap.Logger) *View {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := apiclient.New(baseURL, nil, logger)
	logger.Debug("creating users view", zap.String("api_base_url", client.BaseURL()))
	return newView(client, client.UsersURL(), logger)
}

func newView(api UsersAPI, apiURL string, logger *zap.Logger) *View {
	v := &View{
		api:    api,
		logger: logger,
		apiURL: apiURL,
		ops:    make(chan operation),
		closed: make(chan struct{}),
		st: state{
			users:  []models.UserRecord{},
			status: models.Loading(),
			draft:  models.NewDraftUser(),
		},
		subs: make(map[int]func(Snapshot)),
	}
	snap := v.st.snapshot(apiURL)
	v.current.Store(&snap)

	go v.run()
	return v
}

// Close stops the owner goroutine. Operations after Close return ErrClosed.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		close(v.closed)
	})
}

// Done returns a channel that is closed when the view is closed
func (v *View) Done() <-chan struct{} {
	return v.closed
}

// Snapshot returns the state as of the last completed operation
func (v *View) Snapshot() Snapshot {
	return *v.current.Load()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn is called once with the current snapshot right away.
//
// fn runs on the owner goroutine, so it must return quickly and must not call back into the View.
func (v *View) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	var id int
	err := v.apply(func(s *state) {
		id = v.nextSub
		v.nextSub++
		v.subs[id] = fn
		fn(s.snapshot(v.apiURL))
	}, false)
	if err != nil {
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = v.apply(func(*state) { delete(v.subs, id) }, false)
		})
	}
}

// Mount runs the health probe and the users load concurrently and waits for both.
// The returned error is the load error, which is also visible in the load status.
func (v *View) Mount(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		v.Probe(ctx)
		return nil
	})
	g.Go(func() error {
		return v.Load(ctx)
	})
	return g.Wait()
}

// Probe reads the API health status and stores it.
// A failed probe is logged and otherwise ignored; it returns nil in that case.
func (v *View) Probe(ctx context.Context) *models.HealthStatus {
	health, err := v.api.Health(ctx)
	if err != nil {
		v.logger.Warn("health probe failed", zap.Error(&ProbeError{Err: err}))
		return nil
	}

	if err := v.update(func(s *state) {
		h := *health
		s.health = &h
	}); err != nil {
		return nil
	}
	return health
}

// Load replaces the users collection with the API's current one.
//
// The load status is "loading" while the request is pending. On failure the status
// carries the error message and the collection keeps its previous content.
// Only the latest started load is applied; results of older overlapping loads are dropped.
func (v *View) Load(ctx context.Context) error {
	var seq uint64
	if err := v.update(func(s *state) {
		s.loadSeq++
		seq = s.loadSeq
		s.status = models.Loading()
	}); err != nil {
		return err
	}

	v.logger.Debug("fetching users", zap.String("url", v.apiURL), zap.Uint64("load", seq))

	users, err := v.api.ListUsers(ctx)
	if err != nil {
		loadErr := newLoadError(err)
		v.logger.Error("failed to fetch users", zap.Error(err))
		if err := v.update(func(s *state) {
			if s.loadSeq != seq {
				return
			}
			s.status = models.Failed(loadErr.Message)
		}); err != nil {
			return err
		}
		return loadErr
	}

	v.logger.Debug("fetched users", zap.Int("count", len(users)), zap.Uint64("load", seq))

	return v.update(func(s *state) {
		if s.loadSeq != seq {
			v.logger.Debug("dropping superseded users load", zap.Uint64("load", seq))
			return
		}
		s.users = slices.Clone(users)
		if s.users == nil {
			s.users = []models.UserRecord{}
		}
		s.status = models.Ready()
	})
}

// Reload retries the users load with the same semantics as Load
func (v *View) Reload(ctx context.Context) error {
	return v.Load(ctx)
}

// UpdateDraft replaces the form draft
func (v *View) UpdateDraft(draft models.DraftUser) error {
	return v.update(func(s *state) {
		s.draft = draft
	})
}

// Submit creates a user from the current draft
func (v *View) Submit(ctx context.Context) (models.UserRecord, error) {
	return v.Create(ctx, v.Snapshot().Draft)
}

// Create sends the draft to the API and appends the created record to the collection.
//
// A draft without name or email is rejected with a *ValidationError before any request is made.
// While another create is pending, ErrSubmissionInFlight is returned.
// A failed request returns a *CreateError and leaves the collection and the draft untouched.
// On success the draft is reset.
func (v *View) Create(ctx context.Context, draft models.DraftUser) (models.UserRecord, error) {
	if !draft.HasRequiredFields() {
		validationErr := &ValidationError{Fields: missingFields(draft)}
		if err := v.update(func(s *state) {
			s.notice = &Notice{Kind: NoticeError, Message: ValidationPrompt}
		}); err != nil {
			return models.UserRecord{}, err
		}
		return models.UserRecord{}, validationErr
	}

	var busy bool
	if err := v.update(func(s *state) {
		if s.submitting {
			busy = true
			return
		}
		s.submitting = true
	}); err != nil {
		return models.UserRecord{}, err
	}
	if busy {
		return models.UserRecord{}, ErrSubmissionInFlight
	}

	draft = draft.WithDefaults()
	v.logger.Debug("creating user", zap.String("name", draft.Name), zap.String("email", draft.Email))

	created, err := v.api.CreateUser(ctx, draft)
	if err != nil {
		createErr := newCreateError(err)
		v.logger.Error("failed to create user", zap.Error(err))
		if err := v.update(func(s *state) {
			s.submitting = false
			s.notice = &Notice{Kind: NoticeError, Message: createErr.Error()}
		}); err != nil {
			return models.UserRecord{}, err
		}
		return models.UserRecord{}, createErr
	}

	v.logger.Debug("created user", zap.Int("id", created.ID))

	if err := v.update(func(s *state) {
		s.users = append(s.users, *created)
		s.draft = models.NewDraftUser()
		s.submitting = false
		s.notice = &Notice{Kind: NoticeInfo, Message: "User created successfully!"}
	}); err != nil {
		return models.UserRecord{}, err
	}
	return *created, nil
}

// TestConnection checks the API health on user request and reports the result as a notice.
// Unlike Probe it does not store the health status.
func (v *View) TestConnection(ctx context.Context) error {
	v.logger.Debug("testing connection", zap.String("url", v.apiURL))

	health, err := v.api.Health(ctx)
	if err != nil {
		v.logger.Warn("connection test failed", zap.Error(err))
		if uerr := v.update(func(s *state) {
			s.notice = &Notice{Kind: NoticeError, Message: fmt.Sprintf("Connection failed: %v", err)}
		}); uerr != nil {
			return uerr
		}
		return err
	}

	return v.update(func(s *state) {
		s.notice = &Notice{Kind: NoticeInfo, Message: fmt.Sprintf("Connection successful! API Status: %s", health.Status)}
	})
}

// DismissNotice clears the current notice
func (v *View) DismissNotice() error {
	return v.update(func(s *state) {
		s.notice = nil
	})
}

// update applies fn on the owner goroutine and publishes the new state
func (v *View) update(fn func(*state)) error {
	return v.apply(fn, true)
}

func (v *View) apply(fn func(*state), publish bool) error {
	done := make(chan struct{})
	op := operation{
		fn: func(s *state) {
			fn(s)
			if publish {
				v.publish()
			}
		},
		done: done,
	}

	select {
	case v.ops <- op:
	case <-v.closed:
		return ErrClosed
	}
	<-done
	return nil
}

func (v *View) run() {
	for {
		select {
		case op := <-v.ops:
			op.fn(&v.st)
			close(op.done)
		case <-v.closed:
			return
		}
	}
}

// publish stores a new snapshot and notifies subscribers. Runs on the owner goroutine.
func (v *View) publish() {
	v.st.version++
	snap := v.st.snapshot(v.apiURL)
	v.current.Store(&snap)
	for _, fn := range v.subs {
		fn(snap)
	}
}

func (s *state) snapshot(apiURL string) Snapshot {
	snap := Snapshot{
		Version:    s.version,
		Users:      slices.Clone(s.users),
		Status:     s.status,
		Draft:      s.draft,
		Submitting: s.submitting,
		APIURL:     apiURL,
	}
	if snap.Users == nil {
		snap.Users = []models.UserRecord{}
	}
	if s.health != nil {
		h := *s.health
		snap.Health = &h
	}
	if s.notice != nil {
		n := *s.notice
		snap.Notice = &n
	}
	return snap
}

func missingFields(d models.DraftUser) []string {
	var fields []string
	if strings.TrimSpace(d.Name) == "" {
		fields = append(fields, "name")
	}
	if strings.TrimSpace(d.Email) == "" {
		fields = append(fields, "email")
	}
	return fields
}
