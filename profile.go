package auth

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profile is the application-side record for an identity, keyed by the
// provider's user id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email         string     `bun:"email" json:"email,omitempty"`
	FullName      string     `bun:"full_name" json:"full_name,omitempty"`
	AvatarURL     string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Validate checks the profile before it is written.
func (p Profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.By(notNilUUID)),
		validation.Field(&p.Email, is.Email),
		validation.Field(&p.Role, validation.Required, validation.In(RoleUser, RoleBarista, RoleManager, RoleOwner, RoleAdmin)),
	)
}

// notNilUUID checks the raw value; ozzo's built-in rules see a uuid.UUID
// through its driver.Valuer string form, which is never empty.
func notNilUUID(value any) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return errors.New("must be a non-nil uuid", errors.CategoryValidation)
	}
	return nil
}

// ProfileFromSession builds the profile row for the session's identity.
// Sessions without a resolvable role get RoleUser.
func ProfileFromSession(s *Session) (*Profile, error) {
	if !s.Valid() {
		return nil, ErrNoSession
	}

	id, err := s.User.UUID()
	if err != nil {
		return nil, errors.Wrap(err, ErrInvalidProfile.Category, "session user id is not a uuid").
			WithTextCode(ErrInvalidProfile.TextCode).
			WithMetadata(map[string]any{"user_id": s.User.ID})
	}

	role, ok := s.Role()
	if !ok {
		role = RoleUser
	}

	now := time.Now()
	return &Profile{
		ID:        id,
		Email:     s.User.Email,
		FullName:  s.User.FullName(),
		AvatarURL: s.User.AvatarURL(),
		Role:      role,
		UpdatedAt: &now,
	}, nil
}

// ProfileRepository stores profiles. Upsert replaces the row with the same
// id instead of inserting a duplicate.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *Profile) error
}

// ProfileSyncOption customizes a ProfileSync.
type ProfileSyncOption func(*ProfileSync)

// WithProfileSyncLogger overrides the logger used for upsert failures.
func WithProfileSyncLogger(logger Logger) ProfileSyncOption {
	return func(p *ProfileSync) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProfileSyncActivitySink records successful upserts.
func WithProfileSyncActivitySink(sink ActivitySink) ProfileSyncOption {
	return func(p *ProfileSync) {
		p.sink = normalizeActivitySink(sink)
	}
}

// ProfileSync makes sure a profile row exists for every user that signs in.
// Every SIGNED_IN event upserts; the upsert is idempotent per user id.
// It is bookkeeping: failures are logged and never reach the auth flow.
type ProfileSync struct {
	repo   ProfileRepository
	logger Logger
	sink   ActivitySink

	mu          sync.Mutex
	registered  bool
	unsubscribe func()
}

var _ Listener = (*ProfileSync)(nil)

func NewProfileSync(repo ProfileRepository, opts ...ProfileSyncOption) *ProfileSync {
	p := &ProfileSync{
		repo:   repo,
		logger: defLogger{},
		sink:   noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Register attaches the sync to d. Later calls return the handle from the
// first call without adding a second listener. Once that handle is called
// the sync may be registered again.
func (p *ProfileSync) Register(d *Dispatcher) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.registered {
		if p.unsubscribe == nil {
			return func() {}
		}
		return p.unsubscribe
	}

	remove := d.AddListener(p)
	var once sync.Once
	p.unsubscribe = func() {
		once.Do(func() {
			remove()
			p.mu.Lock()
			p.registered = false
			p.unsubscribe = nil
			p.mu.Unlock()
		})
	}
	p.registered = true

	return p.unsubscribe
}

// OnAuthEvent implements Listener.
func (p *ProfileSync) OnAuthEvent(ctx context.Context, event AuthEvent) error {
	if event.Kind != EventSignedIn || !event.HasSession() {
		return nil
	}

	// result is logged and dropped on purpose
	if err := p.Sync(ctx, event.Session); err != nil {
		p.logger.Error("profile sync: upsert failed for user %s: %v", event.Session.User.ID, err)
	}
	return nil
}

// Sync upserts the profile for s and reports the outcome.
func (p *ProfileSync) Sync(ctx context.Context, s *Session) error {
	profile, err := ProfileFromSession(s)
	if err != nil {
		return err
	}

	if err := profile.Validate(); err != nil {
		return errors.Wrap(err, ErrInvalidProfile.Category, ErrInvalidProfile.Message).
			WithTextCode(ErrInvalidProfile.TextCode)
	}

	if err := p.repo.Upsert(ctx, profile); err != nil {
		return err
	}

	if err := p.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventProfileSynced,
		UserID:     s.User.ID,
		Role:       profile.Role,
		OccurredAt: time.Now(),
	}); err != nil {
		p.logger.Warn("profile sync: activity sink error: %v", err)
	}

	return nil
}
