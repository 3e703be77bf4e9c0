package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"specsbiz/backend/internal/async"
	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
	"specsbiz/backend/internal/insight"
	"specsbiz/backend/internal/logging"
	"specsbiz/backend/internal/store"
	"specsbiz/backend/internal/xid"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrInvalidPIN = fmt.Errorf("%w: invalid manager pin", ErrForbidden)
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// PINVerifier checks the manager PIN guarding destructive actions.
type PINVerifier interface {
	ValidateManagerPIN(pin string) bool
}

type Options struct {
	Events       events.Publisher
	Insight      *insight.Engine
	PIN          PINVerifier
	Location     *time.Location
	Logger       logrus.FieldLogger
	AsyncWorkers int
	AsyncQueue   int
}

type Service struct {
	repo    store.Repository
	events  events.Publisher
	insight *insight.Engine
	pin     PINVerifier
	loc     *time.Location
	logger  logrus.FieldLogger
	writer  *async.Writer
	now     func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Insight == nil {
		opts.Insight = insight.NewEngine(nil, 0, opts.Logger)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.AsyncWorkers < 1 {
		opts.AsyncWorkers = 4
	}
	if opts.AsyncQueue < 1 {
		opts.AsyncQueue = 64
	}

	s := &Service{
		repo:    repo,
		events:  opts.Events,
		insight: opts.Insight,
		pin:     opts.PIN,
		loc:     opts.Location,
		logger:  opts.Logger.WithField("module", "service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.writer = async.NewWriter(opts.AsyncWorkers, opts.AsyncQueue, s.handleWriteFailure)
	return s
}

// Close drains queued writes.
func (s *Service) Close() {
	s.writer.Close()
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// WriteStatus reports a submitted write by operation id.
func (s *Service) WriteStatus(id string) (domain.WriteStatus, bool) {
	status, ok := s.writer.Status(id)
	if !ok {
		return domain.WriteStatus{}, false
	}
	out := domain.WriteStatus{OperationID: status.ID, State: status.State, Result: status.Result}
	if status.Err != nil {
		out.Error = status.Err.Error()
	}
	return out, true
}

func (s *Service) handleWriteFailure(ctx context.Context, status async.Status) {
	actor, _ := ActorFromContext(ctx)
	logging.LogError(s.logger, "service", "handleWriteFailure", status.Name, status.ID, status.Err)
	event := events.New(events.TypeWriteFailed, actor.OwnerID, status.Name, status.ID)
	event.Actor = actor.Username
	event.Detail = status.Err.Error()
	if err := s.events.Publish(ctx, event); err != nil {
		logging.LogError(s.logger, "service", "handleWriteFailure", "publish", status.ID, err)
	}
}

// requireRole returns the caller when it holds one of roles. An empty list
// accepts any signed-in caller.
func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.OwnerID == "" {
		return domain.Actor{}, fmt.Errorf("%w: no signed-in user", ErrForbidden)
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, fmt.Errorf("%w: %s role required", ErrForbidden, roles[0])
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		OwnerID:       actor.OwnerID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).WithError(err).Warn("failed to write audit log")
	}
}

// changed publishes a change event and drops the cached health snapshot.
func (s *Service) changed(ctx context.Context, actor domain.Actor, eventType string, entityType string, entityID string, detail string) {
	s.insight.Invalidate(ctx, actor.OwnerID)

	event := events.New(eventType, actor.OwnerID, entityType, entityID)
	event.Actor = actor.Username
	event.Detail = detail
	if err := s.events.Publish(ctx, event); err != nil {
		logging.LogError(s.logger, "service", "changed", "publish "+eventType, entityType+"/"+entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, err := requireRole(ctx, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	// Without a date: the last 24 hours, otherwise that shop day.
	to := s.now().Add(time.Second)
	from := to.Add(-24 * time.Hour)
	if date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date must use YYYY-MM-DD", store.ErrInvalidRecord)
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}
	return s.repo.ListAuditLogs(ctx, actor.OwnerID, from, to, limit)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidRecord, fmt.Sprintf(format, args...))
}
