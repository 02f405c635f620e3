package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is append-only; there is no update or delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records operator actions. Records are internal and never shown
// to the business.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Actor is whoever made the request.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.BusinessID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) LogOnboardingStarted(ctx context.Context, businessID string, by Actor, onboardingID, callSid string) error {
	return s.Append(ctx, Event{
		BusinessID:   businessID,
		Type:         EventTypeOnboardingStarted,
		ActorUserID:  by.UserID,
		ActorRole:    by.Role,
		IPAddress:    by.IP,
		OnboardingID: onboardingID,
		CallSid:      callSid,
		Message:      "onboarding call placed",
	})
}

// LogSupportAccess records a support read of path.
func (s *Service) LogSupportAccess(ctx context.Context, businessID string, by Actor, path string) error {
	return s.Append(ctx, Event{
		BusinessID:  businessID,
		Type:        EventTypeSupportAccess,
		ActorUserID: by.UserID,
		ActorRole:   by.Role,
		IPAddress:   by.IP,
		Message:     path,
	})
}
