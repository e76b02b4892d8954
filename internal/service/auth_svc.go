package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

const DefaultSessionTTL = 72 * time.Hour

type sessionClaims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

// AuthService issues and verifies HS256 session tokens.
type AuthService struct {
	users    UserRepository
	sessions SessionStore
	trust    *TrustService
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthService creates an AuthService. sessions may be nil, in which case
// sign-out cannot revoke tokens and the event stream is unavailable.
func NewAuthService(users UserRepository, sessions SessionStore, trust *TrustService, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		trust:    trust,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SignUp registers a new citizen and opens a session for them.
func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (*model.Session, error) {
	const op = "service.Auth.SignUp"

	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, fmt.Errorf("%s: %w", op, e.Input("email", "is required"))
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%s: %w", op, e.Input("password", "must be at least 6 characters"))
	}
	if name == "" {
		return nil, fmt.Errorf("%s: %w", op, e.Input("name", "is required"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleCitizen,
		Weight:       s.trust.WeightFor(model.RoleCitizen),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, e.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info().Str("user_id", user.ID).Msg("auth: user signed up")
	return s.open(ctx, user)
}

// SignIn checks credentials and opens a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	const op = "service.Auth.SignIn"

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, e.ErrInvalidCredentials)
	}

	return s.open(ctx, user)
}

// SignOut revokes the session's token until it would have expired anyway.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	const op = "service.Auth.SignOut"

	session, err := s.CurrentSession(ctx, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.sessions != nil {
		ttl := session.ExpiresAt.Sub(s.now())
		if err := s.sessions.Revoke(ctx, session.TokenID, ttl); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.publish(ctx, model.SessionSignedOut, session.UserID, session.Role)
	}
	return nil
}

// CurrentSession verifies token and returns the session it carries.
func (s *AuthService) CurrentSession(ctx context.Context, token string) (*model.Session, error) {
	const op = "service.Auth.CurrentSession"

	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.Id == "" {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
	}

	if s.sessions != nil {
		revoked, err := s.sessions.IsRevoked(ctx, claims.Id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if revoked {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
		}
	}

	return &model.Session{
		Token:     token,
		TokenID:   claims.Id,
		UserID:    claims.Subject,
		Role:      model.ParseRole(claims.Role),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

// Subscribe streams session events for userID until ctx is done.
func (s *AuthService) Subscribe(ctx context.Context, userID string) (<-chan model.SessionEvent, error) {
	if s.sessions == nil {
		return nil, errors.New("session events unavailable")
	}
	return s.sessions.Subscribe(ctx, userID)
}

func (s *AuthService) open(ctx context.Context, user *model.User) (*model.Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	role := model.ParseRole(string(user.Role))

	claims := sessionClaims{
		Role: string(role),
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: expires.Unix(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.publish(ctx, model.SessionSignedIn, user.ID, role)

	return &model.Session{
		Token:     signed,
		TokenID:   claims.Id,
		UserID:    user.ID,
		Role:      role,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *AuthService) publish(ctx context.Context, typ model.SessionEventType, userID string, role model.Role) {
	if s.sessions == nil {
		return
	}
	event := model.SessionEvent{Type: typ, UserID: userID, Role: role, At: s.now().UTC()}
	if err := s.sessions.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("sessions: publish error")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
