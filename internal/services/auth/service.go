package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/apexfest/checkin/internal/dependencies/clock"
	"github.com/apexfest/checkin/internal/dependencies/random"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/services/directory"
	"github.com/apexfest/checkin/internal/shortid"
)

// Role is what a session is allowed to do
type Role string

const (
	RoleSubject Role = "subject"
	RoleHost    Role = "host"
	RoleAdmin   Role = "admin"
)

// Session represents an authenticated session.
// Exactly one of SubjectID and HostID is set for subject and host roles.
type Session struct {
	Token       string
	Role        Role
	SubjectID   model.SubjectID
	HostID      model.HostID
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// claims is the signed token payload
type claims struct {
	Role  Role   `json:"r"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"n,omitempty"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
	Nonce string `json:"nonce"`
}

// Service issues and validates signed, time-limited session tokens
type Service struct {
	directory *directory.Service
	clock     clock.Clock
	random    random.Random
	logger    *slog.Logger

	secret            []byte
	sessionDuration   time.Duration
	adminPasswordHash []byte

	mu      sync.Mutex
	revoked map[string]time.Time // nonce -> expiry
}

// Config holds configuration for the auth service
type Config struct {
	// Secret signs session tokens. A random one is generated when empty,
	// which invalidates sessions on restart.
	Secret            string
	SessionDuration   time.Duration
	AdminPasswordHash string
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 8 * time.Hour,
	}
}

// New creates a new auth service
func New(directory *directory.Service, clock clock.Clock, random random.Random, cfg Config, logger *slog.Logger) *Service {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = DefaultConfig().SessionDuration
	}
	secret := cfg.Secret
	if secret == "" {
		logger.Warn("no session secret configured, generating an ephemeral one")
		secret = random.Nonce(32)
	}
	return &Service{
		directory:         directory,
		clock:             clock,
		random:            random,
		logger:            logger,
		secret:            []byte(secret),
		sessionDuration:   cfg.SessionDuration,
		adminPasswordHash: []byte(cfg.AdminPasswordHash),
		revoked:           make(map[string]time.Time),
	}
}

// Register creates a subject and signs them in
func (s *Service) Register(ctx context.Context, in directory.RegisterInput) (*model.Subject, *Session, error) {
	subject, err := s.directory.RegisterSubject(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	session, err := s.issue(RoleSubject, string(subject.ID), subject.DisplayName)
	if err != nil {
		return nil, nil, err
	}
	return subject, session, nil
}

// LoginSubject signs a subject in with the 8-character short id from their badge
func (s *Service) LoginSubject(ctx context.Context, short string) (*Session, error) {
	if !shortid.ValidSubjectLogin(short) {
		return nil, fmt.Errorf("%w: subject id must be %d characters", model.ErrInvalidShortID, model.SubjectShortIDLength)
	}
	subject, err := s.directory.ResolveSubject(ctx, short)
	if err != nil {
		return nil, err
	}
	s.logger.Info("subject signed in", slog.String("subject_id", string(subject.ID)))
	return s.issue(RoleSubject, string(subject.ID), subject.DisplayName)
}

// LoginHost signs a host in with its 4-character short id
func (s *Service) LoginHost(ctx context.Context, short string) (*Session, error) {
	if !shortid.ValidHost(short) {
		return nil, fmt.Errorf("%w: host id must be %d characters", model.ErrInvalidShortID, model.HostShortIDLength)
	}
	host, err := s.directory.ResolveHost(ctx, short)
	if err != nil {
		return nil, err
	}
	s.logger.Info("host signed in", slog.String("host_id", string(host.ID)))
	return s.issue(RoleHost, string(host.ID), host.DisplayName)
}

// LoginAdmin signs the operator in. Admin login is disabled without a configured hash.
func (s *Service) LoginAdmin(password string) (*Session, error) {
	if len(s.adminPasswordHash) == 0 {
		return nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.adminPasswordHash, []byte(password)); err != nil {
		s.logger.Warn("admin sign in rejected")
		return nil, model.ErrInvalidCredentials
	}
	return s.issue(RoleAdmin, "", "admin")
}

// ValidateSession verifies a token's signature, expiry and revocation
func (s *Service) ValidateSession(token string) (*Session, error) {
	c, err := s.decode(token)
	if err != nil {
		return nil, model.ErrInvalidSession
	}

	now := s.clock.Now()
	expiresAt := time.UnixMilli(c.Exp)
	if !now.Before(expiresAt) {
		return nil, model.ErrInvalidSession
	}

	s.mu.Lock()
	_, revoked := s.revoked[c.Nonce]
	s.mu.Unlock()
	if revoked {
		return nil, model.ErrInvalidSession
	}

	return sessionFromClaims(token, c), nil
}

// InvalidateSession revokes a token until it would have expired anyway
func (s *Service) InvalidateSession(token string) {
	c, err := s.decode(token)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[c.Nonce] = time.UnixMilli(c.Exp)
}

// CleanExpiredSessions forgets revocations for tokens that have expired (call periodically)
func (s *Service) CleanExpiredSessions() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for nonce, expiresAt := range s.revoked {
		if !now.Before(expiresAt) {
			delete(s.revoked, nonce)
		}
	}
}

// HashPassword returns a bcrypt hash suitable for the admin password setting
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) issue(role Role, id, name string) (*Session, error) {
	now := s.clock.Now()
	c := claims{
		Role:  role,
		ID:    id,
		Name:  name,
		Iat:   now.UnixMilli(),
		Exp:   now.Add(s.sessionDuration).UnixMilli(),
		Nonce: s.random.Nonce(12),
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	token := body + "." + s.sign(body)

	return sessionFromClaims(token, c), nil
}

func (s *Service) decode(token string) (claims, error) {
	var c claims

	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return c, model.ErrInvalidSession
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(body))) {
		return c, model.ErrInvalidSession
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return c, model.ErrInvalidSession
	}
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, model.ErrInvalidSession
	}
	switch c.Role {
	case RoleSubject, RoleHost:
		if c.ID == "" {
			return c, model.ErrInvalidSession
		}
	case RoleAdmin:
	default:
		return c, model.ErrInvalidSession
	}
	return c, nil
}

func (s *Service) sign(body string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func sessionFromClaims(token string, c claims) *Session {
	session := &Session{
		Token:       token,
		Role:        c.Role,
		DisplayName: c.Name,
		IssuedAt:    time.UnixMilli(c.Iat).UTC(),
		ExpiresAt:   time.UnixMilli(c.Exp).UTC(),
	}
	switch c.Role {
	case RoleSubject:
		session.SubjectID = model.SubjectID(c.ID)
	case RoleHost:
		session.HostID = model.HostID(c.ID)
	}
	return session
}
