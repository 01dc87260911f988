package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/tableorder/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTTL       = 12 * time.Hour
	sessionKeyPrefix = "tableorder-session||"
	tokensSetKey     = "tableorder-sessions"
)

var (
	ErrNoSession        = errors.New("session not found or expired")
	ErrWrongCredentials = errors.New("wrong credentials")
)

type Credentials struct {
	Username string
	Password string
}

// Session is a time-bounded authorization grant, keyed by an opaque token.
// A token maps to exactly one admin for its entire validity window, there
// is no renewal - expiry requires a new login.
type Session struct {
	AdminID   int    `json:"admin_id"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

type Service struct {
	admins      AdminGetter
	redisClient *redis.Client
	ttl         time.Duration
	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
	// ability to inject time for expiry tests
	NowFunc func() time.Time
}

func NewService(
	admins AdminGetter,
	ttl time.Duration,
	redisClient *redis.Client,
) *Service {
	return &Service{
		admins:         admins,
		ttl:            ttl,
		redisClient:    redisClient,
		RandStringFunc: pkg.GenerateRandomString,
		NowFunc:        time.Now,
	}
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Login verifies the credentials against the stored admin and issues a new
// session token on success
func (s *Service) Login(ctx context.Context, credentials Credentials) (string, *Admin, error) {
	admin, err := s.admins.GetByUsername(ctx, credentials.Username)
	if errors.Is(err, ErrAdminNotFound) {
		return "", nil, ErrWrongCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("get admin: %w", err)
	}

	if !pkg.CheckPasswordHash(credentials.Password, admin.PasswordHash) {
		return "", nil, ErrWrongCredentials
	}

	token, err := s.RandStringFunc(35)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	session := Session{
		AdminID:   admin.ID,
		Username:  admin.Username,
		ExpiresAt: s.NowFunc().Add(s.ttl).Unix(),
	}
	sessionJson, err := json.Marshal(session)
	if err != nil {
		return "", nil, fmt.Errorf("marshal session: %w", err)
	}

	sessionKey := sessionKeyPrefix + token
	if err := s.redisClient.Set(ctx, sessionKey, sessionJson, 0).Err(); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}

	// add token to the set of live sessions (used by the sweep)
	if err := s.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return "", nil, fmt.Errorf("add session token: %w", err)
	}

	return token, admin, nil
}

// Validate returns the session for the given token, or ErrNoSession when the
// token is unknown or past its expiry. An expired entry is removed on access
// (lazy expiry), the periodic sweep catches the ones never accessed again.
func (s *Service) Validate(ctx context.Context, token string) (*Session, error) {
	sessionKey := sessionKeyPrefix + token
	sessionJson, err := s.redisClient.Get(ctx, sessionKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(sessionJson), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	if session.Expired(s.NowFunc()) {
		s.removeSession(ctx, token)
		return nil, ErrNoSession
	}

	return &session, nil
}

func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	sessionKey := sessionKeyPrefix + token
	if err := s.redisClient.Get(ctx, sessionKey).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	s.removeSession(ctx, token)
	return true, nil
}

// ScanAndClean will run through all sessions, check the expiry, and clean them if old
func (s *Service) ScanAndClean(ctx context.Context) {
	sessionTokens, err := s.redisClient.SMembers(ctx, tokensSetKey).Result()
	if err != nil {
		log.Errorf("!!! auth service, scan and clean, get sessions: %s", err)
		return
	}

	if len(sessionTokens) == 0 {
		return
	}

	log.Tracef("=> auth service, scan and clean [%d sessions] start ...", len(sessionTokens))
	now := s.NowFunc()
	var toRemove []string
	for _, token := range sessionTokens {
		sessionKey := sessionKeyPrefix + token
		sessionJson, err := s.redisClient.Get(ctx, sessionKey).Result()
		if errors.Is(err, redis.Nil) {
			// session value gone, drop the dangling set member
			toRemove = append(toRemove, token)
			continue
		}
		if err != nil {
			log.Errorf("=> auth service, scan and clean token %s: %s", token, err)
			continue
		}

		var session Session
		if err := json.Unmarshal([]byte(sessionJson), &session); err != nil {
			log.Errorf("=> auth service, scan and clean token %s: %s", token, err)
			continue
		}

		if session.Expired(now) {
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		log.Debugf("=>\twill clean the session with token: %s", token)
		s.removeSession(ctx, token)
	}
}

func (s *Service) removeSession(ctx context.Context, token string) {
	sessionKey := sessionKeyPrefix + token
	if err := s.redisClient.Del(ctx, sessionKey).Err(); err != nil {
		log.Errorf("auth service, remove session: %s", err)
	}
	if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		log.Errorf("auth service, remove session token: %s", err)
	}
}
