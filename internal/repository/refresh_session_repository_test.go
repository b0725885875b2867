package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"residentportal/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.UserRole{}, &domain.RefreshSession{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newSessionRepoForTest(t *testing.T) RefreshSessionRepository {
	t.Helper()
	return NewRefreshSessionRepository(newTestDB(t))
}

func session(userID uint, token string, ttl time.Duration) *domain.RefreshSession {
	return &domain.RefreshSession{
		UserID:     userID,
		Token:      token,
		ExpiresAt:  time.Now().Add(ttl),
		DeviceInfo: "test-agent",
		IPAddress:  "1.2.3.4",
	}
}

func TestSessionCreateAndFindByToken(t *testing.T) {
	repo := newSessionRepoForTest(t)

	if err := repo.Create(session(1, "t1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	s, err := repo.FindByToken("t1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if s.UserID != 1 || s.Revoked {
		t.Fatalf("unexpected session: %+v", s)
	}
	if !s.Valid(time.Now()) {
		t.Fatal("freshly created session should be valid")
	}

	if _, err := repo.FindByToken("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionCreateDuplicateTokenConflicts(t *testing.T) {
	repo := newSessionRepoForTest(t)

	if err := repo.Create(session(1, "dup", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(session(2, "dup", time.Hour)); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestSessionRotateRevokesOldAndCreatesNew(t *testing.T) {
	repo := newSessionRepoForTest(t)

	if err := repo.Create(session(1, "old", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Rotate("old", session(1, "new", time.Hour)); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	old, err := repo.FindByToken("old")
	if err != nil {
		t.Fatalf("find old: %v", err)
	}
	if !old.Revoked {
		t.Fatal("expected old session revoked after rotation")
	}
	next, err := repo.FindByToken("new")
	if err != nil {
		t.Fatalf("find new: %v", err)
	}
	if next.Revoked {
		t.Fatal("expected new session valid after rotation")
	}
}

func TestSessionRotateSucceedsAtMostOnce(t *testing.T) {
	repo := newSessionRepoForTest(t)

	if err := repo.Create(session(1, "once", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Rotate("once", session(1, "next-a", time.Hour)); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if err := repo.Rotate("once", session(1, "next-b", time.Hour)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second rotate must fail with ErrSessionNotFound, got %v", err)
	}
	if _, err := repo.FindByToken("next-b"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("failed rotation must not create a replacement session")
	}
}

func TestSessionRotateRejectsExpired(t *testing.T) {
	repo := newSessionRepoForTest(t)

	if err := repo.Create(session(1, "stale", -time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Rotate("stale", session(1, "fresh", time.Hour)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for expired session, got %v", err)
	}
}

func TestSessionRevokeByTokenIsIdempotent(t *testing.T) {
	repo := newSessionRepoForTest(t)

	if err := repo.Create(session(1, "r1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.RevokeByToken("r1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := repo.RevokeByToken("r1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := repo.RevokeByToken("absent"); err != nil {
		t.Fatalf("revoke absent: %v", err)
	}
	s, err := repo.FindByToken("r1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !s.Revoked {
		t.Fatal("expected session revoked")
	}
}

func TestSessionRevokeAllForUser(t *testing.T) {
	repo := newSessionRepoForTest(t)

	for i, token := range []string{"u1a", "u1b"} {
		if err := repo.Create(session(1, token, time.Duration(i+1)*time.Hour)); err != nil {
			t.Fatalf("create %s: %v", token, err)
		}
	}
	if err := repo.Create(session(2, "u2a", time.Hour)); err != nil {
		t.Fatalf("create u2a: %v", err)
	}

	if err := repo.RevokeAllForUser(1); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	for _, token := range []string{"u1a", "u1b"} {
		s, err := repo.FindByToken(token)
		if err != nil {
			t.Fatalf("find %s: %v", token, err)
		}
		if !s.Revoked {
			t.Fatalf("expected %s revoked", token)
		}
	}
	other, err := repo.FindByToken("u2a")
	if err != nil {
		t.Fatalf("find u2a: %v", err)
	}
	if other.Revoked {
		t.Fatal("other user's session must stay valid")
	}
}

func TestSessionPurgeExpiredOrRevoked(t *testing.T) {
	repo := newSessionRepoForTest(t)

	if err := repo.Create(session(1, "live", time.Hour)); err != nil {
		t.Fatalf("create live: %v", err)
	}
	if err := repo.Create(session(1, "expired", -time.Minute)); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if err := repo.Create(session(1, "revoked", time.Hour)); err != nil {
		t.Fatalf("create revoked: %v", err)
	}
	if err := repo.RevokeByToken("revoked"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	purged, err := repo.PurgeExpiredOrRevoked()
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged rows, got %d", purged)
	}
	if _, err := repo.FindByToken("live"); err != nil {
		t.Fatalf("live session must survive purge: %v", err)
	}
	for _, token := range []string{"expired", "revoked"} {
		if _, err := repo.FindByToken(token); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected %s purged, got %v", token, err)
		}
	}
}
