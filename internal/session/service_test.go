package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codedrop-go/internal/code"
	"codedrop-go/internal/models"
)

type fakeSessionRepo struct {
	sessions map[uuid.UUID]*models.Session
	touches  int
	deletes  int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*models.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, sess *models.Session) error {
	cp := *sess
	r.sessions[sess.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrInvalidSession
	}
	cp := *sess
	return &cp, nil
}

func (r *fakeSessionRepo) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	r.touches++
	if sess, ok := r.sessions[id]; ok {
		sess.UpdatedAt = now
	}
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.deletes++
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, sess := range r.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) UpdateStatusTx(tx *sqlx.Tx, id uuid.UUID, status models.SessionStatus) error {
	return nil
}

func (r *fakeSessionRepo) ClaimLinkedCodeTx(tx *sqlx.Tx, id uuid.UUID, linkedCodeID uuid.UUID) (bool, error) {
	sess, ok := r.sessions[id]
	if !ok || sess.LinkedCodeID != nil {
		return false, nil
	}
	sess.LinkedCodeID = &linkedCodeID
	return true, nil
}

type fakeCodeService struct {
	codes map[uuid.UUID]*models.Code
}

func newFakeCodeService() *fakeCodeService {
	return &fakeCodeService{codes: make(map[uuid.UUID]*models.Code)}
}

func (f *fakeCodeService) add(c *models.Code) {
	f.codes[c.ID] = c
}

func (f *fakeCodeService) CreateCode(ctx context.Context, ownerID uuid.UUID, req *code.CreateCodeRequest) (*models.Code, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCodeService) ListCodes(ctx context.Context, ownerID uuid.UUID) ([]*models.Code, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCodeService) DisableCode(ctx context.Context, ownerID, codeID uuid.UUID) error {
	return errors.New("not implemented")
}

func (f *fakeCodeService) Verify(ctx context.Context, token string) (*models.Code, error) {
	for _, c := range f.codes {
		if c.Code == code.Normalize(token) && c.Enabled() {
			return c, nil
		}
	}
	return nil, code.ErrNotFound
}

func (f *fakeCodeService) GetByID(ctx context.Context, id uuid.UUID) (*models.Code, error) {
	c, ok := f.codes[id]
	if !ok {
		return nil, code.ErrNotFound
	}
	return c, nil
}

func (f *fakeCodeService) MintLinkedTx(tx *sqlx.Tx, source *models.Code) (*models.Code, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCodeService) IncrementUsageTx(tx *sqlx.Tx, id uuid.UUID) error {
	return nil
}

func (f *fakeCodeService) UpdateConfigTx(tx *sqlx.Tx, id uuid.UUID, comment *string, expiresAt *time.Time, usageLimit, speedLimit *int) error {
	return nil
}

func setupService(t *testing.T, kind models.CodeKind) (Service, *fakeSessionRepo, *models.Code, *time.Time) {
	t.Helper()
	repo := newFakeSessionRepo()
	codes := newFakeCodeService()
	c := &models.Code{ID: uuid.New(), Code: "ABC234", Kind: kind}
	codes.add(c)

	now := time.Now()
	svc := NewServiceWithClock(repo, codes, func() time.Time { return now })
	return svc, repo, c, &now
}

func TestVerifyOpensSession(t *testing.T) {
	svc, repo, c, _ := setupService(t, models.CodeKindUpload)

	sess, gotCode, err := svc.Verify(context.Background(), "abc234")
	require.NoError(t, err)
	assert.Equal(t, c.ID, gotCode.ID)
	assert.Equal(t, models.SessionPicking, sess.Status)
	assert.NotEmpty(t, sess.Fingerprint)
	assert.Len(t, repo.sessions, 1)
}

func TestVerifyDownloadCodeStartsDownloading(t *testing.T) {
	svc, _, _, _ := setupService(t, models.CodeKindDownload)

	sess, _, err := svc.Verify(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Equal(t, models.SessionDownloading, sess.Status)
}

func TestAuthorizeDeadSessionIsDeletedLazily(t *testing.T) {
	svc, repo, _, now := setupService(t, models.CodeKindUpload)

	sess, _, err := svc.Verify(context.Background(), "ABC234")
	require.NoError(t, err)
	creds := Credentials{SessionID: sess.ID, Fingerprint: sess.Fingerprint}

	// 11 minutes of silence kills the session.
	*now = now.Add(11 * time.Minute)

	_, _, err = svc.Authorize(context.Background(), creds, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Equal(t, 1, repo.deletes, "dead session must be deleted on observation")
	assert.Empty(t, repo.sessions)

	// Every subsequent call fails identically.
	_, _, err = svc.Authorize(context.Background(), creds, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthorizeWrongFingerprint(t *testing.T) {
	svc, repo, _, _ := setupService(t, models.CodeKindUpload)

	sess, _, err := svc.Verify(context.Background(), "ABC234")
	require.NoError(t, err)

	_, _, err = svc.Authorize(context.Background(),
		Credentials{SessionID: sess.ID, Fingerprint: "guessed"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
	// A possession failure is not a liveness failure; the session survives.
	assert.Len(t, repo.sessions, 1)
}

func TestHeartbeatDebounce(t *testing.T) {
	svc, repo, _, now := setupService(t, models.CodeKindUpload)

	sess, _, err := svc.Verify(context.Background(), "ABC234")
	require.NoError(t, err)
	creds := Credentials{SessionID: sess.ID, Fingerprint: sess.Fingerprint}

	// Within the debounce window: no write.
	*now = now.Add(30 * time.Second)
	_, err = svc.Heartbeat(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, 0, repo.touches)

	// Past the debounce window: liveness clock refreshed.
	*now = now.Add(40 * time.Second)
	got, err := svc.Heartbeat(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.touches)
	assert.Equal(t, *now, got.UpdatedAt)
}

func TestHeartbeatKeepsSessionAliveIndefinitely(t *testing.T) {
	svc, _, _, now := setupService(t, models.CodeKindUpload)

	sess, _, err := svc.Verify(context.Background(), "ABC234")
	require.NoError(t, err)
	creds := Credentials{SessionID: sess.ID, Fingerprint: sess.Fingerprint}

	// An hour of regular heartbeats; the session must stay reachable the
	// whole way because it dies from inactivity, not from age.
	for i := 0; i < 60; i++ {
		*now = now.Add(time.Minute)
		_, err := svc.Heartbeat(context.Background(), creds)
		require.NoError(t, err, "heartbeat %d failed", i)
	}
}

func TestHeartbeatDeadSession(t *testing.T) {
	svc, _, _, now := setupService(t, models.CodeKindUpload)

	sess, _, err := svc.Verify(context.Background(), "ABC234")
	require.NoError(t, err)
	creds := Credentials{SessionID: sess.ID, Fingerprint: sess.Fingerprint}

	*now = now.Add(LivenessThreshold + time.Second)
	_, err = svc.Heartbeat(context.Background(), creds)
	assert.ErrorIs(t, err, ErrInvalidSession)
}
