package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"codedrop-go/internal/models"
)

func testSessionAndCode(status models.SessionStatus, kind models.CodeKind) (*models.Session, *models.Code, Credentials) {
	c := &models.Code{ID: uuid.New(), Code: "ABC234", Kind: kind}
	sess := &models.Session{
		ID:          uuid.New(),
		CodeID:      c.ID,
		Fingerprint: "fp-secret",
		Status:      status,
		UpdatedAt:   time.Now(),
	}
	creds := Credentials{SessionID: sess.ID, Fingerprint: sess.Fingerprint}
	return sess, c, creds
}

func TestCheckGates(t *testing.T) {
	tests := []struct {
		name     string
		status   models.SessionStatus
		kind     models.CodeKind
		mutate   func(*Credentials)
		statuses []models.SessionStatus
		kinds    []models.CodeKind
		wantErr  error
	}{
		{
			name:   "all gates pass",
			status: models.SessionPicking, kind: models.CodeKindUpload,
			statuses: []models.SessionStatus{models.SessionPicking},
			kinds:    []models.CodeKind{models.CodeKindUpload},
		},
		{
			name:   "empty filters allow any status and kind",
			status: models.SessionCompleted, kind: models.CodeKindDownload,
		},
		{
			name:   "wrong fingerprint",
			status: models.SessionPicking, kind: models.CodeKindUpload,
			mutate:  func(c *Credentials) { c.Fingerprint = "stolen" },
			wantErr: ErrInvalidSession,
		},
		{
			name:   "empty fingerprint",
			status: models.SessionPicking, kind: models.CodeKindUpload,
			mutate:  func(c *Credentials) { c.Fingerprint = "" },
			wantErr: ErrInvalidSession,
		},
		{
			name:   "wrong session id",
			status: models.SessionPicking, kind: models.CodeKindUpload,
			mutate:  func(c *Credentials) { c.SessionID = uuid.New() },
			wantErr: ErrInvalidSession,
		},
		{
			name:   "status not in allowed set",
			status: models.SessionUploading, kind: models.CodeKindUpload,
			statuses: []models.SessionStatus{models.SessionPicking},
			wantErr:  ErrInvalidSession,
		},
		{
			name:   "kind not in allowed set",
			status: models.SessionDownloading, kind: models.CodeKindDownload,
			kinds:   []models.CodeKind{models.CodeKindUpload, models.CodeKindCollection},
			wantErr: ErrInvalidTransferType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, c, creds := testSessionAndCode(tt.status, tt.kind)
			if tt.mutate != nil {
				tt.mutate(&creds)
			}
			err := checkGates(sess, c, creds, tt.statuses, tt.kinds)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("checkGates() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDead(t *testing.T) {
	now := time.Now()
	sess := &models.Session{UpdatedAt: now.Add(-9 * time.Minute)}
	if Dead(sess, now) {
		t.Error("session idle for 9m should be alive")
	}
	sess.UpdatedAt = now.Add(-11 * time.Minute)
	if !Dead(sess, now) {
		t.Error("session idle for 11m should be dead")
	}
}

func TestInitialStatus(t *testing.T) {
	if got := InitialStatus(models.CodeKindUpload); got != models.SessionPicking {
		t.Errorf("InitialStatus(UPLOAD) = %s, want PICKING", got)
	}
	if got := InitialStatus(models.CodeKindCollection); got != models.SessionPicking {
		t.Errorf("InitialStatus(COLLECTION) = %s, want PICKING", got)
	}
	if got := InitialStatus(models.CodeKindDownload); got != models.SessionDownloading {
		t.Errorf("InitialStatus(DOWNLOAD) = %s, want DOWNLOADING", got)
	}
}
