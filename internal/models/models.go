package models

import (
	"time"

	"github.com/google/uuid"
)

// CodeKind is the capability a code grants.
type CodeKind string

const (
	CodeKindUpload     CodeKind = "UPLOAD"
	CodeKindDownload   CodeKind = "DOWNLOAD"
	CodeKindCollection CodeKind = "COLLECTION"
)

// Valid reports whether k is one of the known code kinds.
func (k CodeKind) Valid() bool {
	switch k {
	case CodeKindUpload, CodeKindDownload, CodeKindCollection:
		return true
	}
	return false
}

// SessionStatus is the position of a session in the transfer lifecycle.
type SessionStatus string

const (
	SessionPicking     SessionStatus = "PICKING"
	SessionUploading   SessionStatus = "UPLOADING"
	SessionConfiguring SessionStatus = "CONFIGURING"
	SessionDownloading SessionStatus = "DOWNLOADING"
	SessionCompleted   SessionStatus = "COMPLETED"
)

// CompressStatus is the state of a code's archive assembly job.
type CompressStatus string

const (
	CompressIdle       CompressStatus = "IDLE"
	CompressProcessing CompressStatus = "PROCESSING"
	CompressCompleted  CompressStatus = "COMPLETED"
	CompressFailed     CompressStatus = "FAILED"
)

// Code is a shareable short token granting upload, download or collection access.
type Code struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Code string    `db:"code" json:"code"` // 6-char human-readable token, globally unique
	Kind CodeKind  `db:"kind" json:"kind"`

	OwnerID      *uuid.UUID `db:"owner_id" json:"owner_id,omitempty"`             // Owning user, nil for codes minted by an upload
	SourceCodeID *uuid.UUID `db:"source_code_id" json:"source_code_id,omitempty"` // For DOWNLOAD codes: the UPLOAD/COLLECTION code that spawned it

	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	UsageLimit    *int       `db:"usage_limit" json:"usage_limit,omitempty"`
	UsageCount    int        `db:"usage_count" json:"usage_count"`
	DisableReason *string    `db:"disable_reason" json:"disable_reason,omitempty"` // nil = enabled
	SpeedLimit    *int       `db:"speed_limit" json:"speed_limit,omitempty"`       // bytes/sec hint for download serving
	Comment       *string    `db:"comment" json:"comment,omitempty"`

	CompressStatus   CompressStatus `db:"compress_status" json:"compress_status"`
	CompressProgress int            `db:"compress_progress" json:"compress_progress"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Enabled reports whether the code can currently be verified.
func (c *Code) Enabled() bool {
	return c.DisableReason == nil
}

// Session is one browser's single-use, fingerprinted engagement with a code.
type Session struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	CodeID      uuid.UUID     `db:"code_id" json:"code_id"`
	Fingerprint string        `db:"fingerprint" json:"-"` // capability token, never serialized
	Status      SessionStatus `db:"status" json:"status"`

	LinkedCodeID *uuid.UUID `db:"linked_code_id" json:"linked_code_id,omitempty"` // DOWNLOAD code minted when upload starts

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"` // liveness clock, refreshed by heartbeats
}

// StoredFile is one uploaded file or folder marker.
type StoredFile struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	RelativePath    string    `db:"relative_path" json:"relative_path"` // POSIX-style, drives both storage keys and tree reconstruction
	SizeBytes       int64     `db:"size_bytes" json:"size_bytes"`
	IsDirectory     bool      `db:"is_directory" json:"is_directory"`
	StorageBasePath string    `db:"storage_base_path" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// StorageKey is the object-store key holding this file's bytes.
func (f *StoredFile) StorageKey() string {
	return f.StorageBasePath + "/" + f.RelativePath
}

// UploadToken is a one-time capability proving a client may register one
// just-uploaded object. Consumed (deleted) on first use, success or failure.
type UploadToken struct {
	Token        uuid.UUID `db:"token" json:"token"`
	SessionID    uuid.UUID `db:"session_id" json:"session_id"`
	StorageKey   string    `db:"storage_key" json:"storage_key"`
	FileName     string    `db:"file_name" json:"file_name"`
	RelativePath string    `db:"relative_path" json:"relative_path"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// User is a registered code owner.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
