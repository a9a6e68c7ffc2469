package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChecksumType enumerates the digest algorithms accepted for box files.
// Vagrant only supports these three.
type ChecksumType string

const (
	ChecksumMD5    ChecksumType = "md5"
	ChecksumSHA1   ChecksumType = "sha1"
	ChecksumSHA256 ChecksumType = "sha256"
)

// Valid reports whether t is one of the supported algorithms.
func (t ChecksumType) Valid() bool {
	switch t {
	case ChecksumMD5, ChecksumSHA1, ChecksumSHA256:
		return true
	}
	return false
}

// UploadStatus is the lifecycle state of a BoxUpload.
type UploadStatus string

const (
	UploadStarted    UploadStatus = "started"
	UploadInProgress UploadStatus = "in_progress"
	UploadCompleted  UploadStatus = "completed"
)

// Visibility of a box.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// User represents a box owner
type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	IsStaff   bool      `json:"is_staff" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the user ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Box is the top-level published artifact, unique per (owner, name).
type Box struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey"`
	OwnerID      uuid.UUID  `json:"owner_id" gorm:"uniqueIndex:idx_owner_name;not null"`
	Name         string     `json:"name" gorm:"uniqueIndex:idx_owner_name;not null"`
	Description  string     `json:"description"`
	Visibility   Visibility `json:"visibility" gorm:"default:private"`
	DateCreated  time.Time  `json:"date_created" gorm:"not null"`
	DateModified time.Time  `json:"date_modified" gorm:"not null"`

	Owner    User         `json:"owner" gorm:"foreignKey:OwnerID"`
	Versions []BoxVersion `json:"-" gorm:"foreignKey:BoxID"`
}

// BeforeCreate generates a UUID for the box ID
func (b *Box) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Tag returns the owner/name identifier clients use to address the box.
func (b *Box) Tag() string {
	return b.Owner.Username + "/" + b.Name
}

// BoxVersion is a release line under a box, unique per (box, version).
// The version string is validated against the strict X.Y(.Z) pattern
// before a row is ever created.
type BoxVersion struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey"`
	BoxID        uuid.UUID `json:"box_id" gorm:"uniqueIndex:idx_box_version;not null"`
	Version      string    `json:"version" gorm:"uniqueIndex:idx_box_version;not null"`
	DateCreated  time.Time `json:"date_created" gorm:"not null"`
	DateModified time.Time `json:"date_modified" gorm:"not null"`

	Box       Box           `json:"-" gorm:"foreignKey:BoxID"`
	Providers []BoxProvider `json:"providers" gorm:"foreignKey:VersionID"`
}

// BeforeCreate generates a UUID for the version ID
func (v *BoxVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// BoxProvider is the durable binary for one (version, provider) pair.
// Its file content is immutable once written; only the pull counter moves.
// The unique index on (version, provider) is what makes promotion
// exactly-once under concurrent completions.
type BoxProvider struct {
	ID           uuid.UUID    `json:"id" gorm:"primaryKey"`
	VersionID    uuid.UUID    `json:"version_id" gorm:"uniqueIndex:idx_version_provider;not null"`
	Provider     string       `json:"provider" gorm:"uniqueIndex:idx_version_provider;not null"`
	FileSize     int64        `json:"file_size"`
	ChecksumType ChecksumType `json:"checksum_type" gorm:"not null"`
	Checksum     string       `json:"checksum" gorm:"not null"`
	StoragePath  string       `json:"-" gorm:"not null"`
	Pulls        int64        `json:"pulls" gorm:"default:0"`
	DateCreated  time.Time    `json:"date_created" gorm:"not null"`
	DateModified time.Time    `json:"date_modified" gorm:"not null"`

	Version BoxVersion `json:"-" gorm:"foreignKey:VersionID"`
}

// BeforeCreate generates a UUID for the provider ID
func (p *BoxProvider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// BoxUpload is one resumable upload attempt for a (version, provider)
// pair. All transfer state lives here so a chunk request carries no
// in-process state between requests.
type BoxUpload struct {
	ID            uuid.UUID    `json:"id" gorm:"primaryKey"`
	BoxID         uuid.UUID    `json:"box_id" gorm:"not null;index"`
	Version       string       `json:"version" gorm:"not null"`
	Provider      string       `json:"provider" gorm:"not null"`
	FileSize      int64        `json:"file_size" gorm:"not null"`
	Offset        int64        `json:"offset" gorm:"default:0"`
	ChecksumType  ChecksumType `json:"checksum_type" gorm:"not null"`
	Checksum      string       `json:"checksum" gorm:"not null"`
	Status        UploadStatus `json:"status" gorm:"default:started"`
	DateCreated   time.Time    `json:"date_created" gorm:"not null"`
	DateModified  time.Time    `json:"date_modified" gorm:"not null"`
	DateCompleted *time.Time   `json:"date_completed"`

	Box Box `json:"-" gorm:"foreignKey:BoxID"`
}

// BeforeCreate generates a UUID for the upload ID
func (u *BoxUpload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the upload is past its TTL window, measured
// from creation regardless of status.
func (u *BoxUpload) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(u.DateCreated) > ttl
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// AuthToken represents a signed JWT handed back on login
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uuid.UUID `json:"user_id"`
}
