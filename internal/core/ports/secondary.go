package ports

import (
	"context"
	"io"
	"time"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

// --- PERSISTENCE ---

// UserRepository returns domain.ErrUserNotFound for unknown ids/emails and
// domain.ErrEmailAlreadyExists when Save hits the unique email constraint.
type UserRepository interface {
	Save(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error

	// Owned post list maintenance.
	AddPost(ctx context.Context, userID, postID string) error
	RemovePost(ctx context.Context, userID, postID string) error
}

// PostRepository reads populate Post.CreatorName.
type PostRepository interface {
	Save(ctx context.Context, post *domain.Post) error
	FindByID(ctx context.Context, postID string) (*domain.Post, error)
	// List returns posts newest first.
	List(ctx context.Context, offset, limit int) ([]*domain.Post, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, post *domain.Post) error
	Delete(ctx context.Context, postID string) error
	// ImageInUse reports whether a post other than exceptPostID references imageURL.
	ImageInUse(ctx context.Context, imageURL, exceptPostID string) (bool, error)
}

// --- SECURITY ---

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenClaims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type TokenProvider interface {
	Issue(userID, email string) (token string, expiresAt time.Time, err error)
	Validate(token string) (*TokenClaims, error)
}

// --- FILES ---

// ImageStore keeps uploaded post images. Release is best effort and never blocks.
type ImageStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (imageURL string, err error)
	Release(imageURL string)
}

// --- FAN-OUT ---

type EventPublisher interface {
	PublishPostEvent(ctx context.Context, event domain.PostEvent) error
}
