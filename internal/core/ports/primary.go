package ports

import (
	"context"
	"time"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

// --- INPUTS ---

type SignupCmd struct {
	Email    string
	Name     string
	Password string
}

type LoginCmd struct {
	Email    string
	Password string
}

type CreatePostCmd struct {
	OwnerID  string
	Title    string
	Content  string
	ImageURL string
}

// UpdatePostCmd carries the resolved image: a freshly uploaded one or the current one.
// CurrentImage marks ImageURL as the client's copy of the post's existing image; any other value is rejected.
type UpdatePostCmd struct {
	RequesterID  string
	PostID       string
	Title        string
	Content      string
	ImageURL     string
	CurrentImage bool
}

// --- OUTPUTS ---

type AuthResult struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type PostPage struct {
	Posts       []*domain.Post
	TotalItems  int
	CurrentPage int
	TotalPages  int
}

// --- PRIMARY PORTS ---
// Driven by the REST and GraphQL adapters.

type IdentityService interface {
	Signup(ctx context.Context, cmd SignupCmd) (*domain.User, error)
	Login(ctx context.Context, cmd LoginCmd) (*AuthResult, error)
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)

	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetStatus(ctx context.Context, userID string) (string, error)
	UpdateStatus(ctx context.Context, userID, status string) (*domain.User, error)
}

type PostService interface {
	ListPosts(ctx context.Context, page int) (*PostPage, error)
	GetPost(ctx context.Context, postID string) (*domain.Post, error)
	CreatePost(ctx context.Context, cmd CreatePostCmd) (*domain.Post, error)
	UpdatePost(ctx context.Context, cmd UpdatePostCmd) (*domain.Post, error)
	DeletePost(ctx context.Context, requesterID, postID string) error
}
