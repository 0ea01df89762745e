package graphql

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/jupiterclapton/postfeed/internal/auth"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

//go:embed schema.graphql
var schemaSDL string

// Resolver is the root resolver. It only holds dependencies.
type Resolver struct {
	Identity ports.IdentityService
	Feed     ports.PostService
	Logger   *slog.Logger
}

// NewSchema parses the schema against the root resolver.
func NewSchema(r *Resolver) (*graphql.Schema, error) {
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	return graphql.ParseSchema(schemaSDL, r, graphql.MaxDepth(8))
}

// NewHandler serves POST /graphql. Tokens are decoded by auth.Middleware; resolvers decide what needs one.
func NewHandler(r *Resolver) (http.Handler, error) {
	schema, err := NewSchema(r)
	if err != nil {
		return nil, err
	}
	return auth.Middleware(r.Identity)(&relay.Handler{Schema: schema}), nil
}

// --- QUERIES ---

func (r *Resolver) Posts(ctx context.Context, args struct{ Page *int32 }) (*postDataResolver, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, r.fail(ctx, err)
	}
	page := 1
	if args.Page != nil {
		page = int(*args.Page)
	}
	res, err := r.Feed.ListPosts(ctx, page)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &postDataResolver{page: res}, nil
}

func (r *Resolver) Post(ctx context.Context, args struct{ ID graphql.ID }) (*postResolver, error) {
	if _, err := auth.RequireUser(ctx); err != nil {
		return nil, r.fail(ctx, err)
	}
	p, err := r.Feed.GetPost(ctx, string(args.ID))
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &postResolver{p: p}, nil
}

func (r *Resolver) User(ctx context.Context) (*userResolver, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	u, err := r.Identity.GetUser(ctx, userID)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &userResolver{u: u}, nil
}

// --- MUTATIONS ---

type userInput struct {
	Email    string
	Name     string
	Password string
}

type postInput struct {
	Title    string
	Content  string
	ImageURL string
}

func (r *Resolver) CreateUser(ctx context.Context, args struct{ UserInput userInput }) (*userResolver, error) {
	u, err := r.Identity.Signup(ctx, ports.SignupCmd{
		Email:    args.UserInput.Email,
		Name:     args.UserInput.Name,
		Password: args.UserInput.Password,
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &userResolver{u: u}, nil
}

func (r *Resolver) Login(ctx context.Context, args struct {
	Email    string
	Password string
}) (*authDataResolver, error) {
	res, err := r.Identity.Login(ctx, ports.LoginCmd{Email: args.Email, Password: args.Password})
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &authDataResolver{res: res}, nil
}

func (r *Resolver) CreatePost(ctx context.Context, args struct{ PostInput postInput }) (*postResolver, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	p, err := r.Feed.CreatePost(ctx, ports.CreatePostCmd{
		OwnerID:  userID,
		Title:    args.PostInput.Title,
		Content:  args.PostInput.Content,
		ImageURL: args.PostInput.ImageURL,
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &postResolver{p: p}, nil
}

func (r *Resolver) UpdatePost(ctx context.Context, args struct {
	ID        graphql.ID
	PostInput postInput
}) (*postResolver, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	p, err := r.Feed.UpdatePost(ctx, ports.UpdatePostCmd{
		RequesterID: userID,
		PostID:      string(args.ID),
		Title:       args.PostInput.Title,
		Content:     args.PostInput.Content,
		ImageURL:    args.PostInput.ImageURL,
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &postResolver{p: p}, nil
}

func (r *Resolver) DeletePost(ctx context.Context, args struct{ ID graphql.ID }) (bool, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return false, r.fail(ctx, err)
	}
	if err := r.Feed.DeletePost(ctx, userID, string(args.ID)); err != nil {
		return false, r.fail(ctx, err)
	}
	return true, nil
}

func (r *Resolver) UpdateStatus(ctx context.Context, args struct{ Status string }) (*userResolver, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	u, err := r.Identity.UpdateStatus(ctx, userID, args.Status)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return &userResolver{u: u}, nil
}
