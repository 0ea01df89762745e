package graphql

import (
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// --- POST ---

type postResolver struct {
	p *domain.Post
}

func (r *postResolver) ID() graphql.ID { return graphql.ID(r.p.ID) }
func (r *postResolver) Title() string { return r.p.Title }
func (r *postResolver) Content() string { return r.p.Content }
func (r *postResolver) ImageURL() string { return r.p.ImageURL }
func (r *postResolver) CreatedAt() string { return r.p.CreatedAt.Format(time.RFC3339) }
func (r *postResolver) UpdatedAt() string { return r.p.UpdatedAt.Format(time.RFC3339) }

func (r *postResolver) Creator() *creatorResolver {
	return &creatorResolver{id: r.p.CreatorID, name: r.p.CreatorName}
}

type creatorResolver struct {
	id   string
	name string
}

func (r *creatorResolver) ID() graphql.ID { return graphql.ID(r.id) }
func (r *creatorResolver) Name() string { return r.name }

// --- FEED PAGE ---

type postDataResolver struct {
	page *ports.PostPage
}

func (r *postDataResolver) Posts() []*postResolver {
	out := make([]*postResolver, 0, len(r.page.Posts))
	for _, p := range r.page.Posts {
		out = append(out, &postResolver{p: p})
	}
	return out
}

func (r *postDataResolver) TotalPosts() int32 { return int32(r.page.TotalItems) }
func (r *postDataResolver) CurrentPage() int32 { return int32(r.page.CurrentPage) }
func (r *postDataResolver) TotalPages() int32 { return int32(r.page.TotalPages) }

// --- USER ---

type userResolver struct {
	u *domain.User
}

func (r *userResolver) ID() graphql.ID { return graphql.ID(r.u.ID) }
func (r *userResolver) Name() string { return r.u.Name }
func (r *userResolver) Email() string { return r.u.Email }
func (r *userResolver) Status() string { return r.u.Status }

func (r *userResolver) Posts() []graphql.ID {
	ids := make([]graphql.ID, 0, len(r.u.PostIDs))
	for _, id := range r.u.PostIDs {
		ids = append(ids, graphql.ID(id))
	}
	return ids
}

type authDataResolver struct {
	res *ports.AuthResult
}

func (r *authDataResolver) Token() string { return r.res.Token }
func (r *authDataResolver) UserID() graphql.ID { return graphql.ID(r.res.UserID) }
