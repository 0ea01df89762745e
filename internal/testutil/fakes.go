// Package testutil provides in-memory implementations of the secondary ports.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// --- USERS ---

// UserRepo is an in-memory ports.UserRepository. RemovePostErr, when set, is returned by RemovePost.
type UserRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string

	RemovePostErr error
}

var _ ports.UserRepository = (*UserRepo)(nil)

func NewUserRepo() *UserRepo {
	return &UserRepo{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepo) Save(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return domain.ErrEmailAlreadyExists
	}
	r.byID[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *UserRepo) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	r.byID[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepo) AddPost(ctx context.Context, userID, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PostIDs = append(u.PostIDs, postID)
	return nil
}

func (r *UserRepo) RemovePost(ctx context.Context, userID, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RemovePostErr != nil {
		return r.RemovePostErr
	}
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	kept := u.PostIDs[:0]
	for _, id := range u.PostIDs {
		if id != postID {
			kept = append(kept, id)
		}
	}
	u.PostIDs = kept
	return nil
}

// Len returns the number of stored users.
func (r *UserRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *UserRepo) name(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		return u.Name
	}
	return ""
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.PostIDs = append([]string{}, u.PostIDs...)
	return &c
}

// --- POSTS ---

type storedPost struct {
	post *domain.Post
	seq  int
}

// PostRepo orders by CreatedAt desc, falling back to insertion order for equal timestamps.
type PostRepo struct {
	mu    sync.Mutex
	posts map[string]storedPost
	seq   int
	users *UserRepo
}

var _ ports.PostRepository = (*PostRepo)(nil)

// NewPostRepo resolves creator names through users when it is not nil.
func NewPostRepo(users *UserRepo) *PostRepo {
	return &PostRepo{posts: make(map[string]storedPost), users: users}
}

func (r *PostRepo) Save(ctx context.Context, post *domain.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c := *post
	r.posts[post.ID] = storedPost{post: &c, seq: r.seq}
	return nil
}

func (r *PostRepo) FindByID(ctx context.Context, postID string) (*domain.Post, error) {
	r.mu.Lock()
	sp, ok := r.posts[postID]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrPostNotFound
	}
	return r.populate(sp.post), nil
}

func (r *PostRepo) List(ctx context.Context, offset, limit int) ([]*domain.Post, error) {
	r.mu.Lock()
	all := make([]storedPost, 0, len(r.posts))
	for _, sp := range r.posts {
		all = append(all, sp)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].post.CreatedAt.Equal(all[j].post.CreatedAt) {
			return all[i].post.CreatedAt.After(all[j].post.CreatedAt)
		}
		return all[i].seq > all[j].seq
	})

	out := []*domain.Post{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		out = append(out, r.populate(all[i].post))
	}
	return out, nil
}

func (r *PostRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts), nil
}

func (r *PostRepo) Update(ctx context.Context, post *domain.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok := r.posts[post.ID]
	if !ok {
		return domain.ErrPostNotFound
	}
	c := *post
	c.CreatorName = ""
	sp.post = &c
	r.posts[post.ID] = sp
	return nil
}

func (r *PostRepo) Delete(ctx context.Context, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[postID]; !ok {
		return domain.ErrPostNotFound
	}
	delete(r.posts, postID)
	return nil
}

func (r *PostRepo) ImageInUse(ctx context.Context, imageURL, exceptPostID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sp := range r.posts {
		if id != exceptPostID && sp.post.ImageURL == imageURL {
			return true, nil
		}
	}
	return false, nil
}

func (r *PostRepo) populate(p *domain.Post) *domain.Post {
	c := *p
	if r.users != nil {
		c.CreatorName = r.users.name(c.CreatorID)
	}
	return &c
}

// --- IMAGES ---

// Images records saved and released image URLs without touching the disk.
type Images struct {
	mu       sync.Mutex
	saved    []string
	released []string
}

var _ ports.ImageStore = (*Images)(nil)

func (s *Images) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	url := fmt.Sprintf("images/%d-%s", len(s.saved)+1, filename)
	s.saved = append(s.saved, url)
	return url, nil
}

func (s *Images) Release(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, url)
}

func (s *Images) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

func (s *Images) Released() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.released...)
}

// --- EVENTS ---

// Publisher records published events. Err, when set, is returned from every call.
type Publisher struct {
	mu     sync.Mutex
	events []domain.PostEvent
	Err    error
}

var _ ports.EventPublisher = (*Publisher)(nil)

func (p *Publisher) PublishPostEvent(ctx context.Context, event domain.PostEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

func (p *Publisher) Events() []domain.PostEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PostEvent(nil), p.events...)
}
