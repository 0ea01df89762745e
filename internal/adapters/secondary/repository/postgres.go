package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// sqlUser buffers between table columns and the domain entity.
type sqlUser struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       string
	PostIDs      []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// --- USERS ---

type PostgresUserRepo struct {
	db *pgxpool.Pool
}

var _ ports.UserRepository = (*PostgresUserRepo)(nil)

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

func (r *PostgresUserRepo) Save(ctx context.Context, user *domain.User) error {
	q := `
		INSERT INTO users (id, name, email, password_hash, status, created_at, updated_at)
		VALUES (@id, @name, @email, @password_hash, @status, @created_at, @updated_at)
	`
	args := pgx.NamedArgs{
		"id":            user.ID,
		"name":          user.Name,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"status":        user.Status,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	}

	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return handleError(err)
	}
	return nil
}

// The owned post list is derived from posts.creator_id.
const selectUser = `
	SELECT u.id, u.name, u.email, u.password_hash, u.status,
	       ARRAY(SELECT p.id FROM posts p WHERE p.creator_id = u.id ORDER BY p.created_at, p.id),
	       u.created_at, u.updated_at
	FROM users u
`

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, selectUser+`WHERE u.id = $1`, id)
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, selectUser+`WHERE u.email = $1`, email)
}

func (r *PostgresUserRepo) getOne(ctx context.Context, q string, arg string) (*domain.User, error) {
	var u sqlUser
	err := r.db.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Status, &u.PostIDs, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("db: get user: %w", err)
	}
	return u.toDomain(), nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, user *domain.User) error {
	q := `
		UPDATE users
		SET name = @name, status = @status, password_hash = @password_hash, updated_at = @updated_at
		WHERE id = @id
	`
	args := pgx.NamedArgs{
		"id":            user.ID,
		"name":          user.Name,
		"status":        user.Status,
		"password_hash": user.PasswordHash,
		"updated_at":    user.UpdatedAt,
	}

	tag, err := r.db.Exec(ctx, q, args)
	if err != nil {
		return handleError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// AddPost only checks the owner: the foreign key on posts already links them.
func (r *PostgresUserRepo) AddPost(ctx context.Context, userID, postID string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("db: add post: %w", err)
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}

// RemovePost is a no-op: deleting the post row removes it from the derived list.
func (r *PostgresUserRepo) RemovePost(ctx context.Context, userID, postID string) error {
	return nil
}

func (u *sqlUser) toDomain() *domain.User {
	ids := u.PostIDs
	if ids == nil {
		ids = []string{}
	}
	return &domain.User{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       u.Status,
		PostIDs:      ids,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// --- POSTS ---

type PostgresPostRepo struct {
	db *pgxpool.Pool
}

var _ ports.PostRepository = (*PostgresPostRepo)(nil)

func NewPostgresPostRepo(pool *pgxpool.Pool) *PostgresPostRepo {
	return &PostgresPostRepo{db: pool}
}

const selectPost = `
	SELECT p.id, p.title, p.content, p.image_url, p.creator_id, u.name, p.created_at, p.updated_at
	FROM posts p
	JOIN users u ON u.id = p.creator_id
`

func (r *PostgresPostRepo) Save(ctx context.Context, post *domain.Post) error {
	q := `
		INSERT INTO posts (id, title, content, image_url, creator_id, created_at, updated_at)
		VALUES (@id, @title, @content, @image_url, @creator_id, @created_at, @updated_at)
	`
	args := pgx.NamedArgs{
		"id":         post.ID,
		"title":      post.Title,
		"content":    post.Content,
		"image_url":  post.ImageURL,
		"creator_id": post.CreatorID,
		"created_at": post.CreatedAt,
		"updated_at": post.UpdatedAt,
	}

	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return handleError(err)
	}
	return nil
}

func (r *PostgresPostRepo) FindByID(ctx context.Context, postID string) (*domain.Post, error) {
	post, err := scanPost(r.db.QueryRow(ctx, selectPost+`WHERE p.id = $1`, postID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, fmt.Errorf("db: find post: %w", err)
	}
	return post, nil
}

func (r *PostgresPostRepo) List(ctx context.Context, offset, limit int) ([]*domain.Post, error) {
	q := selectPost + `ORDER BY p.created_at DESC, p.id DESC OFFSET $1 LIMIT $2`

	rows, err := r.db.Query(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list posts: %w", err)
	}
	defer rows.Close()

	posts := []*domain.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: list posts: %w", err)
	}
	return posts, nil
}

func (r *PostgresPostRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db: count posts: %w", err)
	}
	return n, nil
}

func (r *PostgresPostRepo) Update(ctx context.Context, post *domain.Post) error {
	q := `
		UPDATE posts
		SET title = @title, content = @content, image_url = @image_url, updated_at = @updated_at
		WHERE id = @id
	`
	args := pgx.NamedArgs{
		"id":         post.ID,
		"title":      post.Title,
		"content":    post.Content,
		"image_url":  post.ImageURL,
		"updated_at": post.UpdatedAt,
	}

	tag, err := r.db.Exec(ctx, q, args)
	if err != nil {
		return handleError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

func (r *PostgresPostRepo) Delete(ctx context.Context, postID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return handleError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

func (r *PostgresPostRepo) ImageInUse(ctx context.Context, imageURL, exceptPostID string) (bool, error) {
	var used bool
	q := `SELECT EXISTS (SELECT 1 FROM posts WHERE image_url = $1 AND id <> $2)`
	if err := r.db.QueryRow(ctx, q, imageURL, exceptPostID).Scan(&used); err != nil {
		return false, fmt.Errorf("db: image lookup: %w", err)
	}
	return used, nil
}

// --- HELPERS ---

func scanPost(row pgx.Row) (*domain.Post, error) {
	var p domain.Post
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.ImageURL, &p.CreatorID, &p.CreatorName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// handleError translates PostgreSQL error codes into domain errors.
func handleError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return domain.ErrEmailAlreadyExists
		case "23503": // foreign_key_violation
			return domain.ErrUserNotFound
		}
	}
	return fmt.Errorf("db: %w", err)
}
