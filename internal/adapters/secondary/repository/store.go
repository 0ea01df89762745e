package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
)

// BackendFor picks the driver from the URL scheme.
func BackendFor(dbURL string) (Backend, error) {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return BackendPostgres, nil
	case strings.HasPrefix(dbURL, "mongodb://"), strings.HasPrefix(dbURL, "mongodb+srv://"):
		return BackendMongo, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme: %q", schemeOf(dbURL))
	}
}

func schemeOf(dbURL string) string {
	if i := strings.Index(dbURL, "://"); i >= 0 {
		return dbURL[:i]
	}
	return dbURL
}

// Store bundles the repositories of one backend with its connection lifecycle.
type Store struct {
	Backend Backend
	Users   ports.UserRepository
	Posts   ports.PostRepository

	ping  func(context.Context) error
	close func(context.Context) error
}

func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}

// Open connects, pings and prepares the schema.
func Open(ctx context.Context, dbURL, dbName string) (*Store, error) {
	backend, err := BackendFor(dbURL)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendMongo:
		return openMongo(ctx, dbURL, dbName)
	default:
		return openPostgres(ctx, dbURL)
	}
}

func openPostgres(ctx context.Context, dbURL string) (*Store, error) {
	dbConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(dbURL); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		Backend: BackendPostgres,
		Users:   NewPostgresUserRepo(pool),
		Posts:   NewPostgresPostRepo(pool),
		ping:    pool.Ping,
		close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}

func openMongo(ctx context.Context, dbURL, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dbURL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx, nil) }
	if err := ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Store{
		Backend: BackendMongo,
		Users:   NewMongoUserRepo(db),
		Posts:   NewMongoPostRepo(db),
		ping:    ping,
		close:   client.Disconnect,
	}, nil
}
