package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

const (
	usersCollection = "users"
	postsCollection = "posts"
)

// mongoUser is the stored document. Ids are uuid strings, like the Postgres rows.
type mongoUser struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	Status       string    `bson:"status"`
	Posts        []string  `bson:"posts"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type mongoPost struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	ImageURL  string    `bson:"imageUrl"`
	Creator   string    `bson:"creator"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// EnsureIndexes creates the unique email, feed ordering and image lookup indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: users index: %w", err)
	}
	_, err = db.Collection(postsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "imageUrl", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: posts index: %w", err)
	}
	return nil
}

// --- USERS ---

type MongoUserRepo struct {
	coll *mongo.Collection
}

var _ ports.UserRepository = (*MongoUserRepo)(nil)

func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(usersCollection)}
}

func (r *MongoUserRepo) Save(ctx context.Context, user *domain.User) error {
	doc := mongoUser{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Status:       user.Status,
		Posts:        append([]string{}, user.PostIDs...),
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrEmailAlreadyExists
		}
		return fmt.Errorf("mongo: insert user: %w", err)
	}
	return nil
}

func (r *MongoUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("mongo: find user: %w", err)
	}
	ids := doc.Posts
	if ids == nil {
		ids = []string{}
	}
	return &domain.User{
		ID:           doc.ID,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Status:       doc.Status,
		PostIDs:      ids,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func (r *MongoUserRepo) Update(ctx context.Context, user *domain.User) error {
	update := bson.M{"$set": bson.M{
		"name":      user.Name,
		"status":    user.Status,
		"password":  user.PasswordHash,
		"updatedAt": user.UpdatedAt,
	}}
	return r.updateOne(ctx, user.ID, update)
}

func (r *MongoUserRepo) AddPost(ctx context.Context, userID, postID string) error {
	return r.updateOne(ctx, userID, bson.M{"$push": bson.M{"posts": postID}})
}

func (r *MongoUserRepo) RemovePost(ctx context.Context, userID, postID string) error {
	return r.updateOne(ctx, userID, bson.M{"$pull": bson.M{"posts": postID}})
}

func (r *MongoUserRepo) updateOne(ctx context.Context, id string, update bson.M) error {
	res, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("mongo: update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// --- POSTS ---

type MongoPostRepo struct {
	posts *mongo.Collection
	users *mongo.Collection
}

var _ ports.PostRepository = (*MongoPostRepo)(nil)

func NewMongoPostRepo(db *mongo.Database) *MongoPostRepo {
	return &MongoPostRepo{
		posts: db.Collection(postsCollection),
		users: db.Collection(usersCollection),
	}
}

func (r *MongoPostRepo) Save(ctx context.Context, post *domain.Post) error {
	if _, err := r.posts.InsertOne(ctx, toMongoPost(post)); err != nil {
		return fmt.Errorf("mongo: insert post: %w", err)
	}
	return nil
}

func (r *MongoPostRepo) FindByID(ctx context.Context, postID string) (*domain.Post, error) {
	var doc mongoPost
	if err := r.posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPostNotFound
		}
		return nil, fmt.Errorf("mongo: find post: %w", err)
	}
	posts, err := r.populate(ctx, []mongoPost{doc})
	if err != nil {
		return nil, err
	}
	return posts[0], nil
}

func (r *MongoPostRepo) List(ctx context.Context, offset, limit int) ([]*domain.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := r.posts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list posts: %w", err)
	}
	var docs []mongoPost
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode posts: %w", err)
	}
	return r.populate(ctx, docs)
}

func (r *MongoPostRepo) Count(ctx context.Context) (int, error) {
	n, err := r.posts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongo: count posts: %w", err)
	}
	return int(n), nil
}

func (r *MongoPostRepo) Update(ctx context.Context, post *domain.Post) error {
	res, err := r.posts.UpdateByID(ctx, post.ID, bson.M{"$set": bson.M{
		"title":     post.Title,
		"content":   post.Content,
		"imageUrl":  post.ImageURL,
		"updatedAt": post.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("mongo: update post: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

func (r *MongoPostRepo) Delete(ctx context.Context, postID string) error {
	res, err := r.posts.DeleteOne(ctx, bson.M{"_id": postID})
	if err != nil {
		return fmt.Errorf("mongo: delete post: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

func (r *MongoPostRepo) ImageInUse(ctx context.Context, imageURL, exceptPostID string) (bool, error) {
	n, err := r.posts.CountDocuments(ctx,
		bson.M{"imageUrl": imageURL, "_id": bson.M{"$ne": exceptPostID}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("mongo: image lookup: %w", err)
	}
	return n > 0, nil
}

// populate resolves creator names with one query per batch.
func (r *MongoPostRepo) populate(ctx context.Context, docs []mongoPost) ([]*domain.Post, error) {
	posts := make([]*domain.Post, 0, len(docs))
	if len(docs) == 0 {
		return posts, nil
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Creator)
	}
	cur, err := r.users.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: load creators: %w", err)
	}
	var creators []struct {
		ID   string `bson:"_id"`
		Name string `bson:"name"`
	}
	if err := cur.All(ctx, &creators); err != nil {
		return nil, fmt.Errorf("mongo: decode creators: %w", err)
	}
	names := make(map[string]string, len(creators))
	for _, c := range creators {
		names[c.ID] = c.Name
	}

	for _, d := range docs {
		posts = append(posts, &domain.Post{
			ID:          d.ID,
			Title:       d.Title,
			Content:     d.Content,
			ImageURL:    d.ImageURL,
			CreatorID:   d.Creator,
			CreatorName: names[d.Creator],
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		})
	}
	return posts, nil
}

func toMongoPost(p *domain.Post) mongoPost {
	return mongoPost{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		Creator:   p.CreatorID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
