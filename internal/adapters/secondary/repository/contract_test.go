package repository

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

// openTestStore connects to the database named by env, or skips when it is unset.
func openTestStore(t *testing.T, env string) *Store {
	t.Helper()
	dbURL := os.Getenv(env)
	if dbURL == "" {
		t.Skipf("%s not set", env)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := Open(ctx, dbURL, "postfeed_test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestPostgresStore(t *testing.T) {
	runStoreContract(t, openTestStore(t, "TEST_DB_URL"))
}

func TestMongoStore(t *testing.T) {
	runStoreContract(t, openTestStore(t, "TEST_MONGO_URL"))
}

func runStoreContract(t *testing.T, store *Store) {
	ctx := context.Background()
	suffix := uuid.NewString()

	owner := domain.NewUser("owner-"+suffix+"@test.com", "Max", "hash")
	if err := store.Users.Save(ctx, owner); err != nil {
		t.Fatalf("save user: %v", err)
	}

	t.Run("duplicate email", func(t *testing.T) {
		dup := domain.NewUser(owner.Email, "Other", "hash")
		if err := store.Users.Save(ctx, dup); !errors.Is(err, domain.ErrEmailAlreadyExists) {
			t.Fatalf("Save duplicate = %v, want conflict", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := store.Users.GetByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("GetByID = %v, want not found", err)
		}
		if err := store.Users.AddPost(ctx, uuid.NewString(), uuid.NewString()); !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("AddPost = %v, want not found", err)
		}
	})

	t.Run("status", func(t *testing.T) {
		owner.SetStatus("Busy")
		if err := store.Users.Update(ctx, owner); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := store.Users.GetByEmail(ctx, owner.Email)
		if err != nil || got.Status != "Busy" {
			t.Fatalf("GetByEmail = %+v, %v", got, err)
		}
	})

	image := "images/" + suffix + ".png"
	post := domain.NewPost(owner.ID, "Stored post", "Some content", image)

	t.Run("create and link", func(t *testing.T) {
		if err := store.Posts.Save(ctx, post); err != nil {
			t.Fatalf("save post: %v", err)
		}
		if err := store.Users.AddPost(ctx, owner.ID, post.ID); err != nil {
			t.Fatalf("AddPost: %v", err)
		}

		u, err := store.Users.GetByID(ctx, owner.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if !slices.Equal(u.PostIDs, []string{post.ID}) {
			t.Fatalf("user posts = %v, want [%s]", u.PostIDs, post.ID)
		}

		got, err := store.Posts.FindByID(ctx, post.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.CreatorName != "Max" || got.CreatorID != owner.ID || got.ImageURL != image {
			t.Fatalf("stored post = %+v", got)
		}

		page, err := store.Posts.List(ctx, 0, 1)
		if err != nil || len(page) != 1 || page[0].ID != post.ID {
			t.Fatalf("List = %v, %v; want newest post first", page, err)
		}
		if n, err := store.Posts.Count(ctx); err != nil || n < 1 {
			t.Fatalf("Count = %d, %v", n, err)
		}
	})

	t.Run("image in use", func(t *testing.T) {
		used, err := store.Posts.ImageInUse(ctx, image, "")
		if err != nil || !used {
			t.Fatalf("ImageInUse(any) = %v, %v; want true", used, err)
		}
		used, err = store.Posts.ImageInUse(ctx, image, post.ID)
		if err != nil || used {
			t.Fatalf("ImageInUse(except own) = %v, %v; want false", used, err)
		}
	})

	t.Run("update", func(t *testing.T) {
		post.Edit("Edited title", "Edited content", image)
		if err := store.Posts.Update(ctx, post); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := store.Posts.FindByID(ctx, post.ID)
		if err != nil || got.Title != "Edited title" || got.Content != "Edited content" {
			t.Fatalf("FindByID = %+v, %v", got, err)
		}
	})

	t.Run("delete and unlink", func(t *testing.T) {
		if err := store.Posts.Delete(ctx, post.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := store.Users.RemovePost(ctx, owner.ID, post.ID); err != nil {
			t.Fatalf("RemovePost: %v", err)
		}

		u, err := store.Users.GetByID(ctx, owner.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if slices.Contains(u.PostIDs, post.ID) {
			t.Fatalf("user posts = %v still hold %s", u.PostIDs, post.ID)
		}
		if _, err := store.Posts.FindByID(ctx, post.ID); !errors.Is(err, domain.ErrPostNotFound) {
			t.Fatalf("FindByID after delete = %v, want not found", err)
		}
		if err := store.Posts.Delete(ctx, post.ID); !errors.Is(err, domain.ErrPostNotFound) {
			t.Fatalf("second Delete = %v, want not found", err)
		}
	})
}
