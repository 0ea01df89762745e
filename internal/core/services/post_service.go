package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// PostsPerPage is the fixed feed page size.
const PostsPerPage = 2

const publishTimeout = 5 * time.Second

// maxPage is the last page whose offset fits in an int.
const maxPage = math.MaxInt/PostsPerPage + 1

// PostService implements ports.PostService.
type PostService struct {
	posts     ports.PostRepository
	users     ports.UserRepository
	images    ports.ImageStore
	publisher ports.EventPublisher
	logger    *slog.Logger

	wg sync.WaitGroup // in-flight publications
}

func NewPostService(
	posts ports.PostRepository,
	users ports.UserRepository,
	images ports.ImageStore,
	pub ports.EventPublisher,
	logger *slog.Logger,
) *PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostService{
		posts:     posts,
		users:     users,
		images:    images,
		publisher: pub,
		logger:    logger,
	}
}

// --- READ ---

func (s *PostService) ListPosts(ctx context.Context, page int) (*ports.PostPage, error) {
	// 1. Une page absente ou invalide vaut 1
	if page < 1 {
		page = 1
	}

	// 2. Total et page en parallèle
	var (
		total int
		posts []*domain.Post
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.posts.Count(gctx)
		if err != nil {
			return fmt.Errorf("count posts: %w", err)
		}
		total = n
		return nil
	})
	// Au-delà de maxPage l'offset déborde : la page est forcément vide, on ne lit que le total.
	if page <= maxPage {
		g.Go(func() error {
			list, err := s.posts.List(gctx, (page-1)*PostsPerPage, PostsPerPage)
			if err != nil {
				return fmt.Errorf("list posts: %w", err)
			}
			posts = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 3. Une page vide reste une liste, jamais nil
	if posts == nil {
		posts = []*domain.Post{}
	}
	return &ports.PostPage{
		Posts:       posts,
		TotalItems:  total,
		CurrentPage: page,
		TotalPages:  (total + PostsPerPage - 1) / PostsPerPage,
	}, nil
}

func (s *PostService) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	return s.posts.FindByID(ctx, postID)
}

// --- WRITE ---

func (s *PostService) CreatePost(ctx context.Context, cmd ports.CreatePostCmd) (*domain.Post, error) {
	// 1. Règles de saisie (titre, contenu, image obligatoire)
	if fields := domain.ValidatePostFields(cmd.Title, cmd.Content); len(fields) > 0 {
		return nil, domain.Validation("Validation failed, entered data is incorrect.", fields...)
	}
	if cmd.ImageURL == "" {
		return nil, domain.Validation("No image provided.",
			domain.FieldError{Field: "image", Message: "No image provided."})
	}

	// 2. Le créateur doit exister au moment de l'écriture
	owner, err := s.users.GetByID(ctx, cmd.OwnerID)
	if err != nil {
		return nil, err
	}

	// 3. L'image ne doit appartenir à aucun autre post
	if err := s.checkImageFree(ctx, cmd.ImageURL, ""); err != nil {
		return nil, err
	}

	// 4. Persistance puis rattachement au créateur
	post := domain.NewPost(owner.ID, cmd.Title, cmd.Content, cmd.ImageURL)
	if err := s.posts.Save(ctx, post); err != nil {
		return nil, fmt.Errorf("save post: %w", err)
	}
	if err := s.users.AddPost(ctx, owner.ID, post.ID); err != nil {
		return nil, fmt.Errorf("link post to user: %w", err)
	}
	post.CreatorName = owner.Name

	// 5. Diffusion aux abonnés (async)
	s.publish(ctx, domain.PostEvent{Action: domain.PostCreated, Post: post, PostID: post.ID})
	return post, nil
}

func (s *PostService) UpdatePost(ctx context.Context, cmd ports.UpdatePostCmd) (*domain.Post, error) {
	// 1. Règles de saisie
	if fields := domain.ValidatePostFields(cmd.Title, cmd.Content); len(fields) > 0 {
		return nil, domain.Validation("Validation failed, entered data is incorrect.", fields...)
	}
	if cmd.ImageURL == "" {
		return nil, domain.Validation("No file picked!",
			domain.FieldError{Field: "image", Message: "No file picked!"})
	}

	// 2. Seul le créateur peut modifier son post
	post, err := s.posts.FindByID(ctx, cmd.PostID)
	if err != nil {
		return nil, err
	}
	if !post.OwnedBy(cmd.RequesterID) {
		return nil, domain.ErrNotAuthorized
	}

	// 3. Une nouvelle image doit être libre ; l'image "courante" envoyée par le client doit être la vraie
	if cmd.ImageURL != post.ImageURL {
		if cmd.CurrentImage {
			return nil, errForeignImage
		}
		if err := s.checkImageFree(ctx, cmd.ImageURL, post.ID); err != nil {
			return nil, err
		}
	}

	// 4. Persistance, puis suppression de l'ancienne image si elle a été remplacée
	replaced := post.Edit(cmd.Title, cmd.Content, cmd.ImageURL)
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	if replaced != "" {
		s.images.Release(replaced)
	}

	// 5. Diffusion
	s.publish(ctx, domain.PostEvent{Action: domain.PostUpdated, Post: post, PostID: post.ID})
	return post, nil
}

func (s *PostService) DeletePost(ctx context.Context, requesterID, postID string) error {
	// 1. Seul le créateur peut supprimer son post
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if !post.OwnedBy(requesterID) {
		return domain.ErrNotAuthorized
	}

	// 2. Suppression du post et de son image
	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.images.Release(post.ImageURL)

	// 3. Détachement du créateur
	// Le post n'existe plus : un échec ici est journalisé, l'événement part quand même
	if err := s.users.RemovePost(ctx, post.CreatorID, post.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to unlink deleted post from its creator",
			"post_id", post.ID,
			"user_id", post.CreatorID,
			"error", err,
		)
	}

	// 4. Diffusion
	s.publish(ctx, domain.PostEvent{Action: domain.PostDeleted, PostID: post.ID})
	return nil
}

var errForeignImage = domain.Validation("Image does not belong to this post.",
	domain.FieldError{Field: "image", Message: "Image does not belong to this post."})

// checkImageFree rejects an image referenced by any post other than exceptPostID.
func (s *PostService) checkImageFree(ctx context.Context, imageURL, exceptPostID string) error {
	used, err := s.posts.ImageInUse(ctx, imageURL, exceptPostID)
	if err != nil {
		return fmt.Errorf("image lookup: %w", err)
	}
	if used {
		return errForeignImage
	}
	return nil
}

// --- FAN-OUT ---

// publish is fire-and-forget: the request never waits on subscribers.
func (s *PostService) publish(ctx context.Context, event domain.PostEvent) {
	if s.publisher == nil {
		return
	}
	if event.Post != nil {
		snapshot := *event.Post
		event.Post = &snapshot
	}

	// Le contexte de la requête meurt avec la réponse : on garde ses valeurs (trace) sans son annulation
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		if err := s.publisher.PublishPostEvent(ctx, event); err != nil {
			s.logger.Error("failed to publish post event",
				"action", event.Action,
				"post_id", event.PostID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until pending publications are done.
func (s *PostService) Wait() {
	s.wg.Wait()
}
