package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jupiterclapton/postfeed/internal/adapters/dto"
	"github.com/jupiterclapton/postfeed/internal/adapters/secondary/storage"
	"github.com/jupiterclapton/postfeed/internal/auth"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

type Handler struct {
	identity ports.IdentityService
	posts    ports.PostService
	images   ports.ImageStore
	logger   *slog.Logger
}

// --- REQUESTS ---

type signupRequest struct {
	Email    string `json:"email" form:"email"`
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type statusRequest struct {
	Status string `json:"status" form:"status"`
}

type postForm struct {
	Title   string `json:"title" form:"title"`
	Content string `json:"content" form:"content"`
	Image   string `json:"image" form:"image"` // current image path on updates
}

// --- AUTH ---

func (h *Handler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	user, err := h.identity.Signup(c.Request().Context(), ports.SignupCmd{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User created successfully",
		"userId":  user.ID,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	res, err := h.identity.Login(c.Request().Context(), ports.LoginCmd{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token":  res.Token,
		"userId": res.UserID,
	})
}

func (h *Handler) GetStatus(c echo.Context) error {
	status, err := h.identity.GetStatus(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": status})
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if _, err := h.identity.UpdateStatus(c.Request().Context(), auth.UserID(c), req.Status); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User status updated successfully"})
}

// --- FEED ---

func (h *Handler) ListPosts(c echo.Context) error {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil {
		page = 1
	}

	res, err := h.posts.ListPosts(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":     "Posts fetched successfully.",
		"posts":       dto.FromPosts(res.Posts),
		"totalItems":  res.TotalItems,
		"currentPage": res.CurrentPage,
		"totalPages":  res.TotalPages,
	})
}

func (h *Handler) GetPost(c echo.Context) error {
	post, err := h.posts.GetPost(c.Request().Context(), c.Param("postId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Post fetched successfully.",
		"post":    dto.FromPost(post),
	})
}

func (h *Handler) CreatePost(c echo.Context) error {
	var form postForm
	if err := c.Bind(&form); err != nil {
		return err
	}
	uploaded, err := h.saveUpload(c)
	if err != nil {
		return err
	}

	post, err := h.posts.CreatePost(c.Request().Context(), ports.CreatePostCmd{
		OwnerID:  auth.UserID(c),
		Title:    form.Title,
		Content:  form.Content,
		ImageURL: uploaded,
	})
	if err != nil {
		h.discard(uploaded)
		return err
	}

	out := dto.FromPost(post)
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Post created successfully!",
		"post":    out,
		"creator": out.Creator,
	})
}

func (h *Handler) UpdatePost(c echo.Context) error {
	var form postForm
	if err := c.Bind(&form); err != nil {
		return err
	}
	uploaded, err := h.saveUpload(c)
	if err != nil {
		return err
	}

	// A fresh upload wins over the image field, which can only name the current image.
	imageURL := form.Image
	if uploaded != "" {
		imageURL = uploaded
	}

	post, err := h.posts.UpdatePost(c.Request().Context(), ports.UpdatePostCmd{
		RequesterID:  auth.UserID(c),
		PostID:       c.Param("postId"),
		Title:        form.Title,
		Content:      form.Content,
		ImageURL:     imageURL,
		CurrentImage: uploaded == "",
	})
	if err != nil {
		h.discard(uploaded)
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Post updated successfully!",
		"post":    dto.FromPost(post),
	})
}

func (h *Handler) DeletePost(c echo.Context) error {
	if err := h.posts.DeletePost(c.Request().Context(), auth.UserID(c), c.Param("postId")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Post deleted successfully."})
}

// --- IMAGES ---

// UploadImage stores an image ahead of a GraphQL createPost/updatePost.
// The replaced image is released by updatePost once the post points at the new one.
func (h *Handler) UploadImage(c echo.Context) error {
	uploaded, err := h.saveUpload(c)
	if err != nil {
		return err
	}
	if uploaded == "" {
		return c.JSON(http.StatusOK, echo.Map{"message": "No file provided!"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":  "File stored.",
		"filePath": uploaded,
	})
}

// saveUpload stores the "image" file part. Missing files and unsupported types yield "".
func (h *Handler) saveUpload(c echo.Context) (string, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid multipart form.")
	}
	if !storage.AllowedContentType(fh.Header.Get("Content-Type")) {
		h.logger.Debug("ignoring upload with unsupported type", "filename", fh.Filename, "content_type", fh.Header.Get("Content-Type"))
		return "", nil
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	return h.images.Save(c.Request().Context(), fh.Filename, f)
}

func (h *Handler) discard(uploaded string) {
	if uploaded != "" {
		h.images.Release(uploaded)
	}
}
