package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const minPostFieldLength = 5

type Post struct {
	ID          string
	Title       string
	Content     string
	ImageURL    string
	CreatorID   string
	CreatorName string // populated on reads, not persisted with the post
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewPost(creatorID, title, content, imageURL string) *Post {
	now := time.Now().UTC()
	return &Post{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Content:   strings.TrimSpace(content),
		ImageURL:  imageURL,
		CreatorID: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *Post) OwnedBy(userID string) bool {
	return userID != "" && p.CreatorID == userID
}

// Edit replaces the editable fields and returns the previous image when it changed.
func (p *Post) Edit(title, content, imageURL string) (replacedImage string) {
	if imageURL != p.ImageURL {
		replacedImage = p.ImageURL
	}
	p.Title = strings.TrimSpace(title)
	p.Content = strings.TrimSpace(content)
	p.ImageURL = imageURL
	p.UpdatedAt = time.Now().UTC()
	return replacedImage
}

// ValidatePostFields applies the length rules to trimmed title and content.
func ValidatePostFields(title, content string) []FieldError {
	var fields []FieldError
	if utf8.RuneCountInString(strings.TrimSpace(title)) < minPostFieldLength {
		fields = append(fields, FieldError{Field: "title", Message: "Title must be at least 5 characters long."})
	}
	if utf8.RuneCountInString(strings.TrimSpace(content)) < minPostFieldLength {
		fields = append(fields, FieldError{Field: "content", Message: "Content must be at least 5 characters long."})
	}
	return fields
}

// --- EVENTS ---

type PostAction string

const (
	PostCreated PostAction = "create"
	PostUpdated PostAction = "update"
	PostDeleted PostAction = "delete"
)

// PostEvent is broadcast to realtime subscribers. Delete events only carry PostID.
type PostEvent struct {
	Action PostAction
	Post   *Post
	PostID string
}
