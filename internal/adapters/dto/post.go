// Package dto holds the JSON shapes shared by the REST API and the realtime channel.
package dto

import (
	"encoding/json"
	"time"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

// PostsEvent is the realtime event name for post changes.
const PostsEvent = "posts"

type Creator struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl"`
	Creator   Creator   `json:"creator"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func FromPost(p *domain.Post) Post {
	return Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		Creator:   Creator{ID: p.CreatorID, Name: p.CreatorName},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// FromPosts never returns nil so empty pages encode as [].
func FromPosts(posts []*domain.Post) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, FromPost(p))
	}
	return out
}

// PostEvent is the payload of a "posts" frame. Post holds the post id for deletes.
type PostEvent struct {
	Action string `json:"action"`
	Post   any    `json:"post"`
}

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodePostEvent renders the frame sent to realtime subscribers.
func EncodePostEvent(e domain.PostEvent) ([]byte, error) {
	payload := PostEvent{Action: string(e.Action)}
	if e.Action == domain.PostDeleted || e.Post == nil {
		payload.Post = e.PostID
	} else {
		payload.Post = FromPost(e.Post)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: PostsEvent, Data: data})
}
