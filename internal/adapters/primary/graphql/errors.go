package graphql

import (
	"context"
	"errors"
	"net/http"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

// Error is returned from resolvers. Its extensions carry the HTTP-style code and field details.
type Error struct {
	Message string
	Code    int
	Data    []map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Code}
	if len(e.Data) > 0 {
		ext["data"] = e.Data
	}
	return ext
}

// fail converts a core error. Internal failures are logged and masked.
func (r *Resolver) fail(ctx context.Context, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		r.Logger.ErrorContext(ctx, "graphql resolver failed", "error", err)
		return &Error{Message: "An internal error occurred.", Code: http.StatusInternalServerError}
	}

	out := &Error{Message: de.Message, Code: de.Kind.HTTPStatus()}
	for _, f := range de.Fields {
		out.Data = append(out.Data, map[string]string{"field": f.Field, "message": f.Message})
	}
	return out
}
