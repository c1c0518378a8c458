package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/clinicore/encounter-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes err as a JSON error response. Typed application errors map
// to their HTTP status and carry their code and field violations; anything
// else is a 500 with a generic message.
func Error(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	resp := &Response{
		Status:  "error",
		Message: appErr.Message,
		Code:    appErr.Code.String(),
	}
	if len(appErr.Violations) > 0 {
		resp.Errors = appErr.Violations
	}
	c.JSON(appErr.StatusCode(), resp)
}

// ActorID returns the authenticated actor recorded by the auth middleware.
func ActorID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get("actor_id"); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
