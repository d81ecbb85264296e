package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/unichat/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data any) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// Error sends an error response. Errors that carry no business code are reported as internal errors.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithCode(ctx, c, errcode.From(err))
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	if e == nil {
		e = errcode.ErrInternalServer
	}
	c.JSON(http.StatusOK, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	if e == nil {
		e = errcode.ErrUnauthorized
	}
	c.JSON(http.StatusUnauthorized, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// TooManyRequests sends a 429 response
func TooManyRequests(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusTooManyRequests, Response{
		Code: errcode.ErrTooManyRequests.Code,
		Msg:  errcode.ErrTooManyRequests.Msg,
	})
}
