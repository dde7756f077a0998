package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/pkg/envelope"
	"go.uber.org/zap"
)

func errorBody(kind apperr.Kind, message string, fields map[string][]string) envelope.Error {
	return envelope.Error{Error: envelope.ErrorDetail{Code: string(kind), Message: message, Fields: fields}}
}

// Errors renders the last error a handler or middleware recorded with
// c.Error. It must be registered before every handler that can fail.
// Server errors are logged with their cause; the client only sees the
// generic message.
func Errors(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := Classify(c.Errors.Last().Err)
		if err.Kind == apperr.KindServer {
			logger.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err.Err),
			)
		}
		c.JSON(apperr.HTTPStatus(err.Kind), errorBody(err.Kind, message(err), err.Fields))
	}
}

func message(err *apperr.Error) string {
	if err.Kind == apperr.KindServer {
		return apperr.ErrServer.Message
	}
	return err.Message
}

// Classify turns binding failures into ValidationErrors and everything
// else into an *apperr.Error.
func Classify(err error) *apperr.Error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := map[string][]string{}
		for _, fe := range ve {
			name := jsonName(fe)
			fields[name] = append(fields[name], describe(fe))
		}
		return apperr.Validation(fields)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		return apperr.Field(typeErr.Field, "has the wrong type")
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Field("body", "must be valid JSON")
	}
	return apperr.From(err)
}

// jsonName maps a validator namespace like "UserInput.Email" to the
// field name clients send.
func jsonName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return "body"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a UUID"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

// Recovery turns a panic into a ServerError rendered by Errors.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		if c.Writer.Written() {
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(apperr.KindServer, apperr.ErrServer.Message, nil))
	})
}
