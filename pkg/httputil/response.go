package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	pkgvalidator "github.com/jwalitptl/consult-api/pkg/validator"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: data})
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Status: "success", Data: data})
}

// RespondWithMessage sends a success response with no payload.
func RespondWithMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{Status: "success", Message: message})
}

// RespondWithError maps err onto a status code and an error envelope.
// Internal errors are reported generically; their detail stays in c.Errors
// for the request logger.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{
			Status:  "error",
			Code:    apperrors.ErrBadRequest.String(),
			Message: "validation failed",
			Errors:  pkgvalidator.Describe(verrs),
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrInternal {
		c.AbortWithStatusJSON(appErr.StatusCode(), Response{
			Status:  "error",
			Code:    appErr.Code.String(),
			Message: appErr.Message,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
		Status:  "error",
		Code:    apperrors.ErrInternal.String(),
		Message: "internal server error",
	})
}

// RespondWithBindError reports a request that could not be decoded or
// validated as a bad request.
func RespondWithBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		RespondWithError(c, err)
		return
	}
	RespondWithError(c, apperrors.BadRequest("invalid request body", err))
}
