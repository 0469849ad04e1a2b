package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"refill-api-server/internal/api/middleware"
	"refill-api-server/internal/apperror"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/models"
	"refill-api-server/internal/store"
)

// Response is the success envelope every handler returns.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func ok(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Response{Success: true, Data: data, Message: message})
}

// fail hands err to middleware.ErrorHandler.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func bindError(err error) *apperror.AppError {
	return apperror.NewValidation("Invalid request body").WithDetail("reason", err.Error())
}

func caller(c *gin.Context) identity.Identity {
	id, _ := middleware.CurrentIdentity(c)
	return id
}

func pageSize(c *gin.Context) (int, error) {
	raw := c.Query("pageSize")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.NewValidation("pageSize must be a positive integer").WithDetail("pageSize", raw)
	}
	return n, nil
}

// statusParam reads the status from the query or, failing that, from body.
func statusParam(c *gin.Context, raw string) (models.RequestStatus, error) {
	if raw == "" {
		raw = c.Query("status")
	}
	if strings.TrimSpace(raw) == "" {
		return "", apperror.NewValidation("status is required")
	}
	status, err := models.ParseRequestStatus(raw)
	if err != nil {
		return "", apperror.NewValidation(err.Error())
	}
	return status, nil
}

// PageResponse is store.Page on the wire. Items is never null and an empty
// continuationToken means there are no more pages.
type PageResponse[T any] struct {
	Items             []T    `json:"items"`
	ContinuationToken string `json:"continuationToken"`
}

func pageResponse[T any](p store.Page[T]) PageResponse[T] {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return PageResponse[T]{Items: items, ContinuationToken: p.NextCursor}
}
