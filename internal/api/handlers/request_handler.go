package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"refill-api-server/internal/models"
	"refill-api-server/internal/workflow"
)

// RequestHandler serves item requests.
type RequestHandler struct {
	Requests *workflow.ItemRequests
}

type CreateItemsRequest struct {
	Items []models.LineItem `json:"items" binding:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req CreateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	created, err := h.Requests.Create(c.Request.Context(), caller(c), req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, created, "Request created successfully")
}

// List returns every request, or only those in ?status when given.
func (h *RequestHandler) List(c *gin.Context) {
	if c.Query("status") != "" {
		status, err := statusParam(c, "")
		if err != nil {
			fail(c, err)
			return
		}
		requests, err := h.Requests.ListByStatus(c.Request.Context(), status)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, requests, "Requests retrieved successfully")
		return
	}
	requests, err := h.Requests.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, requests, "Requests retrieved successfully")
}

func (h *RequestHandler) LoadMore(c *gin.Context) {
	size, err := pageSize(c)
	if err != nil {
		fail(c, err)
		return
	}
	cursor := c.Query("continuationToken")
	if c.Query("status") == "" {
		page, err := h.Requests.Page(c.Request.Context(), cursor, size)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, pageResponse(page), "Requests retrieved successfully")
		return
	}
	status, err := statusParam(c, "")
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.Requests.PageByStatus(c.Request.Context(), status, cursor, size)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, pageResponse(page), "Requests retrieved successfully")
}

func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.Requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, request, "Request retrieved successfully")
}

// UpdateStatus takes the target status from the JSON body or ?status.
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, bindError(err))
			return
		}
	}
	status, err := statusParam(c, req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	updated, err := h.Requests.UpdateStatus(c.Request.Context(), caller(c), c.Param("id"), status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, updated, "Request status updated successfully")
}

func (h *RequestHandler) Delete(c *gin.Context) {
	if err := h.Requests.Delete(c.Request.Context(), caller(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, true, "Request deleted successfully")
}
