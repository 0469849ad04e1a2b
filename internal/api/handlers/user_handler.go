package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"refill-api-server/internal/directory"
	"refill-api-server/internal/models"
)

// UserHandler manages the notification directory.
type UserHandler struct {
	Directory *directory.Directory
}

type UserRequest struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

func (r UserRequest) details() models.UserDetails {
	return models.UserDetails{
		UserID:    r.UserID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Role:      r.Role,
	}
}

func (h *UserHandler) Create(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	u := req.details()
	if err := h.Directory.Create(c.Request.Context(), &u); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, u, "User created successfully")
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.Directory.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, users, "Users retrieved successfully")
}

func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.Directory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, u, "User retrieved successfully")
}

// Update applies the non-empty fields of the body.
func (h *UserHandler) Update(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	u, err := h.Directory.Update(c.Request.Context(), c.Param("id"), req.details())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, u, "User updated successfully")
}

func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.Directory.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, true, "User deleted successfully")
}
