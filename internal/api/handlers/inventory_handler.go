package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/ledger"
	"refill-api-server/internal/repository"
)

type InventoryHandler struct {
	Ledger *ledger.Ledger
}

type RestockRequest struct {
	Name        string `json:"name" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	Description string `json:"description"`
}

type TakeRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

func (h *InventoryHandler) List(c *gin.Context) {
	records, err := h.Ledger.ListAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, records, "Inventory retrieved successfully")
}

func (h *InventoryHandler) LoadMore(c *gin.Context) {
	size, err := pageSize(c)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.Ledger.LoadMore(c.Request.Context(), c.Query("continuationToken"), size)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, pageResponse(page), "Inventory retrieved successfully")
}

func (h *InventoryHandler) LowStock(c *gin.Context) {
	threshold := repository.DefaultLowStockThreshold
	if raw := c.Query("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, apperror.NewValidation("threshold must be an integer").WithDetail("threshold", raw))
			return
		}
		threshold = n
	}
	records, err := h.Ledger.LowStock(c.Request.Context(), threshold)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, records, "Low stock items retrieved successfully")
}

// Get accepts either the record id or its exact name.
func (h *InventoryHandler) Get(c *gin.Context) {
	key := c.Param("id")
	record, err := h.Ledger.GetByNameOrID(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	if record == nil {
		fail(c, apperror.NewNotFound("inventory", key))
		return
	}
	ok(c, http.StatusOK, record, "Inventory item retrieved successfully")
}

func (h *InventoryHandler) Restock(c *gin.Context) {
	var req RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	record, err := h.Ledger.Restock(c.Request.Context(), req.Name, req.Quantity, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, record, "Inventory item created/updated successfully")
}

func (h *InventoryHandler) Take(c *gin.Context) {
	var req TakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	record, err := h.Ledger.Consume(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, record, "Inventory quantity updated successfully")
}
