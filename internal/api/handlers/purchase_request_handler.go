package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/workflow"
)

const (
	receiptField      = "receiptImages"
	maxReceiptBytes   = 10 << 20
	maxReceiptUploads = 10
)

type PurchaseRequestHandler struct {
	Requests *workflow.PurchaseRequests
}

func (h *PurchaseRequestHandler) Create(c *gin.Context) {
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
	ok(c, http.StatusCreated, created, "Purchase request created successfully")
}

func (h *PurchaseRequestHandler) List(c *gin.Context) {
	requests, err := h.Requests.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, requests, "Purchase requests retrieved successfully")
}

func (h *PurchaseRequestHandler) LoadMore(c *gin.Context) {
	size, err := pageSize(c)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.Requests.Page(c.Request.Context(), c.Query("continuationToken"), size)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, pageResponse(page), "Purchase requests retrieved successfully")
}

func (h *PurchaseRequestHandler) LoadMoreByStatus(c *gin.Context) {
	status, err := statusParam(c, "")
	if err != nil {
		fail(c, err)
		return
	}
	size, err := pageSize(c)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.Requests.PageByStatus(c.Request.Context(), status, c.Query("continuationToken"), size)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, pageResponse(page), "Purchase requests with status '"+status.String()+"' retrieved successfully")
}

// DateRange accepts RFC 3339 timestamps or plain dates. A plain endDate
// covers that whole day.
func (h *PurchaseRequestHandler) DateRange(c *gin.Context) {
	start, _, err := parseDate(c.Query("startDate"), "startDate")
	if err != nil {
		fail(c, err)
		return
	}
	end, dateOnly, err := parseDate(c.Query("endDate"), "endDate")
	if err != nil {
		fail(c, err)
		return
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	requests, err := h.Requests.ListByDateRange(c.Request.Context(), start, end)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, requests, "Purchase requests retrieved successfully")
}

func parseDate(raw, field string) (t time.Time, dateOnly bool, err error) {
	if raw == "" {
		return time.Time{}, false, apperror.NewValidation(field + " is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, apperror.NewValidation(field + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp").WithDetail(field, raw)
}

func (h *PurchaseRequestHandler) Get(c *gin.Context) {
	request, err := h.Requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, request, "Purchase request retrieved successfully")
}

func (h *PurchaseRequestHandler) UploadReceipts(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, apperror.NewValidation("multipart form with "+receiptField+" is required"))
		return
	}
	headers := form.File[receiptField]
	if len(headers) == 0 {
		fail(c, apperror.NewValidation("at least one "+receiptField+" file is required"))
		return
	}
	if len(headers) > maxReceiptUploads {
		fail(c, apperror.NewValidation("too many receipt files").WithDetail("max", maxReceiptUploads))
		return
	}

	uploads := make([]workflow.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			fail(c, err)
			return
		}
		uploads = append(uploads, workflow.Upload{Name: fh.Filename, Data: data})
	}

	updated, err := h.Requests.AttachReceipts(c.Request.Context(), caller(c), c.Param("id"), uploads)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, updated, "Purchase request updated successfully")
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxReceiptBytes {
		return nil, apperror.NewValidation("receipt file is too large").WithDetail("file", fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperror.NewValidation("cannot read receipt file").WithDetail("file", fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxReceiptBytes+1))
	if err != nil {
		return nil, apperror.NewValidation("cannot read receipt file").WithDetail("file", fh.Filename)
	}
	if len(data) > maxReceiptBytes {
		return nil, apperror.NewValidation("receipt file is too large").WithDetail("file", fh.Filename)
	}
	return data, nil
}

func (h *PurchaseRequestHandler) EditItems(c *gin.Context) {
	var req CreateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	updated, err := h.Requests.EditPurchasedItems(c.Request.Context(), caller(c), c.Param("id"), req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, updated, "Purchased items updated successfully")
}

func (h *PurchaseRequestHandler) UpdateStatus(c *gin.Context) {
	status, err := statusParam(c, "")
	if err != nil {
		fail(c, err)
		return
	}
	updated, err := h.Requests.UpdateStatus(c.Request.Context(), caller(c), c.Param("id"), status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, updated, "Purchase request status updated successfully")
}

func (h *PurchaseRequestHandler) Delete(c *gin.Context) {
	if err := h.Requests.Delete(c.Request.Context(), caller(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, true, "Purchase request deleted successfully")
}
