package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/services/onboarding"
	"github.com/YorickdeJong/energy-contracts/internal/services/tenancy"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func listRequest(c *gin.Context) (tenancy.ListRequest, error) {
	req := tenancy.ListRequest{
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	if raw := c.Query("household_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, common.InvalidInput("household_id must be a UUID")
		}
		req.HouseholdID = &id
	}
	return req, nil
}

func (h *handlers) listTenancies(c *gin.Context) {
	req, err := listRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := h.tenancies.List(c.Request.Context(), actorOf(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []*entity.Tenancy{}
	}
	c.JSON(http.StatusOK, gin.H{"tenancies": list})
}

func (h *handlers) exportTenancies(c *gin.Context) {
	req, err := listRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}
	b, err := h.tenancies.Export(c.Request.Context(), actorOf(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	name := fmt.Sprintf("tenancies-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, b)
}

func (h *handlers) getTenancy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := h.tenancies.Get(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) activateTenancy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := h.tenancies.Activate(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type moveOutRequest struct {
	EndDate *entity.Date `json:"end_date"`
}

func (h *handlers) startMoveOut(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req moveOutRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.EndDate == nil {
		writeError(c, common.NewValidationFailure("invalid move-out", []common.ValidationError{
			{Field: "end_date", Message: "is required"},
		}))
		return
	}
	t, err := h.tenancies.StartMoveOut(c.Request.Context(), actorOf(c), id, *req.EndDate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) markMovedOut(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := h.tenancies.MarkMovedOut(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) addRenter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in onboarding.RenterInput
	if !bindJSON(c, &in) {
		return
	}
	t, err := h.onboarding.AddRenter(c.Request.Context(), actorOf(c), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}
