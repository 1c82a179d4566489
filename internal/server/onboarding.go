package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/services/onboarding"
)

// pathID parses the :id route parameter, writing a 400 when it is not a UUID.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, common.InvalidInput("id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, common.InvalidInput("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *handlers) createHousehold(c *gin.Context) {
	var in onboarding.HouseholdInput
	if !bindJSON(c, &in) {
		return
	}
	hh, err := h.onboarding.CreateHousehold(c.Request.Context(), actorOf(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, hh)
}

func (h *handlers) listAgreements(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.onboarding.ListAgreements(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agreements": list})
}

// uploadAgreement accepts multipart form fields "household_id" and "file".
// Extraction failures still answer 201 with the failed record.
func (h *handlers) uploadAgreement(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, err)
			return
		}
		writeError(c, common.InvalidInput("a document is required in form field \"file\""))
		return
	}
	householdID, err := uuid.Parse(c.PostForm("household_id"))
	if err != nil {
		writeError(c, common.InvalidInput("household_id must be a UUID"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, common.InvalidInput("unreadable upload: %v", err))
		return
	}
	defer f.Close()

	a, err := h.onboarding.Upload(c.Request.Context(), actorOf(c), onboarding.UploadInput{
		HouseholdID: householdID,
		FileName:    fh.Filename,
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *handlers) getAgreement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := h.onboarding.GetAgreement(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) processAgreement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := h.onboarding.Process(c.Request.Context(), actorOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) confirmTenancy(c *gin.Context) {
	var in onboarding.ConfirmInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.onboarding.Confirm(c.Request.Context(), actorOf(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *handlers) onboardingStatus(c *gin.Context) {
	st, err := h.onboarding.Status(c.Request.Context(), actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
