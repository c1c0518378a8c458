package encounter

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicore/encounter-api/internal/handler"
	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/service/encounter"
)

type Handler struct {
	service *encounter.Service
}

func NewHandler(service *encounter.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	encounters := rg.Group("/encounters")
	{
		encounters.POST("", h.Create)
		encounters.POST("/from-referral", h.CreateFromReferral)
		encounters.GET("", h.List)
		encounters.GET("/:id", h.Get)
		encounters.GET("/:id/services", h.ListServices)
		encounters.POST("/:id/schedule", h.Schedule)
		encounters.POST("/:id/reschedule", h.Reschedule)
		encounters.POST("/:id/cancel", h.Cancel)
		encounters.POST("/:id/no-show", h.MarkNoShow)
		encounters.POST("/:id/finalize", h.Finalize)
		encounters.PATCH("/:id/notes", h.UpdateNotes)
		encounters.POST("/:id/reminder", h.MarkReminderSent)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	enc, err := h.service.Create(c.Request.Context(), handler.ActorID(c), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(enc))
}

func (h *Handler) CreateFromReferral(c *gin.Context) {
	var req model.CreateFromReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	enc, err := h.service.CreateFromReferral(c.Request.Context(), handler.ActorID(c), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(enc))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	enc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(enc))
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.EncounterFilters{}

	if id := c.Query("patient_id"); id != "" {
		patientID, err := uuid.Parse(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
			return
		}
		filters.PatientID = patientID
	}

	if id := c.Query("physician_id"); id != "" {
		physicianID, err := uuid.Parse(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid physician ID"))
			return
		}
		filters.PhysicianID = physicianID
	}

	if status := c.Query("status"); status != "" {
		filters.Status = model.EncounterStatus(status)
	}

	if date := c.Query("start_date"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid start date"))
			return
		}
		filters.StartDate = t
	}

	if date := c.Query("end_date"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid end date"))
			return
		}
		filters.EndDate = t
	}

	encounters, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(encounters))
}

func (h *Handler) ListServices(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	services, err := h.service.ListServices(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(services))
}

func (h *Handler) Schedule(c *gin.Context) {
	h.moveSlot(c, h.service.Schedule)
}

func (h *Handler) Reschedule(c *gin.Context) {
	h.moveSlot(c, h.service.Reschedule)
}

func (h *Handler) moveSlot(c *gin.Context, apply func(ctx context.Context, actorID, id uuid.UUID, req *model.RescheduleEncounterRequest) (*model.Encounter, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	var req model.RescheduleEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	enc, err := apply(c.Request.Context(), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(enc))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	var req model.CancelEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	enc, err := h.service.Cancel(c.Request.Context(), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(enc))
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	enc, err := h.service.MarkNoShow(c.Request.Context(), handler.ActorID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(enc))
}

func (h *Handler) Finalize(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	var req model.FinalizeEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.service.Finalize(c.Request.Context(), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) UpdateNotes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	var req model.UpdateEncounterNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	enc, err := h.service.UpdateNotes(c.Request.Context(), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(enc))
}

func (h *Handler) MarkReminderSent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid encounter ID"))
		return
	}

	var req model.MarkReminderSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	enc, err := h.service.MarkReminderSent(c.Request.Context(), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(enc))
}
