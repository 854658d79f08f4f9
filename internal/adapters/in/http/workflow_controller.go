package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/in"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
	"github.com/suchimauz/clinic-workflow-engine/internal/utils"
)

const actorContextKey = "actor"

type WorkflowController struct {
	appointments in.AppointmentUseCase
	records      in.RecordUseCase
	revenue      in.RevenueUseCase
	inventory    out.InventoryPort
	cfg          *config.Config
}

func NewWorkflowController(appointments in.AppointmentUseCase, records in.RecordUseCase,
	revenue in.RevenueUseCase, inventory out.InventoryPort, cfg *config.Config) *WorkflowController {
	return &WorkflowController{
		appointments: appointments,
		records:      records,
		revenue:      revenue,
		inventory:    inventory,
		cfg:          cfg,
	}
}

func (c *WorkflowController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.health)

	api := router.Group("/api/v1")
	api.Use(c.basicAuth())
	{
		api.GET("/doctors/:doctorId/queue", c.doctorQueue)
		api.POST("/appointments/:appointmentId/check-in", c.checkIn)
		api.POST("/appointments/:appointmentId/cancel", c.cancel)
		api.POST("/appointments/:appointmentId/complete", c.complete)
		api.POST("/appointments/:appointmentId/record", c.createRecord)
		api.POST("/records/:recordId/dispense", c.dispense)
		api.POST("/sweep", c.sweep)
		api.GET("/revenue", c.computeRevenue)
		api.GET("/medicines", c.listMedicines)
		api.POST("/medicines/:medicineId/adjust", c.adjustStock)
	}
}

func (c *WorkflowController) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": c.cfg.App.Version,
	})
}

// doctorId принимает "all" для очереди по всем врачам сразу
func (c *WorkflowController) doctorQueue(ctx *gin.Context) {
	doctorID := uuid.Nil
	if param := ctx.Param("doctorId"); param != "all" {
		parsed, err := uuid.Parse(param)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid doctor ID format"})
			return
		}
		doctorID = parsed
	}

	day := time.Now().In(c.cfg.Location())
	if dateStr := ctx.Query("date"); dateStr != "" {
		parsed, err := utils.ParseDate(dateStr, c.cfg.Location())
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format"})
			return
		}
		day = parsed
	}

	entries, err := c.appointments.DoctorQueue(ctx.Request.Context(), c.actor(ctx), doctorID, day)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	buckets := make(map[domain.QueueClass]int)
	for _, entry := range entries {
		buckets[entry.Class]++
	}

	ctx.JSON(http.StatusOK, gin.H{
		"doctorId": ctx.Param("doctorId"),
		"date":     utils.StartCurrentDay(day).Format("2006-01-02"),
		"queue":    entries,
		"buckets":  buckets,
	})
}

func (c *WorkflowController) checkIn(ctx *gin.Context) {
	appointmentID, err := uuid.Parse(ctx.Param("appointmentId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid appointment ID format"})
		return
	}

	appointment, err := c.appointments.CheckIn(ctx.Request.Context(), c.actor(ctx), appointmentID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"appointment": appointment})
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (c *WorkflowController) cancel(ctx *gin.Context) {
	appointmentID, err := uuid.Parse(ctx.Param("appointmentId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid appointment ID format"})
		return
	}

	var req CancelRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	appointment, err := c.appointments.Cancel(ctx.Request.Context(), c.actor(ctx), appointmentID, req.Reason)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"appointment": appointment})
}

func (c *WorkflowController) complete(ctx *gin.Context) {
	appointmentID, err := uuid.Parse(ctx.Param("appointmentId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid appointment ID format"})
		return
	}

	appointment, err := c.appointments.Complete(ctx.Request.Context(), c.actor(ctx), appointmentID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"appointment": appointment})
}

type MedicationLineRequest struct {
	MedicineID   uuid.UUID `json:"medicineId" binding:"required"`
	Quantity     int       `json:"quantity" binding:"required,min=1"`
	Dosage       string    `json:"dosage" binding:"required"`
	Frequency    string    `json:"frequency" binding:"required"`
	Duration     string    `json:"duration" binding:"required"`
	Instructions string    `json:"instructions"`
}

type CreateRecordRequest struct {
	in.ClinicalFields
	Medications []MedicationLineRequest `json:"medications"`
}

func (c *WorkflowController) createRecord(ctx *gin.Context) {
	appointmentID, err := uuid.Parse(ctx.Param("appointmentId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid appointment ID format"})
		return
	}

	var req CreateRecordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines := make([]domain.MedicationLine, 0, len(req.Medications))
	for _, m := range req.Medications {
		lines = append(lines, domain.MedicationLine{
			Medicine:     domain.Reference{ID: m.MedicineID},
			Quantity:     m.Quantity,
			Dosage:       m.Dosage,
			Frequency:    m.Frequency,
			Duration:     m.Duration,
			Instructions: m.Instructions,
		})
	}

	record, err := c.records.CreateRecord(ctx.Request.Context(), c.actor(ctx), appointmentID, req.ClinicalFields, lines)
	if err != nil {
		// Медкарта создана, но завершение приема не прошло: отдаем и медкарту,
		// и причину, клиент повторяет завершение отдельным вызовом
		var pending *domain.CompletionPendingError
		if errors.As(err, &pending) {
			ctx.JSON(http.StatusConflict, gin.H{
				"error":  pending.Error(),
				"record": record,
			})
			return
		}
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"record": record})
}

func (c *WorkflowController) dispense(ctx *gin.Context) {
	recordID, err := uuid.Parse(ctx.Param("recordId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid record ID format"})
		return
	}

	record, err := c.records.Dispense(ctx.Request.Context(), c.actor(ctx), recordID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"record": record})
}

func (c *WorkflowController) sweep(ctx *gin.Context) {
	report, err := c.appointments.SweepLate(ctx.Request.Context(), c.actor(ctx))
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"report": report})
}

func (c *WorkflowController) computeRevenue(ctx *gin.Context) {
	startDate, err := utils.ParseDate(ctx.Query("startDate"), c.cfg.Location())
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start date format"})
		return
	}

	endDate, err := utils.ParseDate(ctx.Query("endDate"), c.cfg.Location())
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end date format"})
		return
	}

	report, debug, err := c.revenue.ComputeRevenue(ctx.Request.Context(), c.actor(ctx), startDate, endDate)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response := gin.H{"report": report}
	if c.cfg.IsLocal() {
		response["debug"] = debug
	}
	ctx.JSON(http.StatusOK, response)
}

func (c *WorkflowController) listMedicines(ctx *gin.Context) {
	onlyActive := ctx.Query("active") != "false"

	medicines, err := c.inventory.ListMedicines(ctx.Request.Context(), onlyActive)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	// Фильтр для формы назначения: только то, что реально можно выдать
	if ctx.Query("inStock") == "true" {
		inStock := make([]domain.Medicine, 0, len(medicines))
		for _, medicine := range medicines {
			if medicine.StockQuantity > 0 && !medicine.Expired(time.Now()) {
				inStock = append(inStock, medicine)
			}
		}
		medicines = inStock
	}

	ctx.JSON(http.StatusOK, gin.H{"medicines": medicines})
}

type AdjustStockRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func (c *WorkflowController) adjustStock(ctx *gin.Context) {
	medicineID, err := uuid.Parse(ctx.Param("medicineId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid medicine ID format"})
		return
	}

	actor := c.actor(ctx)
	if !actor.Is(domain.RoleStaff, domain.RolePharmacist) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "role not allowed"})
		return
	}

	var req AdjustStockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	medicine, err := c.inventory.AdjustStock(ctx.Request.Context(), actor, medicineID, req.Delta, req.Reason)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"medicine": medicine})
}

// Перевод доменной таксономии ошибок в HTTP-статусы
func (c *WorkflowController) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPreconditionFailed):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyDispensed),
		errors.Is(err, domain.ErrInsufficientStock):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (c *WorkflowController) actor(ctx *gin.Context) domain.Actor {
	if value, exists := ctx.Get(actorContextKey); exists {
		if actor, ok := value.(domain.Actor); ok {
			return actor
		}
	}
	return domain.Actor{}
}

// Basic-auth по списку клиентов из конфигурации, роль клиента становится ролью
// актора. Шлюзы могут передавать конечного пользователя заголовками X-Actor-Id
// и X-Actor-Name, роль при этом остается ролью клиента.
func (c *WorkflowController) basicAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, password, hasAuth := ctx.Request.BasicAuth()
		if !hasAuth {
			ctx.Header("WWW-Authenticate", "Basic realm=Authorization Required")
			ctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		for _, client := range c.cfg.Auth.BasicClients {
			if subtle.ConstantTimeCompare([]byte(username), []byte(client.Username)) == 1 &&
				subtle.ConstantTimeCompare([]byte(password), []byte(client.Password)) == 1 {
				actor := domain.Actor{
					ID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(client.Username)),
					Name: client.Username,
					Role: domain.Role(client.Role),
				}

				if actorID := ctx.GetHeader("X-Actor-Id"); actorID != "" {
					if parsed, err := uuid.Parse(actorID); err == nil {
						actor.ID = parsed
					}
				}
				if actorName := ctx.GetHeader("X-Actor-Name"); actorName != "" {
					actor.Name = actorName
				}

				ctx.Set(actorContextKey, actor)
				ctx.Next()
				return
			}
		}

		ctx.Header("WWW-Authenticate", "Basic realm=Authorization Required")
		ctx.AbortWithStatus(http.StatusUnauthorized)
	}
}
