package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-meal-pipeline/internal/auth"
	"github.com/imrishuroy/go-meal-pipeline/internal/idempotency"
	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
	"github.com/imrishuroy/go-meal-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-meal-pipeline/internal/validation"
)

const idempotencyHeader = "Idempotency-Key"

// MealService is the use-case layer behind the routes. *pipeline.Creator implements it.
type MealService interface {
	CreateMeal(ctx context.Context, userID, fileType string) (pipeline.CreateResult, error)
	Fetch(ctx context.Context, id, userID string) (meals.Meal, error)
	List(ctx context.Context, userID, date string) ([]meals.Meal, error)
	Delete(ctx context.Context, id, userID string) error
}

// IdempotencyStore guards POST /meals retries. *idempotency.Store implements it.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, fingerprint string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, mealID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the meals handler.
type HandlerConfig struct {
	Meals       MealService
	Idempotency IdempotencyStore // nil ignores the Idempotency-Key header
	Verifier    *auth.Verifier
	Logger      *logger.Logger
}

type createMealResponse struct {
	Meal      meals.View `json:"meal"`
	UploadURL string     `json:"uploadUrl"`
}

type mealsHandler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
	log *logger.Logger
}

// RegisterMealsRoutes registers the authenticated /meals routes.
func RegisterMealsRoutes(r *gin.Engine, cfg HandlerConfig) {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	h := &mealsHandler{cfg: cfg, v: validation.New(), log: log.With("service", "MealsHandler")}

	g := r.Group("/meals", auth.Middleware(cfg.Verifier))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
}

func (h *mealsHandler) create(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.UserID(c)

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "detail": err.Error()})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var req validation.CreateMealRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	key := c.GetHeader(idempotencyHeader)
	if key != "" && h.cfg.Idempotency != nil {
		key = idempotency.ScopedKey(userID, key)
		if done := h.claim(c, key, idempotency.Fingerprint(raw)); done {
			return
		}
	} else {
		key = ""
	}

	res, err := h.cfg.Meals.CreateMeal(ctx, userID, req.FileType)
	if err != nil {
		if key != "" {
			if mErr := h.cfg.Idempotency.MarkFailed(ctx, key, err.Error()); mErr != nil {
				h.log.Warn("mark idempotency failed", "error", mErr.Error())
			}
		}
		h.writeError(c, err)
		return
	}

	body, err := json.Marshal(createMealResponse{Meal: res.Meal.ToView(), UploadURL: res.UploadURL})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if key != "" {
		if err := h.cfg.Idempotency.MarkDone(ctx, key, res.Meal.ID, string(body), http.StatusCreated); err != nil {
			h.log.Warn("mark idempotency done", "meal_id", res.Meal.ID, "error", err.Error())
		}
	}

	c.Header("Location", fmt.Sprintf("/meals/%s", res.Meal.ID))
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

// claim reserves key for this request. It returns true when a response has
// already been written.
func (h *mealsHandler) claim(c *gin.Context, key, fingerprint string) bool {
	ctx := c.Request.Context()

	created, err := h.cfg.Idempotency.CreateIfNotExists(ctx, key, fingerprint)
	if err != nil {
		h.log.Error("idempotency claim failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
		return true
	}
	if created {
		return false
	}

	rec, err := h.cfg.Idempotency.Get(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
		return true
	}
	if rec == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
		return true
	}
	if rec.Fingerprint != fingerprint {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused", "detail": "key was used with a different request body"})
		return true
	}

	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		if rec.MealID != "" {
			c.Header("Location", fmt.Sprintf("/meals/%s", rec.MealID))
		}
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress", "meal_id": rec.MealID})
	}
	return true
}

func (h *mealsHandler) list(c *gin.Context) {
	var q validation.ListMealsQuery
	if err := validation.BindQuery(c, &q, h.v); err != nil {
		return
	}

	found, err := h.cfg.Meals.List(c.Request.Context(), auth.UserID(c), q.Date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	views := make([]meals.View, 0, len(found))
	for _, m := range found {
		views = append(views, m.ToView())
	}
	c.JSON(http.StatusOK, gin.H{"meals": views})
}

func (h *mealsHandler) get(c *gin.Context) {
	var p validation.MealIDParam
	if err := validation.BindURI(c, &p, h.v); err != nil {
		return
	}

	m, err := h.cfg.Meals.Fetch(c.Request.Context(), p.ID, auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meal": m.ToView()})
}

func (h *mealsHandler) delete(c *gin.Context) {
	var p validation.MealIDParam
	if err := validation.BindURI(c, &p, h.v); err != nil {
		return
	}

	if err := h.cfg.Meals.Delete(c.Request.Context(), p.ID, auth.UserID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *mealsHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, meals.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": err.Error()})
	case errors.Is(err, meals.ErrUnsupportedFileType), errors.Is(err, meals.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
	}
}
