package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/health"
	"github.com/upb/model-router/services/registry"
	"github.com/upb/model-router/services/routing"
	"github.com/upb/model-router/utils"
	"go.uber.org/zap"
)

// ModelCatalog is the read-only routing surface the models endpoints expose
type ModelCatalog interface {
	ListAvailableModels() []string
	StatusReport() map[string]routing.ModelStatus
	Describe(id string) (registry.ModelDescriptor, error)
	HealthSnapshot() map[string]health.Record
}

// ModelsHandler serves model discovery and status
type ModelsHandler struct {
	catalog      ModelCatalog
	defaultModel string
	logger       *zap.Logger
}

// ModelList is the response of GET /api/v1/models
type ModelList struct {
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
}

// ModelDetail is the response of GET /api/v1/models/{id}
type ModelDetail struct {
	registry.ModelDescriptor
	Fallbacks []string            `json:"fallbacks"`
	Status    routing.ModelStatus `json:"status"`
}

// NewModelsHandler creates a new ModelsHandler
func NewModelsHandler(catalog ModelCatalog, defaultModel string, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{
		catalog:      catalog,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// HandleList handles GET /api/v1/models
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids := h.catalog.ListAvailableModels()
	if ids == nil {
		ids = []string{}
	}
	h.write(w, ModelList{Models: ids, DefaultModel: h.defaultModel})
}

// HandleStatus handles GET /api/v1/models/status
func (h *ModelsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.catalog.StatusReport())
}

// HandleHealth handles GET /api/v1/models/health
func (h *ModelsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.catalog.HealthSnapshot())
}

// HandleGet handles GET /api/v1/models/{id}
func (h *ModelsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	desc, err := h.catalog.Describe(id)
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeNotFound, "model not found", err).
			WithDetail("model", id), h.logger)
		return
	}

	fallbacks := desc.Fallbacks
	if fallbacks == nil {
		fallbacks = []string{}
	}
	status := h.catalog.StatusReport()[id]

	h.write(w, ModelDetail{ModelDescriptor: desc, Fallbacks: fallbacks, Status: status})
}

func (h *ModelsHandler) write(w http.ResponseWriter, data interface{}) {
	if err := utils.WriteOK(w, data); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
