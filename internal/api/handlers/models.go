package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/modelmux/internal/ai"
)

// ModelCatalog is the registry surface the models endpoints consume.
type ModelCatalog interface {
	Snapshot() []ai.Model
	ResetAll() int
}

type ModelsHandler struct {
	catalog ModelCatalog
}

func NewModelsHandler(catalog ModelCatalog) *ModelsHandler {
	return &ModelsHandler{
		catalog: catalog,
	}
}

// ModelSummary is the public catalog view. Field names are part of the
// API contract.
type ModelSummary struct {
	Name        string `json:"name"`
	ModelName   string `json:"modelName"`
	Provider    string `json:"provider"`
	IsAvailable bool   `json:"isAvailable"`
	Notes       string `json:"notes"`
}

func (h *ModelsHandler) ListModels(c *gin.Context) {
	providerFilter := c.Query("provider")

	models := []ModelSummary{}
	for _, m := range h.catalog.Snapshot() {
		if providerFilter != "" && m.Provider != providerFilter {
			continue
		}
		models = append(models, ModelSummary{
			Name:        m.Key,
			ModelName:   m.ProviderModelName,
			Provider:    m.Provider,
			IsAvailable: m.Available,
			Notes:       m.Notes,
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}

type ModelActionRequest struct {
	Action string `json:"action"`
}

// UpdateModels applies a catalog-wide action. Only "reset" is supported;
// it restores availability on every model.
func (h *ModelsHandler) UpdateModels(c *gin.Context) {
	var req ModelActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Action != "reset" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported action %q", req.Action)})
		return
	}

	h.catalog.ResetAll()
	c.JSON(http.StatusOK, gin.H{"message": "All models reset to available"})
}
