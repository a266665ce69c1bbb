package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tokengate/internal/store"
)

// ListServers handles GET /api/v1/servers.
func ListServers(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		configs, err := st.ServerConfigs(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch server configs"})
			return
		}
		c.JSON(http.StatusOK, configs)
	}
}

// UpdateServer handles PUT /api/v1/servers/:externalId: set or clear the
// ledger contract address and the private-notification flag.
func UpdateServer(st *store.Store, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := c.Param("externalId")

		var input struct {
			ContractAddress *string `json:"contract_address"`
			DisableDMs      *bool   `json:"disable_dms"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		cfg, err := st.EnsureServerConfig(ctx, externalID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load server config"})
			return
		}

		if input.ContractAddress != nil {
			cfg.ContractAddress = *input.ContractAddress
		}
		if input.DisableDMs != nil {
			cfg.DisableDMs = *input.DisableDMs
		}
		if err := st.SaveServerConfig(ctx, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save server config"})
			return
		}

		log.Infow("updated server config", "serverId", externalID)
		c.JSON(http.StatusOK, cfg)
	}
}
