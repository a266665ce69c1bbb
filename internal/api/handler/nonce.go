package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tokengate/internal/store"
)

// Nonce handles POST /api/v1/nonce: issue a fresh signing challenge for an
// address, replacing any outstanding one.
func Nonce(st *store.Store, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Address string `json:"address"`
		}
		if err := c.ShouldBindJSON(&input); err != nil || input.Address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing address"})
			return
		}

		value, err := st.IssueNonce(c.Request.Context(), input.Address)
		if err != nil {
			log.Errorw("failed to create nonce", "address", input.Address, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create nonce"})
			return
		}

		log.Infow("created nonce", "address", input.Address, "nonce", value)
		c.JSON(http.StatusOK, gin.H{"nonce": value})
	}
}
