package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tokengate/internal/errs"
	"tokengate/internal/model"
	"tokengate/internal/store"
	"tokengate/internal/verify"
)

// Reconciler is the reconciliation surface the HTTP handlers trigger.
type Reconciler interface {
	ReconcileUser(ctx context.Context, serverID, userID string) error
	ReconcileRole(ctx context.Context, serverID string, role model.Role, deleted bool) error
}

type authorizeRequest struct {
	Nonce       *int64 `json:"nonce"`
	Address     string `json:"address"`
	Signature   string `json:"signature"`
	UserID      string `json:"userId"`
	ServerID    string `json:"serverId"`
	PubKey      string `json:"pubKey"`
	ChainPrefix string `json:"chainPrefix"`
}

// Authorize handles POST /api/v1/authorize: verify the signed challenge,
// persist the identity binding, consume the nonce and refresh the user's
// roles. A failed signature check leaves the nonce intact so the user may
// retry with the same challenge.
func Authorize(st *store.Store, verifier *verify.Verifier, rec Reconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body authorizeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if body.Nonce == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing nonce"})
			return
		}
		if body.Address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing address"})
			return
		}
		if body.Signature == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing signature"})
			return
		}
		if body.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
			return
		}
		if body.ServerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing serverId"})
			return
		}

		ctx := c.Request.Context()
		ethAddress := body.Address

		if !strings.HasPrefix(body.Address, "0x") {
			if body.PubKey == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Missing pubKey"})
				return
			}
			if body.ChainPrefix == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Missing chainPrefix"})
				return
			}
			data, err := verify.DecodeBech32(body.Address, body.ChainPrefix)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unrecognised address format"})
				return
			}
			ethAddress = verify.HexAddress(data)
		}

		bound, err := st.HolderBound(ctx, body.ServerID, body.UserID, body.Address, ethAddress)
		if err != nil {
			log.Errorw("failed to check holder binding", "serverId", body.ServerID, "userId", body.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check holder binding"})
			return
		}
		if bound {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User already associated to address"})
			return
		}

		nonce, err := st.NonceByValue(ctx, *body.Nonce, body.Address)
		if err != nil {
			if errors.Is(err, errs.ErrInvalidNonce) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid nonce"})
				return
			}
			log.Errorw("failed to look up nonce", "address", body.Address, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up nonce"})
			return
		}

		if _, err := verifier.Verify(verify.Request{
			Nonce:       *body.Nonce,
			Address:     body.Address,
			Signature:   body.Signature,
			UserID:      body.UserID,
			PubKey:      body.PubKey,
			ChainPrefix: body.ChainPrefix,
		}); err != nil {
			if errors.Is(err, errs.ErrInvalidAddress) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unrecognised address format"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}

		holder := model.Holder{
			Address:          body.Address,
			EthAddress:       ethAddress,
			UserID:           body.UserID,
			ExternalServerID: body.ServerID,
		}
		if err := st.BindHolder(ctx, &holder, nonce.ID); err != nil {
			if errors.Is(err, errs.ErrInvalidNonce) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid nonce"})
				return
			}
			log.Errorw("failed to save holder", "serverId", body.ServerID, "userId", body.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save holder"})
			return
		}

		log.Infow("associated user to wallet",
			"serverId", body.ServerID, "userId", body.UserID, "address", body.Address)

		if err := rec.ReconcileUser(ctx, body.ServerID, body.UserID); err != nil {
			// The binding is persisted; the scheduler retries the roles.
			log.Errorw("error refreshing user roles", "serverId", body.ServerID, "userId", body.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error refreshing user roles"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
