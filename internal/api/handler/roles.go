package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tokengate/internal/errs"
	"tokengate/internal/model"
	"tokengate/internal/store"
)

type roleInput struct {
	ExternalID    string `json:"external_id"`
	TokenID       string `json:"token_id"`
	MinBalance    string `json:"min_balance"`
	MetaCondition string `json:"meta_condition"`
	RegistryID    string `json:"registry_id"`
}

// ListRoles handles GET /api/v1/servers/:externalId/roles.
func ListRoles(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := st.RolesByExternalServerID(c.Request.Context(), c.Param("externalId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch roles"})
			return
		}
		c.JSON(http.StatusOK, roles)
	}
}

// CreateRole handles POST /api/v1/servers/:externalId/roles and triggers a
// targeted reconciliation for the new role.
func CreateRole(st *store.Store, rec Reconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID := c.Param("externalId")

		var input roleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.ExternalID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing external_id"})
			return
		}

		ctx := c.Request.Context()
		if _, err := st.RoleByExternalID(ctx, input.ExternalID); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Role configuration is already added"})
			return
		} else if !errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check role"})
			return
		}

		cfg, err := st.EnsureServerConfig(ctx, serverID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load server config"})
			return
		}

		role := model.Role{
			ExternalID:       input.ExternalID,
			ServerID:         cfg.ID,
			ExternalServerID: serverID,
			TokenID:          input.TokenID,
			MinBalance:       input.MinBalance,
			MetaCondition:    input.MetaCondition,
			RegistryID:       input.RegistryID,
		}
		if err := st.CreateRole(ctx, &role); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create role"})
			return
		}

		log.Infow("added role", "serverId", serverID, "roleId", role.ExternalID)
		if err := rec.ReconcileRole(ctx, serverID, role, false); err != nil {
			// The role is saved; the scheduled pass picks it up.
			log.Errorw("failed to reconcile new role", "serverId", serverID, "roleId", role.ExternalID, "error", err)
		}

		c.JSON(http.StatusCreated, role)
	}
}

// UpdateRole handles PUT /api/v1/roles/:externalId and triggers a targeted
// reconciliation for the updated conditions.
func UpdateRole(st *store.Store, rec Reconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := c.Param("externalId")

		var input roleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		role, err := st.RoleByExternalID(ctx, externalID)
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No role configuration found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch role"})
			return
		}

		role.TokenID = input.TokenID
		role.MinBalance = input.MinBalance
		role.MetaCondition = input.MetaCondition
		role.RegistryID = input.RegistryID
		if err := st.SaveRole(ctx, role); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save role"})
			return
		}

		log.Infow("updated role", "serverId", role.ExternalServerID, "roleId", role.ExternalID)
		if err := rec.ReconcileRole(ctx, role.ExternalServerID, *role, false); err != nil {
			log.Errorw("failed to reconcile updated role", "roleId", role.ExternalID, "error", err)
		}

		c.JSON(http.StatusOK, role)
	}
}

// DeleteRole handles DELETE /api/v1/roles/:externalId. The targeted
// reconciliation runs with forced non-entitlement so the platform role is
// revoked from every member who held it.
func DeleteRole(st *store.Store, rec Reconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := c.Param("externalId")

		ctx := c.Request.Context()
		role, err := st.RoleByExternalID(ctx, externalID)
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No role configuration found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch role"})
			return
		}

		if err := st.DeleteRoleByExternalID(ctx, externalID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete role"})
			return
		}

		log.Infow("removed role", "serverId", role.ExternalServerID, "roleId", role.ExternalID)
		if err := rec.ReconcileRole(ctx, role.ExternalServerID, *role, true); err != nil {
			log.Errorw("failed to reconcile removed role", "roleId", role.ExternalID, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{"message": "Role configuration removed"})
	}
}
