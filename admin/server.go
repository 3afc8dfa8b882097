// Package admin implements the core-facing HTTP admin surface: routing
// config CRUD + hot reload, and per-module enable/disable/reload/delete,
// gated by authz RBAC except for the public health probe.
//
// Grounded on spec.md §6's endpoint table; handler shape (Server struct
// with method handlers, ShouldBindJSON/c.JSON(status, gin.H{...})) from
// codeready-toolchain-tarsy's pkg/api/handlers.go.
package admin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexuscore/nexus/authz"
	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/routing"
)

// Server holds the dependencies every admin handler needs. Callers wire
// authz.RequireAuth onto the router themselves before calling Register;
// Server only applies the per-route authz.RequirePermission checks.
type Server struct {
	routingMgr *routing.Manager
	registry   *pipeline.Registry
	log        core.Logger
}

// NewServer builds an admin Server. log may be nil (a NoOpLogger is used).
func NewServer(routingMgr *routing.Manager, registry *pipeline.Registry, log core.Logger) *Server {
	if log == nil {
		log = &core.NoOpLogger{}
	}
	return &Server{routingMgr: routingMgr, registry: registry, log: log}
}

// Register wires every admin route onto r, applying
// authz.RequirePermission per route per spec.md §6's table. r must
// already have authz.RequireAuth applied upstream.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/admin/health", s.Health)

	r.GET("/admin/routing-config", authz.RequirePermission(authz.PermReadConfig), s.GetRoutingConfig)
	r.PUT("/admin/routing-config", authz.RequirePermission(authz.PermWriteConfig), s.ReplaceRoutingConfig)
	r.PATCH("/admin/routing-config/category/:name", authz.RequirePermission(authz.PermWriteConfig), s.UpsertCategory)
	r.DELETE("/admin/routing-config/category/:name", authz.RequirePermission(authz.PermWriteConfig), s.DeleteCategory)
	r.POST("/admin/routing-config/reload", authz.RequirePermission(authz.PermWriteConfig), s.ReloadRoutingConfig)

	r.GET("/admin/modules", authz.RequirePermission(authz.PermManageModules), s.ListModules)
	r.GET("/admin/modules/:category/:platform", authz.RequirePermission(authz.PermManageModules), s.GetModule)
	r.POST("/admin/modules/:category/:platform/enable", authz.RequirePermission(authz.PermManageModules), s.EnableModule)
	r.POST("/admin/modules/:category/:platform/disable", authz.RequirePermission(authz.PermManageModules), s.DisableModule)
	r.POST("/admin/modules/:category/:platform/reload", authz.RequirePermission(authz.PermManageModules), s.ReloadModule)
	r.DELETE("/admin/modules/:category/:platform", authz.RequirePermission(authz.PermManageModules), s.DeleteModule)
}

// Health reports process-level status. Public, no auth required.
func (s *Server) Health(c *gin.Context) {
	installed, err := s.registry.List(pipeline.StatusInstalled)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"modules_loaded": len(installed),
		"config_manager": "ready",
	})
}

// GetRoutingConfig returns the full current RoutingConfig.
func (s *Server) GetRoutingConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.routingMgr.Get())
}

// ReplaceRoutingConfig validates and persists an entirely new config.
func (s *Server) ReplaceRoutingConfig(c *gin.Context) {
	var cfg routing.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if err := s.routingMgr.Update(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.routingMgr.Get())
}

// UpsertCategory creates or replaces a single category entry.
func (s *Server) UpsertCategory(c *gin.Context) {
	name := c.Param("name")
	var cat routing.CategoryRouting
	if err := c.ShouldBindJSON(&cat); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if err := s.routingMgr.UpsertCategory(name, cat); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "upserted", "category": name})
}

// DeleteCategory removes a category. 404 if it doesn't exist.
func (s *Server) DeleteCategory(c *gin.Context) {
	name := c.Param("name")
	if err := s.routingMgr.DeleteCategory(name); err != nil {
		var notFound *routing.ErrCategoryNotFound
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "category": name})
}

// ReloadRoutingConfig re-reads the routing config from disk.
func (s *Server) ReloadRoutingConfig(c *gin.Context) {
	cfg := s.routingMgr.Reload()
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "categories": len(cfg.Categories)})
}

// ListModules returns every registered module entry.
func (s *Server) ListModules(c *gin.Context) {
	entries, err := s.registry.List("")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"modules": entries})
}

// GetModule returns a single module's registry entry.
func (s *Server) GetModule(c *gin.Context) {
	moduleID := fmt.Sprintf("%s/%s", c.Param("category"), c.Param("platform"))
	entry, found, err := s.registry.Get(moduleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "module not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// EnableModule flips a module's registry status to enabled (installed).
func (s *Server) EnableModule(c *gin.Context) {
	s.setEnabled(c, true)
}

// DisableModule flips a module's registry status to disabled.
func (s *Server) DisableModule(c *gin.Context) {
	s.setEnabled(c, false)
}

func (s *Server) setEnabled(c *gin.Context, enabled bool) {
	moduleID := fmt.Sprintf("%s/%s", c.Param("category"), c.Param("platform"))
	if _, found, err := s.registry.Get(moduleID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	} else if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "module not found"})
		return
	}
	if err := s.registry.SetEnabled(moduleID, enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	entry, _, err := s.registry.Get(moduleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ReloadModule resets a module's health signal to unknown, forcing the
// next usage cycle to re-establish it. There is no adapter-process
// restart in-module (adapters are stateless per-call), so reload is a
// health-state reset rather than a process respawn.
func (s *Server) ReloadModule(c *gin.Context) {
	moduleID := fmt.Sprintf("%s/%s", c.Param("category"), c.Param("platform"))
	if _, found, err := s.registry.Get(moduleID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	} else if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "module not found"})
		return
	}
	if err := s.registry.UpdateHealth(moduleID, pipeline.HealthUnknown, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "module_id": moduleID})
}

// DeleteModule uninstalls a module from the registry. 404 if absent.
func (s *Server) DeleteModule(c *gin.Context) {
	moduleID := fmt.Sprintf("%s/%s", c.Param("category"), c.Param("platform"))
	removed, err := s.registry.Uninstall(moduleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"detail": "module not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "module_id": moduleID})
}
