package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/vkube-console/internal/auth"
	"github.com/example/vkube-console/internal/config"
	"github.com/example/vkube-console/internal/registry"
	"github.com/example/vkube-console/internal/token"
	"github.com/example/vkube-console/internal/users"
)

// Deps agrupa as dependências injetadas nos handlers.
type Deps struct {
	Cfg      *config.Config
	Tokens   *token.Service
	Users    *users.Repo
	Registry *registry.Registry
}

// RegisterRoutes registra todas as rotas /api/v1.
func RegisterRoutes(r *gin.Engine, d *Deps) {
	api := r.Group("/api/v1")
	gate := auth.Middleware(d.Tokens)

	// Auth
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", registerHandler(d))
		authGroup.POST("/login", loginHandler(d))
		authGroup.POST("/refresh", refreshHandler(d))
		authGroup.POST("/logout", logoutHandler(d))
		authGroup.GET("/me", gate, meHandler(d))
	}

	// Clusters CRUD + ativação + teste de conexão
	clusterGroup := api.Group("/clusters")
	clusterGroup.Use(gate)
	{
		clusterGroup.GET("", listClustersHandler(d))
		clusterGroup.POST("", createClusterHandler(d))
		clusterGroup.GET("/active", activeClusterHandler(d))
		clusterGroup.GET("/:id", getClusterHandler(d))
		clusterGroup.PUT("/:id", updateClusterHandler(d))
		clusterGroup.DELETE("/:id", deleteClusterHandler(d))
		clusterGroup.POST("/:id/activate", activateClusterHandler(d))
		clusterGroup.POST("/:id/test", testClusterHandler(d))

		// Proxies de leitura de recursos
		clusterGroup.GET("/:id/pods", listPodsHandler(d))
		clusterGroup.GET("/:id/pods/:name/logs", podLogsHandler(d))
		clusterGroup.GET("/:id/namespaces", listNamespacesHandler(d))
		clusterGroup.GET("/:id/nodes", listNodesHandler(d))
		clusterGroup.GET("/:id/deployments", listDeploymentsHandler(d))
		clusterGroup.GET("/:id/services", listServicesHandler(d))
		clusterGroup.GET("/:id/resources/yaml", resourceYAMLHandler(d))
	}

	// Healthcheck simples
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
