package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/vkube-console/internal/auth"
	"github.com/example/vkube-console/internal/conncache"
	"github.com/example/vkube-console/internal/crypto"
	"github.com/example/vkube-console/internal/k8s"
	"github.com/example/vkube-console/internal/models"
	"github.com/example/vkube-console/internal/registry"
	"github.com/example/vkube-console/internal/token"
	"github.com/example/vkube-console/internal/users"
)

// =================================================================================
// AUTHENTICATION HANDLERS
// =================================================================================

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required,min=2"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
	Provider string `json:"provider"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int          `json:"expiresIn"`
	User         *models.User `json:"user,omitempty"`
}

func registerHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao processar senha"})
			return
		}

		user := &models.User{
			ID:           uuid.NewString(),
			Email:        req.Email,
			PasswordHash: hash,
			Name:         req.Name,
			AuthProvider: models.ProviderLocal,
			IsActive:     true,
		}
		if err := d.Users.Create(c.Request.Context(), user); err != nil {
			if errors.Is(err, users.ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "email já registrado"})
				return
			}
			writeError(c, err)
			return
		}

		pair, err := d.Tokens.IssuePair(c.Request.Context(), user.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    pair.ExpiresIn,
			User:         user,
		})
	}
}

func loginHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}
		ctx := c.Request.Context()

		var user *models.User

		switch {
		// Login via diretório LDAP (identidade externa verificada)
		case req.Provider == models.ProviderLDAP && d.Cfg.LDAPEnabled:
			ident, err := auth.LDAPAuthenticate(req.Username, req.Password, d.Cfg)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "credenciais inválidas"})
				return
			}
			user, err = d.Users.GetOrCreateExternal(ctx, models.ProviderLDAP, ident.Subject, ident.Email, ident.DisplayName)
			if err != nil {
				writeError(c, err)
				return
			}

		// Login local de manutenção (break-glass)
		case d.Cfg.LocalLogin && req.Email != "" && req.Email == d.Cfg.LocalAdminMail:
			if d.Cfg.LocalAdminHash == "" || !auth.CheckPassword(d.Cfg.LocalAdminHash, req.Password) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "credenciais inválidas"})
				return
			}
			var err error
			user, err = d.Users.GetByEmail(ctx, req.Email)
			if errors.Is(err, users.ErrNotFound) {
				user = &models.User{
					ID:           uuid.NewString(),
					Email:        req.Email,
					Name:         "Maintenance Admin",
					AuthProvider: models.ProviderLocal,
					IsActive:     true,
					IsVerified:   true,
				}
				err = d.Users.Create(ctx, user)
			}
			if err != nil {
				writeError(c, err)
				return
			}

		// Login local padrão (email + senha)
		default:
			found, err := d.Users.GetByEmail(ctx, req.Email)
			if errors.Is(err, users.ErrNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "credenciais inválidas"})
				return
			}
			if err != nil {
				writeError(c, err)
				return
			}
			if found.PasswordHash == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": passwordLoginRefusal(found)})
				return
			}
			if !auth.CheckPassword(found.PasswordHash, req.Password) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "credenciais inválidas"})
				return
			}
			user = found
		}

		if !user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "conta desativada"})
			return
		}

		_ = d.Users.TouchLogin(ctx, user.ID)

		pair, err := d.Tokens.IssuePair(ctx, user.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, tokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    pair.ExpiresIn,
			User:         user,
		})
	}
}

func refreshHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}

		pair, err := d.Tokens.Redeem(c.Request.Context(), req.RefreshToken)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, tokenResponse{
				AccessToken:  pair.AccessToken,
				RefreshToken: pair.RefreshToken,
				ExpiresIn:    pair.ExpiresIn,
			})
		case errors.Is(err, token.ErrReused), errors.Is(err, token.ErrRevoked):
			// Replay detectado: a sessão inteira foi derrubada.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "sessão comprometida; faça login novamente"})
		case errors.Is(err, token.ErrExpired), errors.Is(err, token.ErrInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token inválido ou expirado"})
		default:
			writeError(c, err)
		}
	}
}

func logoutHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}

		err := d.Tokens.Revoke(c.Request.Context(), req.RefreshToken)
		if err != nil && !errors.Is(err, token.ErrInvalid) {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func meHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := d.Users.GetByID(c.Request.Context(), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// =================================================================================
// CLUSTER HANDLERS
// =================================================================================

type createClusterRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Kubeconfig  string   `json:"kubeconfig" binding:"required"`
	Context     string   `json:"context" binding:"required"`
	Tags        []string `json:"tags"`
}

type updateClusterRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Kubeconfig  *string   `json:"kubeconfig"`
	Context     *string   `json:"context"`
	Tags        *[]string `json:"tags"`
}

func listClustersHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		clusters, err := d.Registry.List(c.Request.Context(), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, clusters)
	}
}

func createClusterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createClusterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}

		cluster, err := d.Registry.Create(c.Request.Context(), auth.UserID(c), registry.CreateInput{
			Name:        req.Name,
			Kubeconfig:  req.Kubeconfig,
			Context:     req.Context,
			Description: req.Description,
			Tags:        req.Tags,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cluster)
	}
}

func getClusterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cluster, err := d.Registry.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster)
	}
}

func updateClusterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateClusterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}

		cluster, err := d.Registry.Update(c.Request.Context(), auth.UserID(c), c.Param("id"), registry.UpdateInput{
			Name:        req.Name,
			Description: req.Description,
			Kubeconfig:  req.Kubeconfig,
			Context:     req.Context,
			Tags:        req.Tags,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster)
	}
}

func deleteClusterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Registry.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func activeClusterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cluster, err := d.Registry.Active(c.Request.Context(), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster)
	}
}

func activateClusterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cluster, err := d.Registry.Activate(c.Request.Context(), auth.UserID(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster)
	}
}

func testClusterHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := d.Registry.TestConnection(c.Request.Context(), auth.UserID(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// =================================================================================
// RESOURCE HANDLERS (READ-THROUGH)
// =================================================================================

func listPodsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := clientFromRequest(c, d)
		if !ok {
			return
		}
		pods, err := client.ListPods(c.Request.Context(), c.Query("namespace"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pods)
	}
}

func podLogsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ns := c.Query("namespace")
		if ns == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "namespace é obrigatório"})
			return
		}
		tail := int64(100)
		if t, err := strconv.ParseInt(c.Query("tail"), 10, 64); err == nil && t > 0 {
			tail = t
		}

		client, ok := clientFromRequest(c, d)
		if !ok {
			return
		}
		lines, err := client.PodLogs(c.Request.Context(), ns, c.Param("name"), c.Query("container"), tail)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"lines": lines})
	}
}

func listNamespacesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := clientFromRequest(c, d)
		if !ok {
			return
		}
		namespaces, err := client.ListNamespaces(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, namespaces)
	}
}

func listNodesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := clientFromRequest(c, d)
		if !ok {
			return
		}
		nodes, err := client.ListNodes(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, nodes)
	}
}

func listDeploymentsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := clientFromRequest(c, d)
		if !ok {
			return
		}
		deployments, err := client.ListDeployments(c.Request.Context(), c.Query("namespace"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, deployments)
	}
}

func listServicesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		client, ok := clientFromRequest(c, d)
		if !ok {
			return
		}
		services, err := client.ListServices(c.Request.Context(), c.Query("namespace"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, services)
	}
}

func resourceYAMLHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ns := c.Query("namespace")
		kind := c.Query("kind")
		name := c.Query("name")
		if kind == "" || name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind e name são obrigatórios"})
			return
		}

		client, ok := clientFromRequest(c, d)
		if !ok {
			return
		}
		yamlContent, err := client.ResourceYAML(c.Request.Context(), ns, kind, name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"yaml": yamlContent})
	}
}

// =================================================================================
// HELPERS
// =================================================================================

// clientFromRequest resolve o cluster da URL para um handle vivo, já validando
// o dono. Em caso de erro a resposta já foi escrita.
func clientFromRequest(c *gin.Context, d *Deps) (*k8s.Client, bool) {
	client, err := d.Registry.Client(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return client, true
}

// passwordLoginRefusal explica por que o login por senha não serve para a
// conta: identidade externa (LDAP/OIDC) ou conta de manutenção sem senha
// própria (autentica só pelo caminho break-glass, quando habilitado).
func passwordLoginRefusal(u *models.User) string {
	if u.AuthProvider != models.ProviderLocal {
		return "use o login via " + u.AuthProvider
	}
	return "conta de manutenção; login por senha desabilitado"
}

// writeError mapeia a taxonomia de erros do core para status HTTP.
func writeError(c *gin.Context, err error) {
	var connErr *conncache.ConnectError
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrInvalidCredential):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, crypto.ErrDecrypt):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "credencial do cluster inválida; reenvie o kubeconfig"})
	case errors.Is(err, token.ErrStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "serviço temporariamente indisponível"})
	case errors.As(err, &connErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": connErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "erro interno"})
	}
}
