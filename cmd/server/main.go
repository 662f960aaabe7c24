package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/example/vkube-console/internal/api"
	"github.com/example/vkube-console/internal/config"
	"github.com/example/vkube-console/internal/conncache"
	"github.com/example/vkube-console/internal/crypto"
	"github.com/example/vkube-console/internal/db"
	"github.com/example/vkube-console/internal/k8s"
	"github.com/example/vkube-console/internal/registry"
	"github.com/example/vkube-console/internal/token"
	"github.com/example/vkube-console/internal/users"
	"github.com/example/vkube-console/internal/vault"
)

func main() {
	// Carrega variáveis de ambiente (.env em dev, env vars em prod)
	if err := config.LoadEnv(); err != nil {
		log.Printf("warn: erro ao carregar .env: %v", err)
	}

	cfg := config.New()

	gdb, err := db.InitPostgres(cfg)
	if err != nil {
		log.Fatalf("erro ao conectar no banco: %v", err)
	}
	defer db.Close(gdb)

	if err := db.AutoMigrate(gdb); err != nil {
		log.Fatalf("erro ao migrar modelos: %v", err)
	}

	cipher, err := crypto.New(cfg.AESKey)
	if err != nil {
		log.Fatalf("erro ao inicializar cifra: %v", err)
	}

	cache := conncache.New(cipher, k8s.Connect, cfg.HandleTTL, cfg.ConnectTimeout)
	defer cache.Close()

	tokens := token.NewService(token.NewStore(gdb), []byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL)
	usersRepo := users.NewRepo(gdb)
	reg := registry.New(vault.NewStore(gdb), cipher, cache)

	r := gin.Default()
	api.RegisterRoutes(r, &api.Deps{
		Cfg:      cfg,
		Tokens:   tokens,
		Users:    usersRepo,
		Registry: reg,
	})

	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}

	addr := ":" + port
	if err := r.Run(addr); err != nil {
		log.Printf("erro ao subir servidor: %v", err)
		os.Exit(1)
	}
}
