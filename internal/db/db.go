package db

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/example/vkube-console/internal/config"
	"github.com/example/vkube-console/internal/models"
)

// InitPostgres inicializa a conexão com PostgreSQL.
func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	log.Println("conectado ao PostgreSQL")
	return gdb, nil
}

// AutoMigrate executa as migrações automáticas dos modelos principais.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Cluster{},
		&models.RefreshToken{},
	)
}

// Close fecha a conexão com o banco (usado em testes / shutdown).
func Close(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	sqlDB, err := gdb.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
}
