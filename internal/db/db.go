package db

import (
	"log"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sefimap/manager/internal/models"
)

var conn *gorm.DB

// Init opens the database named by url: a postgres:// URL selects PostgreSQL,
// anything else is a SQLite file path.
func Init(url string) error {
	c, err := Open(url)
	if err != nil {
		return err
	}
	conn = c
	log.Printf("database ready (%s)", c.Dialector.Name())
	return nil
}

// Open connects, migrates and installs the statistic views without touching
// the package-level connection.
func Open(url string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		c   *gorm.DB
		err error
	)
	if isPostgres(url) {
		c, err = gorm.Open(postgres.Open(url), cfg)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
	} else {
		c, err = gorm.Open(sqlite.Open(url+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"), cfg)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := c.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := Migrate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// Migrate creates tables, composite indexes and the two statistic views.
func Migrate(c *gorm.DB) error {
	if err := c.AutoMigrate(
		&models.ChefQuartier{},
		&models.Dortoir{},
		&models.Inscription{},
		&models.Paiement{},
		&models.Classe{},
		&models.NoteExamen{},
		&models.ConfigCapaciteClasse{},
		&models.AdminUser{},
	); err != nil {
		return errors.Wrap(err, "auto-migrate")
	}

	// Composite indexes that GORM doesn't auto-create from struct tags.
	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_insc_statut_canal ON inscriptions(statut, canal)",
		"CREATE INDEX IF NOT EXISTS idx_insc_dortoir_statut ON inscriptions(dortoir_id, statut)",
		"CREATE INDEX IF NOT EXISTS idx_notes_classe_moyenne ON notes_examens(classe_id, moyenne)",
	} {
		if err := c.Exec(stmt).Error; err != nil {
			return errors.Wrap(err, "create index")
		}
	}

	for _, stmt := range viewStatements {
		if err := c.Exec(stmt).Error; err != nil {
			return errors.Wrap(err, "create view")
		}
	}
	return nil
}

// Occupancy counts every registration that is not rejected.
var viewStatements = []string{
	`DROP VIEW IF EXISTS vue_statistiques_dortoirs`,
	`CREATE VIEW vue_statistiques_dortoirs AS
		SELECT d.id AS dortoir_id,
		       d.nom AS nom,
		       d.capacite AS capacite,
		       COUNT(i.id) AS occupation,
		       d.capacite - COUNT(i.id) AS places_libres,
		       CASE WHEN d.capacite > 0
		            THEN ROUND(COUNT(i.id) * 100.0 / d.capacite, 1)
		            ELSE 0 END AS taux_remplissage
		FROM dortoirs d
		LEFT JOIN inscriptions i ON i.dortoir_id = d.id AND i.statut <> 'rejete'
		GROUP BY d.id, d.nom, d.capacite`,
	`DROP VIEW IF EXISTS vue_statistiques_niveaux_formation`,
	`CREATE VIEW vue_statistiques_niveaux_formation AS
		SELECT i.niveau_formation AS niveau_formation,
		       COUNT(*) AS total,
		       ROUND(COUNT(*) * 100.0 / (SELECT COUNT(*) FROM inscriptions
		                                 WHERE niveau_formation IS NOT NULL AND niveau_formation <> ''), 1) AS pourcentage
		FROM inscriptions i
		WHERE i.niveau_formation IS NOT NULL AND i.niveau_formation <> ''
		GROUP BY i.niveau_formation`,
}

func Conn() *gorm.DB {
	return conn
}

// Use swaps the package-level connection; tests point it at a temp database.
func Use(c *gorm.DB) {
	conn = c
}
