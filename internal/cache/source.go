package cache

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
)

// Source fetches every collection the provider keeps. Each method is called
// on its own goroutine during a load.
type Source interface {
	Inscriptions(ctx context.Context) ([]models.Inscription, error)
	Paiements(ctx context.Context) ([]models.Paiement, error)
	Dortoirs(ctx context.Context) ([]models.Dortoir, []models.DortoirStat, error)
	Classes(ctx context.Context) ([]models.Classe, error)
	Chefs(ctx context.Context) ([]models.ChefQuartier, error)
	Notes(ctx context.Context) ([]models.NoteExamen, error)
	Capacites(ctx context.Context) ([]models.ConfigCapaciteClasse, error)
}

// GormSource reads from the application database. A nil DB means db.Conn().
type GormSource struct {
	DB *gorm.DB
}

var _ Source = GormSource{}

func (s GormSource) conn(ctx context.Context) *gorm.DB {
	c := s.DB
	if c == nil {
		c = db.Conn()
	}
	return c.WithContext(ctx)
}

func (s GormSource) Inscriptions(ctx context.Context) ([]models.Inscription, error) {
	var out []models.Inscription
	err := s.conn(ctx).
		Preload("ChefQuartier").
		Preload("Dortoir").
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, errors.Wrap(err, "inscriptions")
}

func (s GormSource) Paiements(ctx context.Context) ([]models.Paiement, error) {
	var out []models.Paiement
	err := s.conn(ctx).
		Preload("Inscription").
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, errors.Wrap(err, "paiements")
}

func (s GormSource) Dortoirs(ctx context.Context) ([]models.Dortoir, []models.DortoirStat, error) {
	var (
		out   []models.Dortoir
		stats []models.DortoirStat
	)
	if err := s.conn(ctx).Order("nom").Find(&out).Error; err != nil {
		return nil, nil, errors.Wrap(err, "dortoirs")
	}
	if err := s.conn(ctx).Table("vue_statistiques_dortoirs").Order("nom").Find(&stats).Error; err != nil {
		return nil, nil, errors.Wrap(err, "vue_statistiques_dortoirs")
	}
	return out, stats, nil
}

func (s GormSource) Classes(ctx context.Context) ([]models.Classe, error) {
	var out []models.Classe
	err := s.conn(ctx).Order("niveau, nom").Find(&out).Error
	return out, errors.Wrap(err, "classes")
}

func (s GormSource) Chefs(ctx context.Context) ([]models.ChefQuartier, error) {
	var out []models.ChefQuartier
	err := s.conn(ctx).Order("nom").Find(&out).Error
	return out, errors.Wrap(err, "chefs_quartier")
}

func (s GormSource) Notes(ctx context.Context) ([]models.NoteExamen, error) {
	var out []models.NoteExamen
	err := s.conn(ctx).
		Preload("Inscription").
		Preload("Classe").
		Order("id").
		Find(&out).Error
	return out, errors.Wrap(err, "notes_examens")
}

func (s GormSource) Capacites(ctx context.Context) ([]models.ConfigCapaciteClasse, error) {
	var out []models.ConfigCapaciteClasse
	err := s.conn(ctx).Order("niveau_formation").Find(&out).Error
	return out, errors.Wrap(err, "config_capacite_classes")
}
