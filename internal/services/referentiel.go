package services

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
)

// Reference data: dormitories, classes, section presidents and the
// per-level class size.

type DortoirInput struct {
	Nom      string `json:"nom" validate:"required,notblank,max=100"`
	Capacite int    `json:"capacite" validate:"gt=0"`
	Sexe     string `json:"sexe" validate:"omitempty,oneof=M F"`
}

// DortoirPatch edits a dormitory. An empty sexe makes it mixed.
type DortoirPatch struct {
	Nom      *string `json:"nom" validate:"omitempty,notblank,max=100"`
	Capacite *int    `json:"capacite" validate:"omitempty,gt=0"`
	Sexe     *string `json:"sexe" validate:"omitempty,oneof=M F"`
}

func loadDortoir(tx *gorm.DB, id uint) (*models.Dortoir, error) {
	var d models.Dortoir
	if err := tx.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDortoirIntrouvable
		}
		return nil, errors.Wrap(err, "load dortoir")
	}
	return &d, nil
}

func dortoirNomPris(tx *gorm.DB, nom string, except uint) (bool, error) {
	var n int64
	if err := tx.Model(&models.Dortoir{}).Where("nom = ? AND id <> ?", nom, except).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "count dortoirs")
	}
	return n > 0, nil
}

func occupationTx(tx *gorm.DB, dortoirID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.Inscription{}).
		Where("dortoir_id = ? AND statut <> ?", dortoirID, models.StatutRejete).
		Count(&n).Error
	return n, errors.Wrap(err, "count occupation")
}

func CreateDortoirTx(tx *gorm.DB, in DortoirInput) (*models.Dortoir, error) {
	d := models.Dortoir{Nom: strings.TrimSpace(in.Nom), Capacite: in.Capacite, Sexe: in.Sexe}
	taken, err := dortoirNomPris(tx, d.Nom, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDortoirExiste
	}
	if err := tx.Create(&d).Error; err != nil {
		return nil, errors.Wrap(err, "insert dortoir")
	}
	return &d, nil
}

func CreateDortoir(in DortoirInput) (*models.Dortoir, error) {
	var d *models.Dortoir
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = CreateDortoirTx(tx, in)
		return err
	})
	return d, err
}

// UpdateDortoirTx refuses to shrink a dormitory below its occupancy.
func UpdateDortoirTx(tx *gorm.DB, id uint, p DortoirPatch) (*models.Dortoir, map[string]any, error) {
	d, err := loadDortoir(tx, id)
	if err != nil {
		return nil, nil, err
	}
	changes := map[string]any{}
	if p.Nom != nil {
		nom := strings.TrimSpace(*p.Nom)
		taken, err := dortoirNomPris(tx, nom, id)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			return nil, nil, ErrDortoirExiste
		}
		d.Nom = nom
		changes["nom"] = nom
	}
	if p.Sexe != nil {
		d.Sexe = *p.Sexe
		changes["sexe"] = d.Sexe
	}
	if p.Capacite != nil {
		occ, err := occupationTx(tx, id)
		if err != nil {
			return nil, nil, err
		}
		if int64(*p.Capacite) < occ {
			return nil, nil, ErrCapaciteInsuffisante
		}
		d.Capacite = *p.Capacite
		changes["capacite"] = d.Capacite
	}
	if len(changes) == 0 {
		return d, changes, nil
	}
	if err := tx.Model(d).Updates(changes).Error; err != nil {
		return nil, nil, errors.Wrap(err, "update dortoir")
	}
	return d, changes, nil
}

func UpdateDortoir(id uint, p DortoirPatch) (*models.Dortoir, map[string]any, error) {
	var (
		d       *models.Dortoir
		changes map[string]any
	)
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		d, changes, err = UpdateDortoirTx(tx, id, p)
		return err
	})
	return d, changes, err
}

// DeleteDortoirTx removes an empty dormitory. Rejected registrations still
// pointing at it are detached; their ids are returned.
func DeleteDortoirTx(tx *gorm.DB, id uint) ([]uint, error) {
	if _, err := loadDortoir(tx, id); err != nil {
		return nil, err
	}
	occ, err := occupationTx(tx, id)
	if err != nil {
		return nil, err
	}
	if occ > 0 {
		return nil, ErrDortoirOccupe
	}
	var detached []uint
	if err := tx.Model(&models.Inscription{}).Where("dortoir_id = ?", id).Pluck("id", &detached).Error; err != nil {
		return nil, errors.Wrap(err, "list detached")
	}
	if len(detached) > 0 {
		if err := tx.Model(&models.Inscription{}).Where("id IN ?", detached).Update("dortoir_id", nil).Error; err != nil {
			return nil, errors.Wrap(err, "detach inscriptions")
		}
	}
	if err := tx.Delete(&models.Dortoir{}, id).Error; err != nil {
		return nil, errors.Wrap(err, "delete dortoir")
	}
	return detached, nil
}

func DeleteDortoir(id uint) ([]uint, error) {
	var detached []uint
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		detached, err = DeleteDortoirTx(tx, id)
		return err
	})
	return detached, err
}

// ClasseInput creates a class. A zero capacite takes the configured size for
// the class level, when there is one.
type ClasseInput struct {
	Nom      string `json:"nom" validate:"required,notblank,max=100"`
	Niveau   string `json:"niveau" validate:"omitempty,oneof=debutant normal superieur"`
	Capacite int    `json:"capacite" validate:"min=0"`
}

type ClassePatch struct {
	Nom      *string `json:"nom" validate:"omitempty,notblank,max=100"`
	Niveau   *string `json:"niveau" validate:"omitempty,oneof=debutant normal superieur"`
	Capacite *int    `json:"capacite" validate:"omitempty,min=0"`
}

func loadClasse(tx *gorm.DB, id uint) (*models.Classe, error) {
	var c models.Classe
	if err := tx.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClasseIntrouvable
		}
		return nil, errors.Wrap(err, "load classe")
	}
	return &c, nil
}

func notesCountTx(tx *gorm.DB, classeID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.NoteExamen{}).Where("classe_id = ?", classeID).Count(&n).Error
	return n, errors.Wrap(err, "count notes")
}

func CreateClasseTx(tx *gorm.DB, in ClasseInput) (*models.Classe, error) {
	c := models.Classe{Nom: strings.TrimSpace(in.Nom), Niveau: in.Niveau, Capacite: in.Capacite}
	if c.Capacite == 0 && c.Niveau != "" {
		var cfg models.ConfigCapaciteClasse
		err := tx.Where("niveau_formation = ?", c.Niveau).First(&cfg).Error
		switch {
		case err == nil:
			c.Capacite = cfg.CapaciteParClasse
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, errors.Wrap(err, "load capacite")
		}
	}
	if err := tx.Create(&c).Error; err != nil {
		return nil, errors.Wrap(err, "insert classe")
	}
	return &c, nil
}

func CreateClasse(in ClasseInput) (*models.Classe, error) {
	var c *models.Classe
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = CreateClasseTx(tx, in)
		return err
	})
	return c, err
}

// UpdateClasseTx refuses a capacity below the number of graded students.
// A zero capacite means unlimited.
func UpdateClasseTx(tx *gorm.DB, id uint, p ClassePatch) (*models.Classe, map[string]any, error) {
	c, err := loadClasse(tx, id)
	if err != nil {
		return nil, nil, err
	}
	changes := map[string]any{}
	if p.Nom != nil {
		c.Nom = strings.TrimSpace(*p.Nom)
		changes["nom"] = c.Nom
	}
	if p.Niveau != nil {
		c.Niveau = *p.Niveau
		changes["niveau"] = c.Niveau
	}
	if p.Capacite != nil {
		if *p.Capacite > 0 {
			n, err := notesCountTx(tx, id)
			if err != nil {
				return nil, nil, err
			}
			if int64(*p.Capacite) < n {
				return nil, nil, ErrCapaciteInsuffisante
			}
		}
		c.Capacite = *p.Capacite
		changes["capacite"] = c.Capacite
	}
	if len(changes) == 0 {
		return c, changes, nil
	}
	if err := tx.Model(c).Updates(changes).Error; err != nil {
		return nil, nil, errors.Wrap(err, "update classe")
	}
	return c, changes, nil
}

func UpdateClasse(id uint, p ClassePatch) (*models.Classe, map[string]any, error) {
	var (
		c       *models.Classe
		changes map[string]any
	)
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		c, changes, err = UpdateClasseTx(tx, id, p)
		return err
	})
	return c, changes, err
}

func DeleteClasseTx(tx *gorm.DB, id uint) error {
	if _, err := loadClasse(tx, id); err != nil {
		return err
	}
	n, err := notesCountTx(tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrClasseUtilisee
	}
	return errors.Wrap(tx.Delete(&models.Classe{}, id).Error, "delete classe")
}

func DeleteClasse(id uint) error {
	return db.Conn().Transaction(func(tx *gorm.DB) error {
		return DeleteClasseTx(tx, id)
	})
}

type ChefInput struct {
	Nom       string `json:"nom" validate:"required,notblank,max=100"`
	Zone      string `json:"zone" validate:"max=100"`
	Ecole     string `json:"ecole" validate:"max=100"`
	Telephone string `json:"telephone" validate:"omitempty,phone"`
}

type ChefPatch struct {
	Nom       *string `json:"nom" validate:"omitempty,notblank,max=100"`
	Zone      *string `json:"zone" validate:"omitempty,max=100"`
	Ecole     *string `json:"ecole" validate:"omitempty,max=100"`
	Telephone *string `json:"telephone" validate:"omitempty,phone"`
}

func loadChef(tx *gorm.DB, id uint) (*models.ChefQuartier, error) {
	var c models.ChefQuartier
	if err := tx.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChefIntrouvable
		}
		return nil, errors.Wrap(err, "load chef")
	}
	return &c, nil
}

func CreateChef(in ChefInput) (*models.ChefQuartier, error) {
	c := models.ChefQuartier{
		Nom:       strings.TrimSpace(in.Nom),
		Zone:      strings.TrimSpace(in.Zone),
		Ecole:     strings.TrimSpace(in.Ecole),
		Telephone: NormPhone(in.Telephone),
	}
	if err := db.Conn().Create(&c).Error; err != nil {
		return nil, errors.Wrap(err, "insert chef")
	}
	return &c, nil
}

func UpdateChefTx(tx *gorm.DB, id uint, p ChefPatch) (*models.ChefQuartier, map[string]any, error) {
	c, err := loadChef(tx, id)
	if err != nil {
		return nil, nil, err
	}
	changes := map[string]any{}
	setStr := func(col string, v *string, dst *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
			changes[col] = *dst
		}
	}
	setStr("nom", p.Nom, &c.Nom)
	setStr("zone", p.Zone, &c.Zone)
	setStr("ecole", p.Ecole, &c.Ecole)
	if p.Telephone != nil {
		c.Telephone = NormPhone(*p.Telephone)
		changes["telephone"] = c.Telephone
	}
	if len(changes) == 0 {
		return c, changes, nil
	}
	if err := tx.Model(c).Updates(changes).Error; err != nil {
		return nil, nil, errors.Wrap(err, "update chef")
	}
	return c, changes, nil
}

func UpdateChef(id uint, p ChefPatch) (*models.ChefQuartier, map[string]any, error) {
	var (
		c       *models.ChefQuartier
		changes map[string]any
	)
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		c, changes, err = UpdateChefTx(tx, id, p)
		return err
	})
	return c, changes, err
}

// DeleteChefTx removes a section president nobody refers to.
func DeleteChefTx(tx *gorm.DB, id uint) error {
	if _, err := loadChef(tx, id); err != nil {
		return err
	}
	var inscs, users int64
	if err := tx.Model(&models.Inscription{}).Where("chef_quartier_id = ?", id).Count(&inscs).Error; err != nil {
		return errors.Wrap(err, "count inscriptions")
	}
	if err := tx.Model(&models.AdminUser{}).Where("chef_quartier_id = ?", id).Count(&users).Error; err != nil {
		return errors.Wrap(err, "count admin users")
	}
	if inscs+users > 0 {
		return ErrChefUtilise
	}
	return errors.Wrap(tx.Delete(&models.ChefQuartier{}, id).Error, "delete chef")
}

func DeleteChef(id uint) error {
	return db.Conn().Transaction(func(tx *gorm.DB) error {
		return DeleteChefTx(tx, id)
	})
}

type CapaciteInput struct {
	NiveauFormation   string `json:"niveau_formation" validate:"required"`
	CapaciteParClasse int    `json:"capacite_par_classe" validate:"gt=0"`
}

// SetCapaciteTx creates or replaces the class size of a level. It reports
// whether the row was created.
func SetCapaciteTx(tx *gorm.DB, in CapaciteInput) (*models.ConfigCapaciteClasse, bool, error) {
	if !slices.Contains(models.NiveauxFormation, in.NiveauFormation) {
		return nil, false, ErrNiveauInvalide
	}
	var cfg models.ConfigCapaciteClasse
	err := tx.Where("niveau_formation = ?", in.NiveauFormation).First(&cfg).Error
	created := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cfg = models.ConfigCapaciteClasse{NiveauFormation: in.NiveauFormation}
		created = true
	case err != nil:
		return nil, false, errors.Wrap(err, "load capacite")
	}
	cfg.CapaciteParClasse = in.CapaciteParClasse
	if err := tx.Save(&cfg).Error; err != nil {
		return nil, false, errors.Wrap(err, "save capacite")
	}
	return &cfg, created, nil
}

func SetCapacite(in CapaciteInput) (*models.ConfigCapaciteClasse, bool, error) {
	var (
		cfg     *models.ConfigCapaciteClasse
		created bool
	)
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		cfg, created, err = SetCapaciteTx(tx, in)
		return err
	})
	return cfg, created, err
}

// StatistiquesNiveaux reads vue_statistiques_niveaux_formation, most
// populated level first.
func StatistiquesNiveaux(conn *gorm.DB) ([]models.NiveauStat, error) {
	rows := []models.NiveauStat{}
	err := conn.Table("vue_statistiques_niveaux_formation").
		Order("total DESC, niveau_formation").
		Find(&rows).Error
	return rows, errors.Wrap(err, "load niveaux")
}
