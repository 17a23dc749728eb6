package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/logsvc"
	"github.com/sefimap/manager/internal/models"
)

// PhotoStore is the participant photo bucket.
type PhotoStore interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

// CanValidate enforces the one validation precondition: an online
// registration needs a dormitory. In-person registrations are exempt.
func CanValidate(insc models.Inscription) error {
	if insc.Canal == models.CanalEnLigne && insc.DortoirID == nil {
		return ErrDortoirRequis
	}
	return nil
}

// CheckDortoirCapacity is the quick check against cached occupancy. The
// registration's own assignment is not counted; reassigning to the same
// dormitory is always allowed.
func CheckDortoirCapacity(stats []models.DortoirStat, insc models.Inscription, dortoirID uint) error {
	if insc.DortoirID != nil && *insc.DortoirID == dortoirID {
		return nil
	}
	for _, s := range stats {
		if s.DortoirID != dortoirID {
			continue
		}
		if s.Occupation >= s.Capacite {
			return ErrDortoirPlein
		}
		return nil
	}
	return ErrDortoirIntrouvable
}

func generateCode(tx *gorm.DB) (string, error) {
	buf := make([]byte, 4)
	for i := 0; i < 20; i++ {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "read random")
		}
		code := "SEF-" + strings.ToUpper(hex.EncodeToString(buf))
		var exists int64
		if err := tx.Model(&models.Inscription{}).Where("code = ?", code).Count(&exists).Error; err != nil {
			return "", errors.Wrap(err, "check code")
		}
		if exists == 0 {
			return code, nil
		}
	}
	return "", ErrCodeIndisponible
}

func loadInscription(tx *gorm.DB, id uint) (*models.Inscription, error) {
	var insc models.Inscription
	if err := tx.First(&insc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInscriptionIntrouvable
		}
		return nil, errors.Wrap(err, "load inscription")
	}
	return &insc, nil
}

// CreateInscriptionTx inserts a registration with its initial state and, when
// given, a first payment.
func CreateInscriptionTx(tx *gorm.DB, insc *models.Inscription, initial *models.Paiement) error {
	code, err := generateCode(tx)
	if err != nil {
		return err
	}
	insc.ID = 0
	insc.Code = code
	insc.Statut = models.StatutEnAttente
	insc.StatutPaiement = models.PaiementNonPaye
	insc.MontantPaye = 0
	if insc.Canal == "" {
		insc.Canal = models.CanalEnLigne
	}
	insc.Telephone = NormPhone(insc.Telephone)
	insc.TelephoneTuteur = NormPhone(insc.TelephoneTuteur)
	insc.Email, _ = NormEmail(insc.Email)

	if insc.DortoirID != nil {
		if err := checkDortoirTx(tx, insc, *insc.DortoirID); err != nil {
			return err
		}
	}
	if err := tx.Create(insc).Error; err != nil {
		return errors.Wrap(err, "insert inscription")
	}

	if initial != nil && initial.Montant > 0 {
		initial.InscriptionID = insc.ID
		updated, err := AddPaiementTx(tx, initial, Scope{})
		if err != nil {
			return err
		}
		insc.MontantPaye = updated.MontantPaye
		insc.StatutPaiement = updated.StatutPaiement
	}
	return nil
}

// Register uploads the photo, then stores the registration (and optional
// first payment) in one transaction. Without a stored photo nothing is
// created; when the insert fails the uploaded photo is removed again.
func Register(ctx context.Context, photos PhotoStore, photo io.Reader, filename string, insc *models.Inscription, initial *models.Paiement) error {
	if photo != nil {
		url, err := photos.Upload(ctx, filename, photo)
		if err != nil {
			return errors.Wrap(err, "upload photo")
		}
		insc.PhotoURL = url
	} else if insc.Canal != models.CanalPresentielle {
		return ErrPhotoRequise
	}

	err := db.Conn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return CreateInscriptionTx(tx, insc, initial)
	})
	if err != nil && insc.PhotoURL != "" {
		if derr := photos.Delete(ctx, insc.PhotoURL); derr != nil {
			logsvc.Default().Warn("photo cleanup failed", derr, map[string]interface{}{"photo_url": insc.PhotoURL})
		}
	}
	return err
}

// ValidateTx moves a pending registration to valide once CanValidate passes.
// Validating an already valid registration is a no-op.
func ValidateTx(tx *gorm.DB, id uint) (*models.Inscription, error) {
	insc, err := loadInscription(tx, id)
	if err != nil {
		return nil, err
	}
	switch insc.Statut {
	case models.StatutValide:
		return insc, nil
	case models.StatutEnAttente:
	default:
		return nil, ErrStatutInvalide
	}
	if err := CanValidate(*insc); err != nil {
		return nil, err
	}
	insc.Statut = models.StatutValide
	if err := tx.Model(insc).Update("statut", insc.Statut).Error; err != nil {
		return nil, errors.Wrap(err, "update statut")
	}
	return insc, nil
}

func Validate(id uint) (*models.Inscription, error) {
	var insc *models.Inscription
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		insc, err = ValidateTx(tx, id)
		return err
	})
	return insc, err
}

// RejectTx moves a pending registration to rejete.
func RejectTx(tx *gorm.DB, id uint) (*models.Inscription, error) {
	insc, err := loadInscription(tx, id)
	if err != nil {
		return nil, err
	}
	switch insc.Statut {
	case models.StatutRejete:
		return insc, nil
	case models.StatutEnAttente:
	default:
		return nil, ErrStatutInvalide
	}
	insc.Statut = models.StatutRejete
	if err := tx.Model(insc).Update("statut", insc.Statut).Error; err != nil {
		return nil, errors.Wrap(err, "update statut")
	}
	return insc, nil
}

func Reject(id uint) (*models.Inscription, error) {
	var insc *models.Inscription
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		insc, err = RejectTx(tx, id)
		return err
	})
	return insc, err
}

// checkDortoirTx counts occupancy inside the write transaction, ignoring the
// registration itself.
func checkDortoirTx(tx *gorm.DB, insc *models.Inscription, dortoirID uint) error {
	var d models.Dortoir
	if err := tx.First(&d, dortoirID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDortoirIntrouvable
		}
		return errors.Wrap(err, "load dortoir")
	}
	var occupied int64
	q := tx.Model(&models.Inscription{}).
		Where("dortoir_id = ? AND statut <> ?", dortoirID, models.StatutRejete)
	if insc.ID != 0 {
		q = q.Where("id <> ?", insc.ID)
	}
	if err := q.Count(&occupied).Error; err != nil {
		return errors.Wrap(err, "count occupation")
	}
	if occupied >= int64(d.Capacite) {
		return ErrDortoirPlein
	}
	return nil
}

// AssignDortoirTx assigns a dormitory after checking its capacity.
func AssignDortoirTx(tx *gorm.DB, id, dortoirID uint) (*models.Inscription, error) {
	insc, err := loadInscription(tx, id)
	if err != nil {
		return nil, err
	}
	if insc.DortoirID != nil && *insc.DortoirID == dortoirID {
		return insc, nil
	}
	if err := checkDortoirTx(tx, insc, dortoirID); err != nil {
		return nil, err
	}
	insc.DortoirID = &dortoirID
	if err := tx.Model(insc).Update("dortoir_id", dortoirID).Error; err != nil {
		return nil, errors.Wrap(err, "update dortoir")
	}
	return insc, nil
}

func AssignDortoir(id, dortoirID uint) (*models.Inscription, error) {
	var insc *models.Inscription
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		insc, err = AssignDortoirTx(tx, id, dortoirID)
		return err
	})
	return insc, err
}

// InscriptionPatch is an admin edit. Nil fields are left alone; a zero
// dortoir_id or chef_quartier_id and an empty niveau_formation clear the
// reference.
type InscriptionPatch struct {
	Nom             *string `json:"nom" validate:"omitempty,notblank,max=100"`
	Prenom          *string `json:"prenom" validate:"omitempty,notblank,max=100"`
	Age             *int    `json:"age" validate:"omitempty,min=5,max=99"`
	Sexe            *string `json:"sexe" validate:"omitempty,oneof=M F"`
	NiveauEtude     *string `json:"niveau_etude" validate:"omitempty,max=100"`
	Telephone       *string `json:"telephone" validate:"omitempty,phone"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Quartier        *string `json:"quartier" validate:"omitempty,max=100"`
	NomTuteur       *string `json:"nom_tuteur" validate:"omitempty,max=100"`
	TelephoneTuteur *string `json:"telephone_tuteur" validate:"omitempty,phone"`
	Canal           *string `json:"canal" validate:"omitempty,oneof=en_ligne presentielle"`
	Statut          *string `json:"statut" validate:"omitempty,oneof=en_attente valide rejete"`
	MontantRequis   *int64  `json:"montant_requis" validate:"omitempty,min=0"`
	DortoirID       *uint   `json:"dortoir_id"`
	NiveauFormation *string `json:"niveau_formation" validate:"omitempty,oneof=debutant normal superieur"`
	ChefQuartierID  *uint   `json:"chef_quartier_id"`
}

// UpdateTx applies an admin edit and returns the updated registration plus
// the changed columns. Status may be set freely except that an online
// registration cannot become valide without a dormitory.
func UpdateTx(tx *gorm.DB, id uint, p InscriptionPatch) (*models.Inscription, map[string]any, error) {
	insc, err := loadInscription(tx, id)
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
	setStr("nom", p.Nom, &insc.Nom)
	setStr("prenom", p.Prenom, &insc.Prenom)
	setStr("sexe", p.Sexe, &insc.Sexe)
	setStr("niveau_etude", p.NiveauEtude, &insc.NiveauEtude)
	setStr("quartier", p.Quartier, &insc.Quartier)
	setStr("nom_tuteur", p.NomTuteur, &insc.NomTuteur)
	setStr("canal", p.Canal, &insc.Canal)
	setStr("statut", p.Statut, &insc.Statut)
	if p.Email != nil {
		insc.Email, _ = NormEmail(*p.Email)
		changes["email"] = insc.Email
	}
	if p.Telephone != nil {
		insc.Telephone = NormPhone(*p.Telephone)
		changes["telephone"] = insc.Telephone
	}
	if p.TelephoneTuteur != nil {
		insc.TelephoneTuteur = NormPhone(*p.TelephoneTuteur)
		changes["telephone_tuteur"] = insc.TelephoneTuteur
	}
	if p.Age != nil {
		insc.Age = *p.Age
		changes["age"] = insc.Age
	}
	if p.MontantRequis != nil {
		insc.MontantRequis = *p.MontantRequis
		changes["montant_requis"] = insc.MontantRequis
	}
	if p.NiveauFormation != nil {
		if *p.NiveauFormation == "" {
			insc.NiveauFormation = nil
			changes["niveau_formation"] = nil
		} else {
			v := *p.NiveauFormation
			insc.NiveauFormation = &v
			changes["niveau_formation"] = v
		}
	}
	if p.ChefQuartierID != nil {
		if *p.ChefQuartierID == 0 {
			insc.ChefQuartierID = nil
			changes["chef_quartier_id"] = nil
		} else {
			v := *p.ChefQuartierID
			insc.ChefQuartierID = &v
			changes["chef_quartier_id"] = v
		}
	}
	if p.DortoirID != nil {
		if *p.DortoirID == 0 {
			insc.DortoirID = nil
			changes["dortoir_id"] = nil
		} else if insc.DortoirID == nil || *insc.DortoirID != *p.DortoirID {
			if err := checkDortoirTx(tx, insc, *p.DortoirID); err != nil {
				return nil, nil, err
			}
			v := *p.DortoirID
			insc.DortoirID = &v
			changes["dortoir_id"] = v
		}
	}

	if insc.Statut == models.StatutValide {
		if err := CanValidate(*insc); err != nil {
			return nil, nil, err
		}
	}
	if _, ok := changes["montant_requis"]; ok {
		insc.StatutPaiement = DerivePaymentStatus(insc.MontantPaye, MontantRequis(*insc), insc.StatutPaiement)
		changes["statut_paiement"] = insc.StatutPaiement
	}
	if len(changes) == 0 {
		return insc, changes, nil
	}
	if err := tx.Model(insc).Updates(changes).Error; err != nil {
		return nil, nil, errors.Wrap(err, "update inscription")
	}
	return insc, changes, nil
}

func Update(id uint, p InscriptionPatch) (*models.Inscription, map[string]any, error) {
	var (
		insc    *models.Inscription
		changes map[string]any
	)
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		insc, changes, err = UpdateTx(tx, id, p)
		return err
	})
	return insc, changes, err
}

// DeleteTx removes a registration with its payments and exam notes. It
// returns the deleted row so the caller can clean up the photo.
func DeleteTx(tx *gorm.DB, id uint) (*models.Inscription, error) {
	insc, err := loadInscription(tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("inscription_id = ?", id).Delete(&models.NoteExamen{}).Error; err != nil {
		return nil, errors.Wrap(err, "delete notes")
	}
	if err := tx.Where("inscription_id = ?", id).Delete(&models.Paiement{}).Error; err != nil {
		return nil, errors.Wrap(err, "delete paiements")
	}
	if err := tx.Delete(insc).Error; err != nil {
		return nil, errors.Wrap(err, "delete inscription")
	}
	return insc, nil
}

func Delete(id uint) (*models.Inscription, error) {
	var insc *models.Inscription
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		insc, err = DeleteTx(tx, id)
		return err
	})
	return insc, err
}
