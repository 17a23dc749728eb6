package services

import (
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
)

// Rang is a 1-based position within a class.
type Rang struct {
	Rang  int `json:"rang"`
	Total int `json:"total"`
}

// ComputeRanks ranks the notes of each class by moyenne, highest first.
// Notes without a moyenne are not ranked. Ties keep their input order.
func ComputeRanks(notes []models.NoteExamen) map[uint]Rang {
	byClasse := map[uint][]models.NoteExamen{}
	for _, n := range notes {
		if n.Moyenne == nil {
			continue
		}
		byClasse[n.ClasseID] = append(byClasse[n.ClasseID], n)
	}

	out := make(map[uint]Rang, len(notes))
	for _, peers := range byClasse {
		sort.SliceStable(peers, func(i, j int) bool {
			return *peers[i].Moyenne > *peers[j].Moyenne
		})
		for i, n := range peers {
			out[n.ID] = Rang{Rang: i + 1, Total: len(peers)}
		}
	}
	return out
}

// RankOf returns the rank of one note among its class peers, or false when
// it has no moyenne yet.
func RankOf(notes []models.NoteExamen, noteID uint) (Rang, bool) {
	var target *models.NoteExamen
	for i := range notes {
		if notes[i].ID == noteID {
			target = &notes[i]
			break
		}
	}
	if target == nil || target.Moyenne == nil {
		return Rang{}, false
	}
	peers := make([]models.NoteExamen, 0, len(notes))
	for _, n := range notes {
		if n.ClasseID == target.ClasseID {
			peers = append(peers, n)
		}
	}
	r, ok := ComputeRanks(peers)[noteID]
	return r, ok
}

// NoteInput is a grade entry for one registration in one class.
type NoteInput struct {
	InscriptionID uint     `json:"inscription_id" validate:"required"`
	ClasseID      uint     `json:"classe_id" validate:"required"`
	NoteEntree    *float64 `json:"note_entree" validate:"omitempty,min=0,max=20"`
	NoteCahiers   *float64 `json:"note_cahiers" validate:"omitempty,min=0,max=20"`
	NoteConduite  *float64 `json:"note_conduite" validate:"omitempty,min=0,max=20"`
	NoteSortie    *float64 `json:"note_sortie" validate:"omitempty,min=0,max=20"`
}

// UpsertNoteTx creates or updates the note of (inscription, classe). Only the
// sub-scores present in the input are overwritten.
func UpsertNoteTx(tx *gorm.DB, in NoteInput) (*models.NoteExamen, bool, error) {
	if _, err := loadInscription(tx, in.InscriptionID); err != nil {
		return nil, false, err
	}
	var c models.Classe
	if err := tx.First(&c, in.ClasseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrClasseIntrouvable
		}
		return nil, false, errors.Wrap(err, "load classe")
	}

	var n models.NoteExamen
	created := false
	err := tx.Where("inscription_id = ? AND classe_id = ?", in.InscriptionID, in.ClasseID).First(&n).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		n = models.NoteExamen{InscriptionID: in.InscriptionID, ClasseID: in.ClasseID}
		created = true
	case err != nil:
		return nil, false, errors.Wrap(err, "load note")
	}

	if in.NoteEntree != nil {
		n.NoteEntree = in.NoteEntree
	}
	if in.NoteCahiers != nil {
		n.NoteCahiers = in.NoteCahiers
	}
	if in.NoteConduite != nil {
		n.NoteConduite = in.NoteConduite
	}
	if in.NoteSortie != nil {
		n.NoteSortie = in.NoteSortie
	}
	if err := tx.Save(&n).Error; err != nil {
		return nil, false, errors.Wrap(err, "save note")
	}
	return &n, created, nil
}

func UpsertNote(in NoteInput) (*models.NoteExamen, bool, error) {
	var (
		n       *models.NoteExamen
		created bool
	)
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		n, created, err = UpsertNoteTx(tx, in)
		return err
	})
	return n, created, err
}

func DeleteNote(id uint) error {
	res := db.Conn().Delete(&models.NoteExamen{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete note")
	}
	if res.RowsAffected == 0 {
		return ErrNoteIntrouvable
	}
	return nil
}
