package models

import (
	"math"

	"gorm.io/gorm"
)

// ComputeMoyenne averages the four sub-scores, rounded to two decimals.
// It returns nil while any sub-score is missing.
func ComputeMoyenne(entree, cahiers, conduite, sortie *float64) *float64 {
	if entree == nil || cahiers == nil || conduite == nil || sortie == nil {
		return nil
	}
	m := (*entree + *cahiers + *conduite + *sortie) / 4
	m = math.Round(m*100) / 100
	return &m
}

func (n *NoteExamen) BeforeSave(tx *gorm.DB) error {
	n.Moyenne = ComputeMoyenne(n.NoteEntree, n.NoteCahiers, n.NoteConduite, n.NoteSortie)
	return nil
}
