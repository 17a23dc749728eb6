package services

import "github.com/sefimap/manager/internal/models"

// Scope limits a write to the registrations of one section. The zero value
// allows every section. A restricted scope without a section allows none.
type Scope struct {
	Restricted     bool
	ChefQuartierID *uint
}

func (s Scope) Allows(insc models.Inscription) bool {
	if !s.Restricted {
		return true
	}
	return s.ChefQuartierID != nil && insc.ChefQuartierID != nil && *insc.ChefQuartierID == *s.ChefQuartierID
}
