package cache

import (
	"github.com/sefimap/manager/internal/models"
)

func (p *Provider) Inscriptions() []models.Inscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.inscriptions)
}

// Inscription returns one cached registration.
func (p *Provider) Inscription(id uint) (models.Inscription, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i := index(p.inscriptions, id, inscriptionID); i >= 0 {
		return p.inscriptions[i], true
	}
	return models.Inscription{}, false
}

func (p *Provider) Paiements() []models.Paiement {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.paiements)
}

// PaiementsOf lists the cached payments of one registration.
func (p *Provider) PaiementsOf(inscriptionID uint) []models.Paiement {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := []models.Paiement{}
	for _, pm := range p.paiements {
		if pm.InscriptionID == inscriptionID {
			out = append(out, pm)
		}
	}
	return out
}

func (p *Provider) Dortoirs() []models.Dortoir {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.dortoirs)
}

func (p *Provider) DortoirStats() []models.DortoirStat {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.dortoirStats)
}

func (p *Provider) Classes() []models.Classe {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.classes)
}

func (p *Provider) Chefs() []models.ChefQuartier {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.chefs)
}

func (p *Provider) Notes() []models.NoteExamen {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.notes)
}

// NotesOfClasse lists the cached notes of one class.
func (p *Provider) NotesOfClasse(classeID uint) []models.NoteExamen {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := []models.NoteExamen{}
	for _, n := range p.notes {
		if n.ClasseID == classeID {
			out = append(out, n)
		}
	}
	return out
}

func (p *Provider) Capacites() []models.ConfigCapaciteClasse {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.capacites)
}
