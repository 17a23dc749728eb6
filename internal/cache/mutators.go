package cache

import (
	"math"

	"github.com/sefimap/manager/internal/models"
)

// The *Local mutators apply a write that already succeeded in the store.
// They never talk to the store themselves; the record stays pending until a
// load that started afterwards confirms it.

func updateLocal[T any](items []T, id uint, idOf func(T) uint, patch map[string]any) ([]T, T, error) {
	var zero T
	i := index(items, id, idOf)
	if i < 0 {
		return items, zero, ErrUnknownRecord
	}
	rec, err := applyPatch(items[i], patch)
	if err != nil {
		return items, zero, err
	}
	out := clone(items)
	out[i] = rec
	return out, rec, nil
}

// UpdateInscriptionLocal patches one registration. Keys are JSON field names.
func (p *Provider) UpdateInscriptionLocal(id uint, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, rec, err := updateLocal(p.inscriptions, id, inscriptionID, patch)
	if err != nil {
		return err
	}
	i := index(items, id, inscriptionID)
	items[i] = p.linkInscription(rec)
	p.inscriptions = items
	p.track(CollInscriptions, id, patch, false)
	p.deriveDortoirStats()
	p.recompute()
	return nil
}

// AddInscriptionLocal prepends a new registration or replaces a known one.
func (p *Provider) AddInscriptionLocal(rec models.Inscription) error {
	patch, err := scalarFields(rec)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inscriptions = upsert(p.inscriptions, p.linkInscription(rec), inscriptionID)
	p.track(CollInscriptions, rec.ID, patch, false)
	p.deriveDortoirStats()
	p.recompute()
	return nil
}

// DeleteInscriptionLocal drops a registration with its payments and notes.
func (p *Provider) DeleteInscriptionLocal(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := remove(p.inscriptions, id, inscriptionID)
	if !ok {
		return ErrUnknownRecord
	}
	p.inscriptions = items

	paiements := make([]models.Paiement, 0, len(p.paiements))
	for _, pm := range p.paiements {
		if pm.InscriptionID != id {
			paiements = append(paiements, pm)
		}
	}
	p.paiements = paiements

	notes := make([]models.NoteExamen, 0, len(p.notes))
	for _, n := range p.notes {
		if n.InscriptionID != id {
			notes = append(notes, n)
		}
	}
	p.notes = notes

	p.track(CollInscriptions, id, nil, true)
	p.deriveDortoirStats()
	p.recompute()
	return nil
}

func (p *Provider) UpdatePaiementLocal(id uint, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, _, err := updateLocal(p.paiements, id, paiementID, patch)
	if err != nil {
		return err
	}
	p.paiements = items
	p.track(CollPaiements, id, patch, false)
	p.recompute()
	return nil
}

func (p *Provider) AddPaiementLocal(rec models.Paiement) error {
	patch, err := scalarFields(rec)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.Inscription == nil {
		if i := index(p.inscriptions, rec.InscriptionID, inscriptionID); i >= 0 {
			insc := p.inscriptions[i]
			rec.Inscription = &insc
		}
	}
	p.paiements = upsert(p.paiements, rec, paiementID)
	p.track(CollPaiements, rec.ID, patch, false)
	p.recompute()
	return nil
}

func (p *Provider) DeletePaiementLocal(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := remove(p.paiements, id, paiementID)
	if !ok {
		return ErrUnknownRecord
	}
	p.paiements = items
	p.track(CollPaiements, id, nil, true)
	p.recompute()
	return nil
}

func (p *Provider) UpdateDortoirLocal(id uint, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, _, err := updateLocal(p.dortoirs, id, dortoirID, patch)
	if err != nil {
		return err
	}
	p.dortoirs = items
	p.track(CollDortoirs, id, patch, false)
	p.relink()
	p.deriveDortoirStats()
	p.recompute()
	return nil
}

func (p *Provider) AddDortoirLocal(rec models.Dortoir) error {
	patch, err := scalarFields(rec)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dortoirs = upsert(p.dortoirs, rec, dortoirID)
	p.track(CollDortoirs, rec.ID, patch, false)
	p.relink()
	p.deriveDortoirStats()
	p.recompute()
	return nil
}

func (p *Provider) DeleteDortoirLocal(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := remove(p.dortoirs, id, dortoirID)
	if !ok {
		return ErrUnknownRecord
	}
	p.dortoirs = items
	p.track(CollDortoirs, id, nil, true)
	p.relink()
	p.deriveDortoirStats()
	p.recompute()
	return nil
}

func (p *Provider) UpdateClasseLocal(id uint, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, _, err := updateLocal(p.classes, id, classeID, patch)
	if err != nil {
		return err
	}
	p.classes = items
	p.track(CollClasses, id, patch, false)
	p.recompute()
	return nil
}

func (p *Provider) AddClasseLocal(rec models.Classe) error {
	patch, err := scalarFields(rec)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.classes = upsert(p.classes, rec, classeID)
	p.track(CollClasses, rec.ID, patch, false)
	p.recompute()
	return nil
}

func (p *Provider) DeleteClasseLocal(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := remove(p.classes, id, classeID)
	if !ok {
		return ErrUnknownRecord
	}
	p.classes = items
	p.track(CollClasses, id, nil, true)
	p.recompute()
	return nil
}

func (p *Provider) UpdateChefLocal(id uint, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, _, err := updateLocal(p.chefs, id, chefID, patch)
	if err != nil {
		return err
	}
	p.chefs = items
	p.track(CollChefs, id, patch, false)
	p.relink()
	return nil
}

func (p *Provider) AddChefLocal(rec models.ChefQuartier) error {
	patch, err := scalarFields(rec)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chefs = upsert(p.chefs, rec, chefID)
	p.track(CollChefs, rec.ID, patch, false)
	p.relink()
	return nil
}

func (p *Provider) DeleteChefLocal(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := remove(p.chefs, id, chefID)
	if !ok {
		return ErrUnknownRecord
	}
	p.chefs = items
	p.track(CollChefs, id, nil, true)
	p.relink()
	return nil
}

func (p *Provider) UpdateNoteLocal(id uint, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, _, err := updateLocal(p.notes, id, noteID, patch)
	if err != nil {
		return err
	}
	p.notes = items
	p.track(CollNotes, id, patch, false)
	p.recompute()
	return nil
}

func (p *Provider) AddNoteLocal(rec models.NoteExamen) error {
	patch, err := scalarFields(rec)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.Inscription == nil {
		if i := index(p.inscriptions, rec.InscriptionID, inscriptionID); i >= 0 {
			insc := p.inscriptions[i]
			rec.Inscription = &insc
		}
	}
	if rec.Classe == nil {
		if i := index(p.classes, rec.ClasseID, classeID); i >= 0 {
			c := p.classes[i]
			rec.Classe = &c
		}
	}
	p.notes = upsert(p.notes, rec, noteID)
	p.track(CollNotes, rec.ID, patch, false)
	p.recompute()
	return nil
}

func (p *Provider) DeleteNoteLocal(id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, ok := remove(p.notes, id, noteID)
	if !ok {
		return ErrUnknownRecord
	}
	p.notes = items
	p.track(CollNotes, id, nil, true)
	p.recompute()
	return nil
}

// SetCapaciteLocal records the class size of a level, replacing the row of
// the same level.
func (p *Provider) SetCapaciteLocal(rec models.ConfigCapaciteClasse) error {
	patch, err := scalarFields(rec)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacites = upsert(p.capacites, rec, capaciteID)
	p.track(CollCapacites, rec.ID, patch, false)
	return nil
}

// relink refreshes the joined rows of every registration after a dormitory
// or president changed. Caller holds p.mu.
func (p *Provider) relink() {
	out := make([]models.Inscription, len(p.inscriptions))
	for i, rec := range p.inscriptions {
		out[i] = p.linkInscription(rec)
	}
	p.inscriptions = out
}

// deriveDortoirStats rebuilds occupancy from the cached rows the way
// vue_statistiques_dortoirs counts it. It keeps the loaded figures while the
// registrations slice failed to load. Caller holds p.mu.
func (p *Provider) deriveDortoirStats() {
	if _, failed := p.loadErrs[CollInscriptions]; failed {
		return
	}
	occ := map[uint]int{}
	for _, i := range p.inscriptions {
		if i.DortoirID != nil && i.Statut != models.StatutRejete {
			occ[*i.DortoirID]++
		}
	}
	stats := make([]models.DortoirStat, 0, len(p.dortoirs))
	for _, d := range p.dortoirs {
		s := models.DortoirStat{DortoirID: d.ID, Nom: d.Nom, Capacite: d.Capacite, Occupation: occ[d.ID]}
		s.PlacesLibres = s.Capacite - s.Occupation
		if s.Capacite > 0 {
			s.TauxRemplissage = math.Round(float64(s.Occupation)*1000/float64(s.Capacite)) / 10
		}
		stats = append(stats, s)
	}
	p.dortoirStats = stats
}

// linkInscription points the joined president and dormitory at the cached
// rows matching the record's references. Caller holds p.mu.
func (p *Provider) linkInscription(rec models.Inscription) models.Inscription {
	rec.Dortoir = nil
	if rec.DortoirID != nil {
		if i := index(p.dortoirs, *rec.DortoirID, dortoirID); i >= 0 {
			d := p.dortoirs[i]
			rec.Dortoir = &d
		}
	}
	rec.ChefQuartier = nil
	if rec.ChefQuartierID != nil {
		if i := index(p.chefs, *rec.ChefQuartierID, chefID); i >= 0 {
			c := p.chefs[i]
			rec.ChefQuartier = &c
		}
	}
	return rec
}
