package cache

import (
	"math"

	"github.com/sefimap/manager/internal/models"
	"github.com/sefimap/manager/internal/services"
)

// Stats are the dashboard totals.
type Stats struct {
	TotalInscriptions     int   `json:"totalInscriptions"`
	InscriptionsValidees  int   `json:"inscriptionsValidees"`
	InscriptionsEnAttente int   `json:"inscriptionsEnAttente"`
	InscriptionsRejetees  int   `json:"inscriptionsRejetees"`
	Hommes                int   `json:"hommes"`
	Femmes                int   `json:"femmes"`
	EnLigne               int   `json:"enLigne"`
	Presentielle          int   `json:"presentielle"`
	TotalPaye             int64 `json:"totalPaye"`
	TotalRestant          int64 `json:"totalRestant"`
	TotalPaiements        int   `json:"totalPaiements"`
	DortoirsPleins        int   `json:"dortoirsPleins"`
	CapaciteDortoirs      int   `json:"capaciteDortoirs"`
}

// StatsScientifique summarises exam grading. Participants are counted once
// per registration whatever the number of note rows.
type StatsScientifique struct {
	Participants    int            `json:"participants"`
	Debutant        int            `json:"debutant"`
	Normal          int            `json:"normal"`
	Superieur       int            `json:"superieur"`
	SansNiveau      int            `json:"sansNiveau"`
	NotesSaisies    int            `json:"notesSaisies"`
	MoyenneGenerale *float64       `json:"moyenneGenerale"`
	ParClasse       map[uint]int   `json:"parClasse"`
	ParNiveau       map[string]int `json:"parNiveau"`
}

func computeStats(inscs []models.Inscription, paiements []models.Paiement, dortoirs []models.DortoirStat) Stats {
	var s Stats
	s.TotalInscriptions = len(inscs)
	for _, i := range inscs {
		switch i.Statut {
		case models.StatutValide:
			s.InscriptionsValidees++
		case models.StatutEnAttente:
			s.InscriptionsEnAttente++
		case models.StatutRejete:
			s.InscriptionsRejetees++
		}
		switch i.Sexe {
		case "M":
			s.Hommes++
		case "F":
			s.Femmes++
		}
		switch i.Canal {
		case models.CanalEnLigne:
			s.EnLigne++
		case models.CanalPresentielle:
			s.Presentielle++
		}
		if i.Statut != models.StatutRejete {
			s.TotalPaye += i.MontantPaye
			s.TotalRestant += services.Restant(i)
		}
	}
	s.TotalPaiements = len(paiements)
	for _, d := range dortoirs {
		s.CapaciteDortoirs += d.Capacite
		if d.Occupation >= d.Capacite {
			s.DortoirsPleins++
		}
	}
	return s
}

func computeStatsScientifique(inscs []models.Inscription, notes []models.NoteExamen) StatsScientifique {
	niveauOf := make(map[uint]*string, len(inscs))
	for _, i := range inscs {
		niveauOf[i.ID] = i.NiveauFormation
	}

	s := StatsScientifique{
		ParClasse: map[uint]int{},
		ParNiveau: map[string]int{},
	}
	seen := map[uint]bool{}
	perNiveau := map[string]map[uint]bool{}
	var sum float64

	for _, n := range notes {
		s.ParClasse[n.ClasseID]++
		if n.Moyenne != nil {
			s.NotesSaisies++
			sum += *n.Moyenne
		}
		if seen[n.InscriptionID] {
			continue
		}
		seen[n.InscriptionID] = true

		niveau, ok := niveauOf[n.InscriptionID]
		if !ok && n.Inscription != nil {
			niveau = n.Inscription.NiveauFormation
		}
		key := ""
		if niveau != nil {
			key = *niveau
		}
		if perNiveau[key] == nil {
			perNiveau[key] = map[uint]bool{}
		}
		perNiveau[key][n.InscriptionID] = true
	}

	s.Participants = len(seen)
	for k, ids := range perNiveau {
		s.ParNiveau[k] = len(ids)
	}
	s.Debutant = s.ParNiveau[models.NiveauDebutant]
	s.Normal = s.ParNiveau[models.NiveauNormal]
	s.Superieur = s.ParNiveau[models.NiveauSuperieur]
	s.SansNiveau = s.ParNiveau[""]
	delete(s.ParNiveau, "")
	if s.NotesSaisies > 0 {
		m := math.Round(sum/float64(s.NotesSaisies)*100) / 100
		s.MoyenneGenerale = &m
	}
	return s
}

// recompute refreshes both aggregates. Caller holds p.mu.
func (p *Provider) recompute() {
	p.stats = computeStats(p.inscriptions, p.paiements, p.dortoirStats)
	p.sci = computeStatsScientifique(p.inscriptions, p.notes)
}

func (p *Provider) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func (p *Provider) StatsScientifique() StatsScientifique {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.copySci()
}

// Caller holds p.mu.
func (p *Provider) copySci() StatsScientifique {
	s := p.sci
	s.ParClasse = make(map[uint]int, len(p.sci.ParClasse))
	for k, v := range p.sci.ParClasse {
		s.ParClasse[k] = v
	}
	s.ParNiveau = make(map[string]int, len(p.sci.ParNiveau))
	for k, v := range p.sci.ParNiveau {
		s.ParNiveau[k] = v
	}
	return s
}
