package models

import "time"

// Registration channels.
const (
	CanalEnLigne      = "en_ligne"
	CanalPresentielle = "presentielle"
)

// Registration statuses.
const (
	StatutEnAttente = "en_attente"
	StatutValide    = "valide"
	StatutRejete    = "rejete"
)

// A voided ledger line keeps its row with this status.
const StatutAnnule = "annule"

// Payment statuses stored on a registration.
const (
	PaiementNonPaye         = "non_payé"
	PaiementPartiel         = "partiel"
	PaiementSolde           = "soldé"
	PaiementValideFinancier = "valide_financier"
	PaiementRefuse          = "refuse"
)

// Training levels.
const (
	NiveauDebutant  = "debutant"
	NiveauNormal    = "normal"
	NiveauSuperieur = "superieur"
)

var NiveauxFormation = []string{NiveauDebutant, NiveauNormal, NiveauSuperieur}

type ChefQuartier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Nom       string `gorm:"not null" json:"nom"`
	Zone      string `json:"zone"`
	Ecole     string `json:"ecole"`
	Telephone string `json:"telephone"`
}

func (ChefQuartier) TableName() string { return "chefs_quartier" }

type Dortoir struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Nom      string `gorm:"uniqueIndex;not null" json:"nom"`
	Capacite int    `gorm:"not null" json:"capacite"`
	Sexe     string `json:"sexe"` // "M", "F" or empty for mixed
}

// Status: en_attente | valide | rejete
type Inscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code string `gorm:"uniqueIndex" json:"code"` // e.g. SEF-1A2B3C4D

	Nom         string `gorm:"not null" json:"nom"`
	Prenom      string `gorm:"not null" json:"prenom"`
	Age         int    `json:"age"`
	Sexe        string `json:"sexe"`
	NiveauEtude string `json:"niveau_etude"`
	Telephone   string `json:"telephone"`
	Email       string `json:"email"`
	Quartier    string `json:"quartier"`

	NomTuteur       string `json:"nom_tuteur"`
	TelephoneTuteur string `json:"telephone_tuteur"`

	Canal          string `gorm:"not null;default:'en_ligne'" json:"canal"`
	Statut         string `gorm:"not null;default:'en_attente'" json:"statut"`
	StatutPaiement string `gorm:"not null;default:'non_payé'" json:"statut_paiement"`
	MontantPaye    int64  `gorm:"not null;default:0" json:"montant_paye"`
	MontantRequis  int64  `gorm:"not null;default:0" json:"montant_requis"` // 0 means the configured default

	DortoirID       *uint   `gorm:"index" json:"dortoir_id"`
	NiveauFormation *string `json:"niveau_formation"`
	PhotoURL        string  `json:"photo_url"`
	ChefQuartierID  *uint   `gorm:"index" json:"chef_quartier_id"`

	ChefQuartier *ChefQuartier `gorm:"foreignKey:ChefQuartierID" json:"chef_quartier,omitempty"`
	Dortoir      *Dortoir      `gorm:"foreignKey:DortoirID" json:"dortoir,omitempty"`
}

func (Inscription) TableName() string { return "inscriptions" }

func (i Inscription) NomComplet() string {
	if i.Prenom == "" {
		return i.Nom
	}
	return i.Prenom + " " + i.Nom
}

type Paiement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InscriptionID uint   `gorm:"index;not null" json:"inscription_id"`
	Montant       int64  `gorm:"not null" json:"montant"`
	ModePaiement  string `gorm:"not null" json:"mode_paiement"`           // especes | mobile_money | virement | autre
	Statut        string `gorm:"not null;default:'valide'" json:"statut"` // valide | annule
	CreatedBy     string `json:"created_by"`

	Inscription *Inscription `gorm:"foreignKey:InscriptionID" json:"inscription,omitempty"`
}

func (Paiement) TableName() string { return "paiements" }

type Classe struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Nom      string `gorm:"not null" json:"nom"`
	Niveau   string `gorm:"index" json:"niveau"`
	Capacite int    `json:"capacite"`
}

func (Classe) TableName() string { return "classes" }

// NoteExamen links one registration to one class. Moyenne is filled by the
// store on save once the four sub-scores are present.
type NoteExamen struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	InscriptionID uint `gorm:"uniqueIndex:idx_note_insc_classe;not null" json:"inscription_id"`
	ClasseID      uint `gorm:"uniqueIndex:idx_note_insc_classe;not null" json:"classe_id"`

	NoteEntree   *float64 `json:"note_entree"`
	NoteCahiers  *float64 `json:"note_cahiers"`
	NoteConduite *float64 `json:"note_conduite"`
	NoteSortie   *float64 `json:"note_sortie"`
	Moyenne      *float64 `json:"moyenne"`

	Inscription *Inscription `gorm:"foreignKey:InscriptionID" json:"inscription,omitempty"`
	Classe      *Classe      `gorm:"foreignKey:ClasseID" json:"classe,omitempty"`
}

func (NoteExamen) TableName() string { return "notes_examens" }

type ConfigCapaciteClasse struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	NiveauFormation   string `gorm:"uniqueIndex;not null" json:"niveau_formation"`
	CapaciteParClasse int    `gorm:"not null" json:"capacite_par_classe"`
}

func (ConfigCapaciteClasse) TableName() string { return "config_capacite_classes" }

// Roles: admin | president | finance
type AdminUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID         string `gorm:"uniqueIndex;not null" json:"user_id"` // hosted-auth subject
	Email          string `json:"email"`
	Nom            string `json:"nom"`
	Role           string `gorm:"not null" json:"role"`
	ChefQuartierID *uint  `json:"chef_quartier_id"`
}

func (AdminUser) TableName() string { return "admin_users" }

const (
	RoleAdmin     = "admin"
	RolePresident = "president"
	RoleFinance   = "finance"
)

// DortoirStat is a row of vue_statistiques_dortoirs.
type DortoirStat struct {
	DortoirID       uint    `json:"dortoir_id"`
	Nom             string  `json:"nom"`
	Capacite        int     `json:"capacite"`
	Occupation      int     `json:"occupation"`
	PlacesLibres    int     `json:"places_libres"`
	TauxRemplissage float64 `json:"taux_remplissage"`
}

// NiveauStat is a row of vue_statistiques_niveaux_formation.
type NiveauStat struct {
	NiveauFormation string  `json:"niveau_formation"`
	Total           int     `json:"total"`
	Pourcentage     float64 `json:"pourcentage"`
}
