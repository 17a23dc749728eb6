package services

import (
	"slices"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
)

// DefaultMontantRequis applies to registrations without their own amount.
var DefaultMontantRequis int64 = 4000

var ModesPaiement = []string{"especes", "mobile_money", "virement", "autre"}

// MontantRequis returns the amount a participant owes.
func MontantRequis(insc models.Inscription) int64 {
	if insc.MontantRequis > 0 {
		return insc.MontantRequis
	}
	return DefaultMontantRequis
}

// DerivePaymentStatus classifies a paid amount against the required amount.
// Finance decisions (valide_financier, refuse) survive recomputation.
func DerivePaymentStatus(paye, requis int64, current string) string {
	switch current {
	case models.PaiementValideFinancier, models.PaiementRefuse:
		return current
	}
	if requis <= 0 {
		requis = DefaultMontantRequis
	}
	switch {
	case paye >= requis:
		return models.PaiementSolde
	case paye > 0:
		return models.PaiementPartiel
	default:
		return models.PaiementNonPaye
	}
}

// IsSettled reports whether a registration no longer awaits financial
// validation. A refused registration is never settled.
func IsSettled(insc models.Inscription) bool {
	if insc.StatutPaiement == models.PaiementRefuse {
		return false
	}
	if insc.StatutPaiement == models.PaiementSolde || insc.StatutPaiement == models.PaiementValideFinancier {
		return true
	}
	return insc.MontantPaye >= MontantRequis(insc)
}

// Restant is what is still owed, never negative.
func Restant(insc models.Inscription) int64 {
	r := MontantRequis(insc) - insc.MontantPaye
	if r < 0 {
		return 0
	}
	return r
}

// AddPaiement appends a payment and rewrites the registration totals.
// Registrations outside scope read as unknown.
func AddPaiement(p *models.Paiement, scope Scope) (*models.Inscription, error) {
	var insc *models.Inscription
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		insc, err = AddPaiementTx(tx, p, scope)
		return err
	})
	return insc, err
}

// AddPaiementTx does the same as AddPaiement inside an existing TX. A payment
// arriving after a refusal reopens the file: the status is derived again
// from the amounts.
func AddPaiementTx(tx *gorm.DB, p *models.Paiement, scope Scope) (*models.Inscription, error) {
	if p.Montant <= 0 {
		return nil, ErrMontantInvalide
	}
	if p.Statut == "" {
		p.Statut = models.StatutValide
	}
	if p.ModePaiement == "" {
		p.ModePaiement = "especes"
	}
	if !slices.Contains(ModesPaiement, p.ModePaiement) {
		return nil, ErrModePaiementInvalide
	}
	var insc models.Inscription
	if err := tx.First(&insc, p.InscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInscriptionIntrouvable
		}
		return nil, errors.Wrap(err, "load inscription")
	}
	if !scope.Allows(insc) {
		return nil, ErrInscriptionIntrouvable
	}
	if err := tx.Create(p).Error; err != nil {
		return nil, errors.Wrap(err, "insert paiement")
	}
	return recomputeTx(tx, insc.ID, insc.StatutPaiement == models.PaiementRefuse)
}

// AnnulerPaiement voids a ledger line. The line stays for the record but no
// longer counts towards the total.
func AnnulerPaiement(id uint) (*models.Paiement, *models.Inscription, error) {
	var (
		p    *models.Paiement
		insc *models.Inscription
	)
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		p, insc, err = AnnulerPaiementTx(tx, id)
		return err
	})
	return p, insc, err
}

func AnnulerPaiementTx(tx *gorm.DB, id uint) (*models.Paiement, *models.Inscription, error) {
	var p models.Paiement
	if err := tx.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrPaiementIntrouvable
		}
		return nil, nil, errors.Wrap(err, "load paiement")
	}
	if p.Statut != models.StatutValide {
		return nil, nil, ErrStatutInvalide
	}
	p.Statut = models.StatutAnnule
	if err := tx.Model(&p).Update("statut", p.Statut).Error; err != nil {
		return nil, nil, errors.Wrap(err, "update paiement")
	}
	insc, err := RecomputePaiementsTx(tx, p.InscriptionID)
	if err != nil {
		return nil, nil, err
	}
	return &p, insc, nil
}

// RecomputePaiementsTx sums the ledger of a registration and writes the total
// and the derived status back onto it.
func RecomputePaiementsTx(tx *gorm.DB, inscriptionID uint) (*models.Inscription, error) {
	return recomputeTx(tx, inscriptionID, false)
}

func recomputeTx(tx *gorm.DB, inscriptionID uint, reopen bool) (*models.Inscription, error) {
	var insc models.Inscription
	if err := tx.First(&insc, inscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInscriptionIntrouvable
		}
		return nil, errors.Wrap(err, "load inscription")
	}

	var total int64
	if err := tx.Model(&models.Paiement{}).
		Where("inscription_id = ? AND statut = ?", inscriptionID, models.StatutValide).
		Select("COALESCE(SUM(montant), 0)").
		Scan(&total).Error; err != nil {
		return nil, errors.Wrap(err, "sum paiements")
	}

	current := insc.StatutPaiement
	if reopen && current == models.PaiementRefuse {
		current = ""
	}
	insc.MontantPaye = total
	insc.StatutPaiement = DerivePaymentStatus(total, MontantRequis(insc), current)
	if err := tx.Model(&insc).Updates(map[string]any{
		"montant_paye":    insc.MontantPaye,
		"statut_paiement": insc.StatutPaiement,
	}).Error; err != nil {
		return nil, errors.Wrap(err, "update totals")
	}
	return &insc, nil
}

// DecideFinance records a finance decision: valide_financier or refuse.
// Refusal must be confirmed by the caller.
func DecideFinance(inscriptionID uint, decision string, confirmed bool) (*models.Inscription, error) {
	var insc *models.Inscription
	err := db.Conn().Transaction(func(tx *gorm.DB) error {
		var err error
		insc, err = DecideFinanceTx(tx, inscriptionID, decision, confirmed)
		return err
	})
	return insc, err
}

func DecideFinanceTx(tx *gorm.DB, inscriptionID uint, decision string, confirmed bool) (*models.Inscription, error) {
	switch decision {
	case models.PaiementValideFinancier:
	case models.PaiementRefuse:
		if !confirmed {
			return nil, ErrConfirmation
		}
	default:
		return nil, ErrStatutInvalide
	}
	var insc models.Inscription
	if err := tx.First(&insc, inscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInscriptionIntrouvable
		}
		return nil, errors.Wrap(err, "load inscription")
	}
	insc.StatutPaiement = decision
	if err := tx.Model(&insc).Update("statut_paiement", decision).Error; err != nil {
		return nil, errors.Wrap(err, "update statut_paiement")
	}
	return &insc, nil
}

// ResumeFinancier splits registrations into pending and settled and totals
// what was collected and what is still owed.
type ResumeFinancier struct {
	TotalCollecte int64                `json:"total_collecte"`
	TotalRestant  int64                `json:"total_restant"`
	EnAttente     []models.Inscription `json:"en_attente"`
	Regles        []models.Inscription `json:"regles"`
}

func BuildResumeFinancier(inscs []models.Inscription) ResumeFinancier {
	out := ResumeFinancier{
		EnAttente: []models.Inscription{},
		Regles:    []models.Inscription{},
	}
	for _, i := range inscs {
		if i.Statut == models.StatutRejete {
			continue
		}
		out.TotalCollecte += i.MontantPaye
		out.TotalRestant += Restant(i)
		if IsSettled(i) {
			out.Regles = append(out.Regles, i)
		} else {
			out.EnAttente = append(out.EnAttente, i)
		}
	}
	return out
}
