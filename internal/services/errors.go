package services

import "github.com/pkg/errors"

var (
	ErrInscriptionIntrouvable = errors.New("inscription introuvable")
	ErrDortoirIntrouvable     = errors.New("dortoir introuvable")
	ErrClasseIntrouvable      = errors.New("classe introuvable")
	ErrNoteIntrouvable        = errors.New("note introuvable")
	ErrChefIntrouvable        = errors.New("chef de quartier introuvable")
	ErrPaiementIntrouvable    = errors.New("paiement introuvable")

	ErrDortoirRequis    = errors.New("un dortoir doit être attribué avant la validation d'une inscription en ligne")
	ErrDortoirPlein     = errors.New("ce dortoir est complet")
	ErrStatutInvalide   = errors.New("transition de statut non autorisée")
	ErrMontantInvalide  = errors.New("le montant doit être strictement positif")
	ErrConfirmation     = errors.New("le refus doit être confirmé")
	ErrPhotoRequise     = errors.New("une photo est requise")
	ErrCodeIndisponible = errors.New("impossible de générer un code d'inscription")

	ErrModePaiementInvalide = errors.New("mode de paiement inconnu")
	ErrNiveauInvalide       = errors.New("niveau de formation inconnu")

	ErrDortoirExiste        = errors.New("un dortoir porte déjà ce nom")
	ErrDortoirOccupe        = errors.New("ce dortoir héberge encore des participants")
	ErrCapaciteInsuffisante = errors.New("la capacité est inférieure à l'occupation actuelle")
	ErrClasseUtilisee       = errors.New("cette classe a des notes enregistrées")
	ErrChefUtilise          = errors.New("ce chef de quartier a des inscriptions ou des comptes rattachés")
)
