package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
	svc "github.com/sefimap/manager/internal/services"
	"github.com/sefimap/manager/internal/validate"
)

const maxUpload = 10 << 20

// inscriptionForm is the multipart registration form shared by the public
// page and the admin desk.
type inscriptionForm struct {
	Nom             string `json:"nom" validate:"notblank,max=100"`
	Prenom          string `json:"prenom" validate:"notblank,max=100"`
	Age             int    `json:"age" validate:"min=5,max=99"`
	Sexe            string `json:"sexe" validate:"oneof=M F"`
	NiveauEtude     string `json:"niveau_etude" validate:"max=100"`
	Telephone       string `json:"telephone" validate:"required,phone"`
	Email           string `json:"email" validate:"omitempty,email"`
	Quartier        string `json:"quartier" validate:"max=100"`
	NomTuteur       string `json:"nom_tuteur" validate:"max=100"`
	TelephoneTuteur string `json:"telephone_tuteur" validate:"omitempty,phone"`
	ChefQuartierID  uint   `json:"chef_quartier_id" validate:"required"`

	// admin desk only
	DortoirID       uint   `json:"dortoir_id"`
	NiveauFormation string `json:"niveau_formation" validate:"omitempty,oneof=debutant normal superieur"`
	MontantInitial  int64  `json:"montant_initial" validate:"min=0"`
	ModePaiement    string `json:"mode_paiement" validate:"omitempty,oneof=especes mobile_money virement autre"`
}

func formUint(r *http.Request, key string) uint {
	v, _ := strconv.ParseUint(strings.TrimSpace(r.FormValue(key)), 10, 64)
	return uint(v)
}

func readInscriptionForm(r *http.Request) inscriptionForm {
	age, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("age")))
	email, _ := svc.NormEmail(r.FormValue("email"))
	montant, _ := strconv.ParseInt(strings.TrimSpace(r.FormValue("montant_initial")), 10, 64)
	return inscriptionForm{
		Nom:             strings.TrimSpace(r.FormValue("nom")),
		Prenom:          strings.TrimSpace(r.FormValue("prenom")),
		Age:             age,
		Sexe:            strings.ToUpper(strings.TrimSpace(r.FormValue("sexe"))),
		NiveauEtude:     strings.TrimSpace(r.FormValue("niveau_etude")),
		Telephone:       strings.TrimSpace(r.FormValue("telephone")),
		Email:           email,
		Quartier:        strings.TrimSpace(r.FormValue("quartier")),
		NomTuteur:       strings.TrimSpace(r.FormValue("nom_tuteur")),
		TelephoneTuteur: strings.TrimSpace(r.FormValue("telephone_tuteur")),
		ChefQuartierID:  formUint(r, "chef_quartier_id"),
		DortoirID:       formUint(r, "dortoir_id"),
		NiveauFormation: strings.TrimSpace(r.FormValue("niveau_formation")),
		MontantInitial:  montant,
		ModePaiement:    strings.TrimSpace(r.FormValue("mode_paiement")),
	}
}

func (f inscriptionForm) inscription() *models.Inscription {
	insc := &models.Inscription{
		Nom:             f.Nom,
		Prenom:          f.Prenom,
		Age:             f.Age,
		Sexe:            f.Sexe,
		NiveauEtude:     f.NiveauEtude,
		Telephone:       f.Telephone,
		Email:           f.Email,
		Quartier:        f.Quartier,
		NomTuteur:       f.NomTuteur,
		TelephoneTuteur: f.TelephoneTuteur,
	}
	if f.ChefQuartierID != 0 {
		id := f.ChefQuartierID
		insc.ChefQuartierID = &id
	}
	if f.DortoirID != 0 {
		id := f.DortoirID
		insc.DortoirID = &id
	}
	if f.NiveauFormation != "" {
		n := f.NiveauFormation
		insc.NiveauFormation = &n
	}
	return insc
}

// photoPart returns the uploaded photo, or nil when the field is absent.
func photoPart(r *http.Request) (multipart.File, string, error) {
	f, hdr, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return f, hdr.Filename, nil
}

// POST /api/inscriptions (multipart)
func PublicRegister(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			badRequest(w, "Formulaire invalide.")
			return
		}
		form := readInscriptionForm(r)
		// the public page cannot set desk-only fields
		form.DortoirID, form.NiveauFormation, form.MontantInitial, form.ModePaiement = 0, "", 0, ""
		if err := validate.Struct(form); err != nil {
			app.writeError(w, r, err)
			return
		}

		photo, filename, err := photoPart(r)
		if err != nil {
			badRequest(w, "Photo illisible.")
			return
		}
		if photo == nil {
			app.writeError(w, r, svc.ErrPhotoRequise)
			return
		}
		defer photo.Close()

		insc := form.inscription()
		insc.Canal = models.CanalEnLigne
		if err := svc.Register(r.Context(), app.Photos, photo, filename, insc, nil); err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.AddInscriptionLocal(*insc))
		writeJSON(w, http.StatusCreated, insc)
	}
}

// POST /api/admin/inscriptions (multipart, photo optional)
func AdminRegister(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			badRequest(w, "Formulaire invalide.")
			return
		}
		form := readInscriptionForm(r)
		sess := session(r)
		if sess.IsPresident() && sess.ChefQuartierID != nil {
			form.ChefQuartierID = *sess.ChefQuartierID
		}
		if err := validate.Struct(form); err != nil {
			app.writeError(w, r, err)
			return
		}

		var (
			photo    io.Reader
			filename string
		)
		if f, name, err := photoPart(r); err != nil {
			badRequest(w, "Photo illisible.")
			return
		} else if f != nil {
			defer f.Close()
			photo, filename = f, name
		}

		insc := form.inscription()
		insc.Canal = models.CanalPresentielle
		var initial *models.Paiement
		if form.MontantInitial > 0 {
			initial = &models.Paiement{
				Montant:      form.MontantInitial,
				ModePaiement: form.ModePaiement,
				CreatedBy:    sess.Email,
			}
		}
		if err := svc.Register(r.Context(), app.Photos, photo, filename, insc, initial); err != nil {
			app.writeError(w, r, err)
			return
		}

		app.local(app.Cache.AddInscriptionLocal(*insc))
		if initial != nil && initial.ID != 0 {
			app.local(app.Cache.AddPaiementLocal(*initial))
		}
		writeJSON(w, http.StatusCreated, insc)
	}
}

type statutView struct {
	Code           string `json:"code"`
	Nom            string `json:"nom"`
	Prenom         string `json:"prenom"`
	Statut         string `json:"statut"`
	StatutPaiement string `json:"statut_paiement"`
	MontantPaye    int64  `json:"montant_paye"`
	Restant        int64  `json:"restant"`
}

// GET /api/inscriptions/statut?telephone=
func StatutLookup(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tel := r.URL.Query().Get("telephone")
		if svc.NormPhone(tel) == "" {
			badRequest(w, "Numéro de téléphone invalide.")
			return
		}
		insc, err := svc.FindInscriptionByPhone(db.Conn().WithContext(r.Context()), tel)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statutView{
			Code:           insc.Code,
			Nom:            insc.Nom,
			Prenom:         insc.Prenom,
			Statut:         insc.Statut,
			StatutPaiement: insc.StatutPaiement,
			MontantPaye:    insc.MontantPaye,
			Restant:        svc.Restant(*insc),
		})
	}
}

// GET /api/chefs
func ListChefs(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Cache.Chefs())
	}
}

// GET /api/dortoirs
func ListDortoirs(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Cache.DortoirStats())
	}
}
