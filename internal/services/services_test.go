package services

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
)

// openTestDB returns an isolated SQLite database in a temp directory and makes
// it the package-level connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.Use(gdb)
	return gdb
}

func uptr(v uint) *uint       { return &v }
func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func seedDortoir(t *testing.T, gdb *gorm.DB, nom string, capacite int) models.Dortoir {
	t.Helper()
	d := models.Dortoir{Nom: nom, Capacite: capacite}
	require.NoError(t, gdb.Create(&d).Error)
	return d
}

func seedInscription(t *testing.T, gdb *gorm.DB, canal string) models.Inscription {
	t.Helper()
	insc := models.Inscription{Nom: "Kouassi", Prenom: "Ama", Sexe: "F", Canal: canal, Telephone: "0708091011"}
	require.NoError(t, CreateInscriptionTx(gdb, &insc, nil))
	return insc
}

func TestCanValidate(t *testing.T) {
	online := models.Inscription{Canal: models.CanalEnLigne}
	assert.Equal(t, ErrDortoirRequis, CanValidate(online))

	online.DortoirID = uptr(3)
	assert.NoError(t, CanValidate(online))

	inPerson := models.Inscription{Canal: models.CanalPresentielle}
	assert.NoError(t, CanValidate(inPerson), "in-person registrations need no dormitory")
}

func TestCheckDortoirCapacity(t *testing.T) {
	stats := []models.DortoirStat{
		{DortoirID: 1, Capacite: 10, Occupation: 9},
		{DortoirID: 2, Capacite: 10, Occupation: 10},
	}
	insc := models.Inscription{ID: 7}

	assert.NoError(t, CheckDortoirCapacity(stats, insc, 1))
	assert.Equal(t, ErrDortoirPlein, CheckDortoirCapacity(stats, insc, 2))
	assert.Equal(t, ErrDortoirIntrouvable, CheckDortoirCapacity(stats, insc, 99))

	// already assigned to the full dormitory: idempotent
	insc.DortoirID = uptr(2)
	assert.NoError(t, CheckDortoirCapacity(stats, insc, 2))
}

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		paye, requis int64
		current      string
		want         string
	}{
		{0, 4000, "", models.PaiementNonPaye},
		{1500, 4000, models.PaiementNonPaye, models.PaiementPartiel},
		{4000, 4000, models.PaiementPartiel, models.PaiementSolde},
		{5000, 0, "", models.PaiementSolde},
		{3999, 0, "", models.PaiementPartiel},
		{0, 4000, models.PaiementValideFinancier, models.PaiementValideFinancier},
		{4000, 4000, models.PaiementRefuse, models.PaiementRefuse},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DerivePaymentStatus(c.paye, c.requis, c.current), "paye=%d requis=%d", c.paye, c.requis)
	}
}

func TestIsSettled(t *testing.T) {
	assert.True(t, IsSettled(models.Inscription{MontantPaye: 4000}))
	assert.False(t, IsSettled(models.Inscription{MontantPaye: 3999}))
	assert.True(t, IsSettled(models.Inscription{MontantPaye: 3000, MontantRequis: 3000}))
	assert.True(t, IsSettled(models.Inscription{StatutPaiement: models.PaiementValideFinancier}))
	assert.False(t, IsSettled(models.Inscription{StatutPaiement: models.PaiementRefuse, MontantPaye: 4000}))
	assert.Equal(t, int64(1000), Restant(models.Inscription{MontantPaye: 3000}))
	assert.Equal(t, int64(0), Restant(models.Inscription{MontantPaye: 6000}))
}

func TestComputeRanks_TiesKeepInsertionOrder(t *testing.T) {
	notes := []models.NoteExamen{
		{ID: 1, ClasseID: 1, Moyenne: fptr(18)},
		{ID: 2, ClasseID: 1, Moyenne: fptr(15)},
		{ID: 3, ClasseID: 1, Moyenne: fptr(18)},
		{ID: 4, ClasseID: 1, Moyenne: fptr(10)},
		{ID: 5, ClasseID: 1},                   // no moyenne yet
		{ID: 6, ClasseID: 2, Moyenne: fptr(5)}, // other class
	}
	ranks := ComputeRanks(notes)

	assert.Equal(t, Rang{1, 4}, ranks[1])
	assert.Equal(t, Rang{2, 4}, ranks[3])
	assert.Equal(t, Rang{3, 4}, ranks[2])
	assert.Equal(t, Rang{4, 4}, ranks[4])
	assert.Equal(t, Rang{1, 1}, ranks[6])
	_, ok := ranks[5]
	assert.False(t, ok)

	r, ok := RankOf(notes, 3)
	require.True(t, ok)
	assert.Equal(t, 2, r.Rang)
	_, ok = RankOf(notes, 5)
	assert.False(t, ok)
}

func TestCreateInscription_Defaults(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalEnLigne)

	var got models.Inscription
	require.NoError(t, gdb.First(&got, insc.ID).Error)
	assert.Equal(t, models.StatutEnAttente, got.Statut)
	assert.Equal(t, models.PaiementNonPaye, got.StatutPaiement)
	assert.Equal(t, int64(0), got.MontantPaye)
	assert.Regexp(t, `^SEF-[0-9A-F]{8}$`, got.Code)
	assert.Equal(t, "+2250708091011", got.Telephone)
}

func TestCreateInscription_WithInitialPayment(t *testing.T) {
	gdb := openTestDB(t)
	insc := models.Inscription{Nom: "Yao", Prenom: "Koffi", Canal: models.CanalPresentielle}
	require.NoError(t, CreateInscriptionTx(gdb, &insc, &models.Paiement{Montant: 2500}))
	assert.Equal(t, int64(2500), insc.MontantPaye)
	assert.Equal(t, models.PaiementPartiel, insc.StatutPaiement)

	var count int64
	gdb.Model(&models.Paiement{}).Where("inscription_id = ?", insc.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAddPaiement_RecomputesTotals(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalEnLigne)

	updated, err := AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 1000}, Scope{})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.MontantPaye)
	assert.Equal(t, models.PaiementPartiel, updated.StatutPaiement)

	updated, err = AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 3000, ModePaiement: "mobile_money"}, Scope{})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), updated.MontantPaye)
	assert.Equal(t, models.PaiementSolde, updated.StatutPaiement)

	_, err = AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 0}, Scope{})
	assert.Equal(t, ErrMontantInvalide, err)
	_, err = AddPaiementTx(gdb, &models.Paiement{InscriptionID: 999, Montant: 10}, Scope{})
	assert.Equal(t, ErrInscriptionIntrouvable, err)
	_, err = AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 10, ModePaiement: "cheque"}, Scope{})
	assert.Equal(t, ErrModePaiementInvalide, err)
}

func TestAddPaiement_ScopedToSection(t *testing.T) {
	gdb := openTestDB(t)
	chefs := []models.ChefQuartier{{Nom: "Abobo"}, {Nom: "Cocody"}}
	require.NoError(t, gdb.Create(&chefs).Error)
	insc := models.Inscription{Nom: "Yao", Prenom: "Koffi", Canal: models.CanalPresentielle, ChefQuartierID: &chefs[1].ID}
	require.NoError(t, CreateInscriptionTx(gdb, &insc, nil))

	cases := []struct {
		name  string
		scope Scope
		err   error
	}{
		{"other section", Scope{Restricted: true, ChefQuartierID: &chefs[0].ID}, ErrInscriptionIntrouvable},
		{"president without section", Scope{Restricted: true}, ErrInscriptionIntrouvable},
		{"own section", Scope{Restricted: true, ChefQuartierID: &chefs[1].ID}, nil},
		{"unrestricted", Scope{}, nil},
	}
	for _, c := range cases {
		_, err := AddPaiement(&models.Paiement{InscriptionID: insc.ID, Montant: 500}, c.scope)
		assert.Equal(t, c.err, err, c.name)
	}

	var count int64
	require.NoError(t, gdb.Model(&models.Paiement{}).Where("inscription_id = ?", insc.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAddPaiement_AfterRefusalRederives(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalPresentielle)

	_, err := DecideFinanceTx(gdb, insc.ID, models.PaiementRefuse, true)
	require.NoError(t, err)
	got, err := AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 1000}, Scope{})
	require.NoError(t, err)
	assert.Equal(t, models.PaiementPartiel, got.StatutPaiement)
	got, err = AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 3000}, Scope{})
	require.NoError(t, err)
	assert.Equal(t, models.PaiementSolde, got.StatutPaiement)
	assert.True(t, IsSettled(*got))

	// a finance validation still survives later payments
	_, err = DecideFinanceTx(gdb, insc.ID, models.PaiementValideFinancier, false)
	require.NoError(t, err)
	got, err = AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 500}, Scope{})
	require.NoError(t, err)
	assert.Equal(t, models.PaiementValideFinancier, got.StatutPaiement)
}

func TestAnnulerPaiement(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalPresentielle)
	p := &models.Paiement{InscriptionID: insc.ID, Montant: 4000}
	_, err := AddPaiementTx(gdb, p, Scope{})
	require.NoError(t, err)

	voided, updated, err := AnnulerPaiementTx(gdb, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatutAnnule, voided.Statut)
	assert.Equal(t, int64(0), updated.MontantPaye)
	assert.Equal(t, models.PaiementNonPaye, updated.StatutPaiement)

	_, _, err = AnnulerPaiementTx(gdb, p.ID)
	assert.Equal(t, ErrStatutInvalide, err)
	_, _, err = AnnulerPaiementTx(gdb, 999)
	assert.Equal(t, ErrPaiementIntrouvable, err)
}

func TestDecideFinance(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalEnLigne)

	_, err := DecideFinanceTx(gdb, insc.ID, models.PaiementRefuse, false)
	assert.Equal(t, ErrConfirmation, err)

	got, err := DecideFinanceTx(gdb, insc.ID, models.PaiementRefuse, true)
	require.NoError(t, err)
	assert.Equal(t, models.PaiementRefuse, got.StatutPaiement)

	got, err = DecideFinanceTx(gdb, insc.ID, models.PaiementValideFinancier, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaiementValideFinancier, got.StatutPaiement)

	_, err = DecideFinanceTx(gdb, insc.ID, models.PaiementSolde, true)
	assert.Equal(t, ErrStatutInvalide, err)
}

func TestValidate_OnlineNeedsDortoir(t *testing.T) {
	gdb := openTestDB(t)
	d := seedDortoir(t, gdb, "Bethel", 2)
	insc := seedInscription(t, gdb, models.CanalEnLigne)

	_, err := ValidateTx(gdb, insc.ID)
	assert.Equal(t, ErrDortoirRequis, err)

	_, err = AssignDortoirTx(gdb, insc.ID, d.ID)
	require.NoError(t, err)

	got, err := ValidateTx(gdb, insc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatutValide, got.Statut)

	_, err = RejectTx(gdb, insc.ID)
	assert.Equal(t, ErrStatutInvalide, err)
}

func TestValidate_InPersonExempt(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalPresentielle)

	got, err := ValidateTx(gdb, insc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatutValide, got.Statut)
}

func TestAssignDortoir_Capacity(t *testing.T) {
	gdb := openTestDB(t)
	d := seedDortoir(t, gdb, "Siloé", 1)
	a := seedInscription(t, gdb, models.CanalEnLigne)
	b := seedInscription(t, gdb, models.CanalEnLigne)

	_, err := AssignDortoirTx(gdb, a.ID, d.ID)
	require.NoError(t, err)

	_, err = AssignDortoirTx(gdb, b.ID, d.ID)
	assert.Equal(t, ErrDortoirPlein, err)

	var got models.Inscription
	require.NoError(t, gdb.First(&got, b.ID).Error)
	assert.Nil(t, got.DortoirID, "rejected assignment must not change state")

	// same dormitory again is a no-op
	_, err = AssignDortoirTx(gdb, a.ID, d.ID)
	assert.NoError(t, err)

	// a rejected registration frees its bed
	_, err = RejectTx(gdb, a.ID)
	require.NoError(t, err)
	_, err = AssignDortoirTx(gdb, b.ID, d.ID)
	assert.NoError(t, err)

	_, err = AssignDortoirTx(gdb, b.ID, 999)
	assert.Equal(t, ErrDortoirIntrouvable, err)
}

func TestUpdate_StatusEditCannotBypassDortoirRule(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalEnLigne)

	_, _, err := UpdateTx(gdb, insc.ID, InscriptionPatch{Statut: sptr(models.StatutValide)})
	assert.Equal(t, ErrDortoirRequis, err)

	d := seedDortoir(t, gdb, "Bethel", 5)
	got, changes, err := UpdateTx(gdb, insc.ID, InscriptionPatch{
		Statut:    sptr(models.StatutValide),
		DortoirID: uptr(d.ID),
		Nom:       sptr("  Kouadio "),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatutValide, got.Statut)
	assert.Equal(t, "Kouadio", got.Nom)
	assert.Equal(t, d.ID, changes["dortoir_id"])

	// any status can be edited back
	got, _, err = UpdateTx(gdb, insc.ID, InscriptionPatch{Statut: sptr(models.StatutEnAttente), DortoirID: uptr(0)})
	require.NoError(t, err)
	assert.Equal(t, models.StatutEnAttente, got.Statut)
	assert.Nil(t, got.DortoirID)
}

func TestUpdate_MontantRequisRederivesStatus(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalPresentielle)
	_, err := AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 3000}, Scope{})
	require.NoError(t, err)

	var reduced int64 = 3000
	got, changes, err := UpdateTx(gdb, insc.ID, InscriptionPatch{MontantRequis: &reduced})
	require.NoError(t, err)
	assert.Equal(t, models.PaiementSolde, got.StatutPaiement)
	assert.Equal(t, models.PaiementSolde, changes["statut_paiement"])
}

func TestDelete_RemovesLedgerAndNotes(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalPresentielle)
	c := models.Classe{Nom: "A1", Niveau: models.NiveauDebutant, Capacite: 30}
	require.NoError(t, gdb.Create(&c).Error)
	_, err := AddPaiementTx(gdb, &models.Paiement{InscriptionID: insc.ID, Montant: 500}, Scope{})
	require.NoError(t, err)
	_, _, err = UpsertNoteTx(gdb, NoteInput{InscriptionID: insc.ID, ClasseID: c.ID, NoteEntree: fptr(12)})
	require.NoError(t, err)

	_, err = DeleteTx(gdb, insc.ID)
	require.NoError(t, err)

	var n int64
	gdb.Model(&models.Paiement{}).Count(&n)
	assert.Zero(t, n)
	gdb.Model(&models.NoteExamen{}).Count(&n)
	assert.Zero(t, n)
	_, err = DeleteTx(gdb, insc.ID)
	assert.Equal(t, ErrInscriptionIntrouvable, err)
}

func TestUpsertNote_ComputesMoyenne(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalPresentielle)
	c := models.Classe{Nom: "B2", Niveau: models.NiveauNormal}
	require.NoError(t, gdb.Create(&c).Error)

	n, created, err := UpsertNoteTx(gdb, NoteInput{InscriptionID: insc.ID, ClasseID: c.ID, NoteEntree: fptr(12), NoteCahiers: fptr(14)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, n.Moyenne)

	n, created, err = UpsertNoteTx(gdb, NoteInput{InscriptionID: insc.ID, ClasseID: c.ID, NoteConduite: fptr(16), NoteSortie: fptr(15)})
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, n.Moyenne)
	assert.InDelta(t, 14.25, *n.Moyenne, 0.001)

	_, _, err = UpsertNoteTx(gdb, NoteInput{InscriptionID: insc.ID, ClasseID: 42})
	assert.Equal(t, ErrClasseIntrouvable, err)
}

type fakePhotos struct {
	uploaded []string
	deleted  []string
	failUp   bool
}

func (f *fakePhotos) Upload(_ context.Context, name string, r io.Reader) (string, error) {
	if f.failUp {
		return "", errors.New("bucket unavailable")
	}
	_, _ = io.Copy(io.Discard, r)
	url := "http://cdn.test/photos/" + name
	f.uploaded = append(f.uploaded, url)
	return url, nil
}

func (f *fakePhotos) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

func TestRegister_PublicSubmission(t *testing.T) {
	gdb := openTestDB(t)
	chef := models.ChefQuartier{Nom: "Président Zone 4", Zone: "Zone 4"}
	require.NoError(t, gdb.Create(&chef).Error)

	photos := &fakePhotos{}
	insc := models.Inscription{Nom: "Traoré", Prenom: "Awa", Canal: models.CanalEnLigne, ChefQuartierID: &chef.ID}
	require.NoError(t, Register(context.Background(), photos, bytes.NewBufferString("jpeg"), "awa.jpg", &insc, nil))

	var got models.Inscription
	require.NoError(t, gdb.First(&got, insc.ID).Error)
	assert.Equal(t, models.StatutEnAttente, got.Statut)
	assert.Equal(t, models.PaiementNonPaye, got.StatutPaiement)
	assert.Equal(t, int64(0), got.MontantPaye)
	assert.Equal(t, photos.uploaded[0], got.PhotoURL)
	assert.Empty(t, photos.deleted)
}

func TestRegister_PhotoFailureAborts(t *testing.T) {
	gdb := openTestDB(t)
	photos := &fakePhotos{failUp: true}
	insc := models.Inscription{Nom: "Traoré", Prenom: "Awa", Canal: models.CanalEnLigne}

	err := Register(context.Background(), photos, bytes.NewBufferString("jpeg"), "awa.jpg", &insc, nil)
	require.Error(t, err)

	var n int64
	gdb.Model(&models.Inscription{}).Count(&n)
	assert.Zero(t, n)

	err = Register(context.Background(), &fakePhotos{}, nil, "", &insc, nil)
	assert.Equal(t, ErrPhotoRequise, err)
}

func TestRegister_InsertFailureRemovesPhoto(t *testing.T) {
	openTestDB(t)
	photos := &fakePhotos{}
	insc := models.Inscription{Nom: "Traoré", Prenom: "Awa", Canal: models.CanalEnLigne, DortoirID: uptr(404)}

	err := Register(context.Background(), photos, bytes.NewBufferString("jpeg"), "awa.jpg", &insc, nil)
	assert.Equal(t, ErrDortoirIntrouvable, errors.Cause(err))
	assert.Equal(t, photos.uploaded, photos.deleted)
}

func TestNormPhone(t *testing.T) {
	cases := map[string]string{
		"07 08 09 10 11":    "+2250708091011",
		"2250708091011":     "+2250708091011",
		"00225 0708091011":  "+2250708091011",
		"+33 6 12 34 56 78": "+33612345678",
		"07.08.09.10.11":    "+2250708091011",
		"abc":               "",
		"123":               "",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormPhone(in), in)
	}
}

func TestFindInscriptionByPhone(t *testing.T) {
	gdb := openTestDB(t)
	insc := seedInscription(t, gdb, models.CanalEnLigne)

	got, err := FindInscriptionByPhone(gdb, "07-08-09-10-11")
	require.NoError(t, err)
	assert.Equal(t, insc.ID, got.ID)

	_, err = FindInscriptionByPhone(gdb, "0101010101")
	assert.Equal(t, ErrInscriptionIntrouvable, err)
}

func TestNormEmail(t *testing.T) {
	e, ok := NormEmail("  Awa.Kone@Sefimap.CI ")
	assert.True(t, ok)
	assert.Equal(t, "awa.kone@sefimap.ci", e)

	e, ok = NormEmail("")
	assert.True(t, ok, "email is optional")
	assert.Empty(t, e)

	_, ok = NormEmail("Awa <awa@sefimap.ci>")
	assert.False(t, ok)
	_, ok = NormEmail("pas-un-email")
	assert.False(t, ok)
}
