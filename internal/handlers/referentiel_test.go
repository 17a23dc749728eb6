package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sefimap/manager/internal/cache"
	"github.com/sefimap/manager/internal/models"
)

func TestDortoirs_CRUD(t *testing.T) {
	e := newEnv(t)
	e.load(t)
	h := e.router(adminSession)

	rec := do(t, h, http.MethodPost, "/admin/dortoirs", `{"nom":"Esther","capacite":1,"sexe":"F"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decode[models.Dortoir](t, rec)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/admin/dortoirs", `{"nom":"Esther","capacite":5}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/admin/dortoirs", `{"nom":"Ruth","capacite":0}`).Code)

	stats := decode[[]models.DortoirStat](t, do(t, h, http.MethodGet, "/dortoirs", ""))
	require.Len(t, stats, 1, "a new dortoir is offered before the next load")
	assert.Equal(t, 1, stats[0].PlacesLibres)

	insc := e.seedInscription(t, models.CanalEnLigne, nil)
	e.load(t)
	rec = do(t, h, http.MethodPost, "/admin/inscriptions/"+itoa(insc.ID)+"/dortoir", `{"dortoir_id":`+itoa(d.ID)+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats = decode[[]models.DortoirStat](t, do(t, h, http.MethodGet, "/dortoirs", ""))
	assert.Equal(t, 0, stats[0].PlacesLibres, "occupancy follows the assignment")

	base := "/admin/dortoirs/" + itoa(d.ID)
	rec = do(t, h, http.MethodPatch, base, `{"nom":"Esther A","capacite":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cached, _ := e.app.Cache.Inscription(insc.ID)
	require.NotNil(t, cached.Dortoir)
	assert.Equal(t, "Esther A", cached.Dortoir.Nom)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodDelete, base, "").Code)

	rec = do(t, h, http.MethodPost, "/admin/inscriptions/"+itoa(insc.ID)+"/rejeter", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, base, "").Code)
	cached, _ = e.app.Cache.Inscription(insc.ID)
	assert.Nil(t, cached.DortoirID, "rejected registrations are detached")
	assert.Empty(t, decode[[]models.DortoirStat](t, do(t, h, http.MethodGet, "/dortoirs", "")))

	e.load(t)
	assert.Equal(t, cache.Synced, e.app.Cache.SyncState(cache.CollDortoirs, d.ID))
	assert.Empty(t, e.app.Cache.Conflicts())
}

func TestDortoirs_CannotShrinkBelowOccupancy(t *testing.T) {
	e := newEnv(t)
	d := e.seedDortoir(t, "Salomon", 2)
	for i := 0; i < 2; i++ {
		insc := e.seedInscription(t, models.CanalEnLigne, nil)
		require.NoError(t, e.gdb.Model(&insc).Update("dortoir_id", d.ID).Error)
	}
	e.load(t)
	h := e.router(adminSession)

	rec := do(t, h, http.MethodPatch, "/admin/dortoirs/"+itoa(d.ID), `{"capacite":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "occupation")
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPatch, "/admin/dortoirs/999", `{"capacite":1}`).Code)
}

func TestClasses_CapacityFromLevelConfig(t *testing.T) {
	e := newEnv(t)
	e.load(t)
	h := e.router(adminSession)

	rec := do(t, h, http.MethodPut, "/admin/capacites", `{"niveau_formation":"normal","capacite_par_classe":25}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPut, "/admin/capacites", `{"niveau_formation":"normal","capacite_par_classe":30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/admin/capacites", `{"niveau_formation":"expert","capacite_par_classe":30}`).Code)

	caps := decode[[]models.ConfigCapaciteClasse](t, do(t, h, http.MethodGet, "/admin/capacites", ""))
	require.Len(t, caps, 1)
	assert.Equal(t, 30, caps[0].CapaciteParClasse)

	rec = do(t, h, http.MethodPost, "/admin/classes", `{"nom":"Classe B","niveau":"normal"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	classe := decode[models.Classe](t, rec)
	assert.Equal(t, 30, classe.Capacite)

	insc := e.seedInscription(t, models.CanalPresentielle, nil)
	e.load(t)
	rec = do(t, h, http.MethodPut, "/admin/notes", `{"inscription_id":`+itoa(insc.ID)+`,"classe_id":`+itoa(classe.ID)+`,"note_entree":12}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rows := decode[[]classeRow](t, do(t, h, http.MethodGet, "/admin/classes", ""))
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Inscrits)
	require.NotNil(t, rows[0].PlacesLibres)
	assert.Equal(t, 29, *rows[0].PlacesLibres)

	base := "/admin/classes/" + itoa(classe.ID)
	rec = do(t, h, http.MethodPatch, base, `{"nom":"Classe B1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Classe B1", e.app.Cache.Classes()[0].Nom)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodDelete, base, "").Code)

	spare := decode[models.Classe](t, do(t, h, http.MethodPost, "/admin/classes", `{"nom":"Classe C","capacite":10}`))
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/admin/classes/"+itoa(spare.ID), "").Code)
	assert.Len(t, e.app.Cache.Classes(), 1)
}

func TestChefs_CRUD(t *testing.T) {
	e := newEnv(t)
	e.load(t)
	h := e.router(adminSession)

	rec := do(t, h, http.MethodPost, "/admin/chefs", `{"nom":"Koné","zone":"Abobo","telephone":"07 08 09 10 11"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	chef := decode[models.ChefQuartier](t, rec)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/admin/chefs", `{"nom":"  "}`).Code)

	chefs := decode[[]models.ChefQuartier](t, do(t, h, http.MethodGet, "/chefs", ""))
	require.Len(t, chefs, 1)
	assert.Equal(t, "Koné", chefs[0].Nom)

	insc := e.seedInscription(t, models.CanalEnLigne, &chef.ID)
	e.load(t)
	base := "/admin/chefs/" + itoa(chef.ID)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPatch, base, `{"nom":"Koné Mariam"}`).Code)
	cached, _ := e.app.Cache.Inscription(insc.ID)
	require.NotNil(t, cached.ChefQuartier)
	assert.Equal(t, "Koné Mariam", cached.ChefQuartier.Nom)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodDelete, base, "").Code)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/admin/inscriptions/"+itoa(insc.ID), "").Code)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, base, "").Code)
	assert.Empty(t, e.app.Cache.Chefs())
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, base, "").Code)
}

func TestNiveauxStats(t *testing.T) {
	e := newEnv(t)
	for _, niveau := range []string{models.NiveauNormal, models.NiveauNormal, models.NiveauDebutant} {
		insc := e.seedInscription(t, models.CanalPresentielle, nil)
		require.NoError(t, e.gdb.Model(&insc).Update("niveau_formation", niveau).Error)
	}
	e.seedInscription(t, models.CanalPresentielle, nil)
	h := e.router(adminSession)

	rows := decode[[]models.NiveauStat](t, do(t, h, http.MethodGet, "/admin/stats/niveaux", ""))
	require.Len(t, rows, 2)
	assert.Equal(t, models.NiveauNormal, rows[0].NiveauFormation)
	assert.Equal(t, 2, rows[0].Total)
	assert.InDelta(t, 66.7, rows[0].Pourcentage, 0.01)
	assert.Equal(t, 1, rows[1].Total)
}
