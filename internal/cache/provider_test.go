package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sefimap/manager/internal/models"
)

type fakeSource struct {
	mu           sync.Mutex
	inscriptions []models.Inscription
	paiements    []models.Paiement
	dortoirs     []models.Dortoir
	stats        []models.DortoirStat
	notes        []models.NoteExamen
	failNotes    error
	calls        int

	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSource) Inscriptions(ctx context.Context) ([]models.Inscription, error) {
	f.mu.Lock()
	f.calls++
	block, entered := f.block, f.entered
	out := append([]models.Inscription(nil), f.inscriptions...)
	f.mu.Unlock()
	if block != nil {
		entered <- struct{}{}
		<-block
	}
	return out, nil
}

func (f *fakeSource) Paiements(ctx context.Context) ([]models.Paiement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Paiement(nil), f.paiements...), nil
}

func (f *fakeSource) Dortoirs(ctx context.Context) ([]models.Dortoir, []models.DortoirStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Dortoir(nil), f.dortoirs...), append([]models.DortoirStat(nil), f.stats...), nil
}

func (f *fakeSource) Classes(ctx context.Context) ([]models.Classe, error) {
	return []models.Classe{{ID: 1, Nom: "A", Niveau: models.NiveauNormal}}, nil
}

func (f *fakeSource) Chefs(ctx context.Context) ([]models.ChefQuartier, error) {
	return []models.ChefQuartier{{ID: 1, Nom: "Koné"}}, nil
}

func (f *fakeSource) Notes(ctx context.Context) ([]models.NoteExamen, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNotes != nil {
		return nil, f.failNotes
	}
	return append([]models.NoteExamen(nil), f.notes...), nil
}

func (f *fakeSource) Capacites(ctx context.Context) ([]models.ConfigCapaciteClasse, error) {
	return nil, nil
}

func uptr(v uint) *uint       { return &v }
func sptr(s string) *string   { return &s }
func fptr(v float64) *float64 { return &v }

// fakeClock advances one second per reading so every event is ordered.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestProvider(src Source) *Provider {
	p := New(src, time.Hour, nil)
	p.now = (&fakeClock{t: time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)}).now
	return p
}

func TestLoadAll_ReplacesCollectionsAndStats(t *testing.T) {
	src := &fakeSource{
		inscriptions: []models.Inscription{
			{ID: 1, Statut: models.StatutValide, Sexe: "F", Canal: models.CanalEnLigne, MontantPaye: 4000},
			{ID: 2, Statut: models.StatutEnAttente, Sexe: "M", Canal: models.CanalPresentielle, MontantPaye: 1000},
			{ID: 3, Statut: models.StatutRejete, Sexe: "M", Canal: models.CanalEnLigne},
			{ID: 4, Statut: models.StatutValide, Sexe: "M", Canal: models.CanalPresentielle},
		},
		paiements: []models.Paiement{{ID: 1, InscriptionID: 1, Montant: 4000}, {ID: 2, InscriptionID: 2, Montant: 1000}},
		dortoirs:  []models.Dortoir{{ID: 1, Nom: "Salomon", Capacite: 2}, {ID: 2, Nom: "Esther", Capacite: 3}},
		stats: []models.DortoirStat{
			{DortoirID: 1, Nom: "Salomon", Capacite: 2, Occupation: 2},
			{DortoirID: 2, Nom: "Esther", Capacite: 3, Occupation: 1},
		},
	}
	p := newTestProvider(src)

	require.True(t, p.LoadAll(context.Background(), false))
	assert.Empty(t, p.Error())
	assert.False(t, p.LastUpdated().IsZero())
	assert.Len(t, p.Inscriptions(), 4)

	s := p.Stats()
	assert.Equal(t, 4, s.TotalInscriptions)
	assert.Equal(t, 2, s.InscriptionsValidees)
	assert.Equal(t, 1, s.InscriptionsEnAttente)
	assert.Equal(t, 1, s.InscriptionsRejetees)
	assert.Equal(t, 3, s.Hommes)
	assert.Equal(t, 1, s.Femmes)
	assert.Equal(t, 2, s.EnLigne)
	assert.Equal(t, 2, s.Presentielle)
	assert.Equal(t, int64(5000), s.TotalPaye)
	assert.Equal(t, int64(3000+4000), s.TotalRestant)
	assert.Equal(t, 2, s.TotalPaiements)
	assert.Equal(t, 1, s.DortoirsPleins)
	assert.Equal(t, 5, s.CapaciteDortoirs)
}

func TestLoadAll_FailedSliceIsEmptyAndReported(t *testing.T) {
	src := &fakeSource{
		inscriptions: []models.Inscription{{ID: 1}},
		notes:        []models.NoteExamen{{ID: 1, InscriptionID: 1, ClasseID: 1}},
	}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))
	assert.Len(t, p.Notes(), 1)

	src.failNotes = errors.New("connection reset")
	require.True(t, p.LoadAll(context.Background(), true))

	assert.NotNil(t, p.Notes())
	assert.Empty(t, p.Notes())
	assert.Len(t, p.Inscriptions(), 1, "other slices still load")
	assert.Contains(t, p.Error(), "Erreur lors du chargement des données: ")
	assert.Contains(t, p.Error(), "connection reset")
	assert.Contains(t, p.LoadErrors(), CollNotes)

	src.failNotes = nil
	require.True(t, p.LoadAll(context.Background(), true))
	assert.Empty(t, p.Error())
}

func TestLoadAll_NotReentrant(t *testing.T) {
	src := &fakeSource{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := newTestProvider(src)

	done := make(chan bool)
	go func() { done <- p.LoadAll(context.Background(), false) }()
	<-src.entered

	assert.True(t, p.Loading())
	assert.False(t, p.LoadAll(context.Background(), true), "second call is a no-op")
	assert.False(t, p.Refresh(context.Background()))

	close(src.block)
	assert.True(t, <-done)
	assert.False(t, p.Loading())

	src.mu.Lock()
	src.block = nil
	src.mu.Unlock()
	assert.True(t, p.LoadAll(context.Background(), true))
	assert.Equal(t, 2, src.calls)
}

func TestSilentLoad_DoesNotRaiseLoading(t *testing.T) {
	src := &fakeSource{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := newTestProvider(src)

	done := make(chan bool)
	go func() { done <- p.LoadAll(context.Background(), true) }()
	<-src.entered
	assert.False(t, p.Loading())
	close(src.block)
	<-done
}

func TestMutators_PatchAddDelete(t *testing.T) {
	src := &fakeSource{
		inscriptions: []models.Inscription{
			{ID: 1, Nom: "Kouassi", Statut: models.StatutEnAttente, Canal: models.CanalEnLigne},
			{ID: 2, Nom: "Traoré", Statut: models.StatutEnAttente},
		},
		dortoirs:  []models.Dortoir{{ID: 7, Nom: "Salomon", Capacite: 10}},
		paiements: []models.Paiement{{ID: 1, InscriptionID: 1, Montant: 500}},
	}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	require.NoError(t, p.UpdateInscriptionLocal(1, map[string]any{"dortoir_id": uint(7), "statut": models.StatutValide}))
	got, ok := p.Inscription(1)
	require.True(t, ok)
	assert.Equal(t, models.StatutValide, got.Statut)
	require.NotNil(t, got.DortoirID)
	assert.Equal(t, uint(7), *got.DortoirID)
	require.NotNil(t, got.Dortoir)
	assert.Equal(t, "Salomon", got.Dortoir.Nom)
	assert.Equal(t, "Kouassi", got.Nom, "untouched fields survive")
	assert.Equal(t, Pending, p.SyncState(CollInscriptions, 1))
	assert.Equal(t, 1, p.Stats().InscriptionsValidees)

	assert.ErrorIs(t, p.UpdateInscriptionLocal(99, map[string]any{"nom": "x"}), ErrUnknownRecord)

	require.NoError(t, p.AddInscriptionLocal(models.Inscription{ID: 3, Nom: "Yao"}))
	assert.Equal(t, uint(3), p.Inscriptions()[0].ID, "new records are prepended")
	require.NoError(t, p.AddInscriptionLocal(models.Inscription{ID: 2, Nom: "Traoré B."}))
	assert.Len(t, p.Inscriptions(), 3, "known ids are replaced")

	require.NoError(t, p.DeleteInscriptionLocal(1))
	_, ok = p.Inscription(1)
	assert.False(t, ok)
	assert.Empty(t, p.PaiementsOf(1), "payments of the deleted registration go too")
}

func TestReconcile_MatchingLoadConfirmsPatch(t *testing.T) {
	src := &fakeSource{inscriptions: []models.Inscription{{ID: 1, Statut: models.StatutEnAttente}}}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	require.NoError(t, p.UpdateInscriptionLocal(1, map[string]any{"statut": models.StatutValide, "dortoir_id": uint(4)}))
	src.inscriptions[0].Statut = models.StatutValide
	src.inscriptions[0].DortoirID = uptr(4)

	require.True(t, p.LoadAll(context.Background(), true))
	assert.Equal(t, Synced, p.SyncState(CollInscriptions, 1))
	assert.Empty(t, p.Conflicts())
}

func TestReconcile_DivergingLoadRaisesConflict(t *testing.T) {
	src := &fakeSource{inscriptions: []models.Inscription{{ID: 1, Statut: models.StatutEnAttente}}}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	require.NoError(t, p.UpdateInscriptionLocal(1, map[string]any{"statut": models.StatutValide}))
	require.True(t, p.LoadAll(context.Background(), true))

	assert.Equal(t, Conflict, p.SyncState(CollInscriptions, 1))
	got, _ := p.Inscription(1)
	assert.Equal(t, models.StatutEnAttente, got.Statut, "server value wins")

	cs := p.Conflicts()
	require.Len(t, cs, 1)
	assert.Equal(t, CollInscriptions, cs[0].Collection)
	assert.Equal(t, models.StatutValide, cs[0].Patch["statut"])
	assert.Equal(t, models.StatutEnAttente, cs[0].Server["statut"])

	assert.True(t, p.Ack(CollInscriptions, 1))
	assert.False(t, p.Ack(CollInscriptions, 1))
	assert.Equal(t, Synced, p.SyncState(CollInscriptions, 1))
}

func TestReconcile_LoadStartedBeforePatchDoesNotJudge(t *testing.T) {
	src := &fakeSource{
		inscriptions: []models.Inscription{{ID: 1, Statut: models.StatutEnAttente}},
		block:        make(chan struct{}),
		entered:      make(chan struct{}, 1),
	}
	p := newTestProvider(src)

	done := make(chan bool)
	go func() { done <- p.LoadAll(context.Background(), true) }()
	<-src.entered
	// the record is not cached yet, so patch through Add
	require.NoError(t, p.AddInscriptionLocal(models.Inscription{ID: 1, Statut: models.StatutValide}))
	close(src.block)
	require.True(t, <-done)

	assert.Equal(t, Pending, p.SyncState(CollInscriptions, 1))
	assert.Empty(t, p.Conflicts())
	got, ok := p.Inscription(1)
	require.True(t, ok)
	assert.Equal(t, models.StatutValide, got.Statut, "local change is still shown")

	// the next load judges it
	require.True(t, p.LoadAll(context.Background(), true))
	assert.Equal(t, Conflict, p.SyncState(CollInscriptions, 1))
}

func TestReconcile_Deletes(t *testing.T) {
	src := &fakeSource{paiements: []models.Paiement{{ID: 1, Montant: 100}, {ID: 2, Montant: 200}}}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	require.NoError(t, p.DeletePaiementLocal(1))
	require.NoError(t, p.DeletePaiementLocal(2))
	src.paiements = src.paiements[1:]

	require.True(t, p.LoadAll(context.Background(), true))
	assert.Equal(t, Conflict, p.SyncState(CollPaiements, 2), "still on the server")
	assert.Equal(t, Synced, p.SyncState(CollPaiements, 1))
	assert.Len(t, p.Paiements(), 1)
}

func TestReconcile_MissingRecordIsConflict(t *testing.T) {
	src := &fakeSource{}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	require.NoError(t, p.AddNoteLocal(models.NoteExamen{ID: 5, InscriptionID: 1, ClasseID: 1}))
	require.True(t, p.LoadAll(context.Background(), true))

	cs := p.Conflicts()
	require.Len(t, cs, 1)
	assert.Nil(t, cs[0].Server)
	assert.Empty(t, p.Notes())
}

func TestStatsScientifique_CountsEachInscriptionOnce(t *testing.T) {
	src := &fakeSource{
		inscriptions: []models.Inscription{
			{ID: 1, NiveauFormation: sptr(models.NiveauDebutant)},
			{ID: 2, NiveauFormation: sptr(models.NiveauDebutant)},
			{ID: 3, NiveauFormation: sptr(models.NiveauSuperieur)},
			{ID: 4},
		},
		notes: []models.NoteExamen{
			{ID: 1, InscriptionID: 1, ClasseID: 1, Moyenne: fptr(12)},
			{ID: 2, InscriptionID: 1, ClasseID: 2, Moyenne: fptr(14)},
			{ID: 3, InscriptionID: 2, ClasseID: 1},
			{ID: 4, InscriptionID: 3, ClasseID: 1, Moyenne: fptr(16.5)},
			{ID: 5, InscriptionID: 4, ClasseID: 2},
		},
	}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	s := p.StatsScientifique()
	assert.Equal(t, 4, s.Participants)
	assert.Equal(t, 2, s.Debutant)
	assert.Equal(t, 0, s.Normal)
	assert.Equal(t, 1, s.Superieur)
	assert.Equal(t, 1, s.SansNiveau)
	assert.Equal(t, 3, s.NotesSaisies)
	require.NotNil(t, s.MoyenneGenerale)
	assert.InDelta(t, 14.17, *s.MoyenneGenerale, 0.001)
	assert.Equal(t, map[uint]int{1: 3, 2: 2}, s.ParClasse)

	// a duplicate row for the same registration changes nothing
	require.NoError(t, p.AddNoteLocal(models.NoteExamen{ID: 6, InscriptionID: 2, ClasseID: 2}))
	assert.Equal(t, 2, p.StatsScientifique().Debutant)
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	p := New(src, 10*time.Millisecond, nil)
	p.Start(context.Background())
	p.Start(context.Background())

	assert.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls >= 2
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	src.mu.Lock()
	n := src.calls
	src.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	src.mu.Lock()
	assert.Equal(t, n, src.calls, "no polling after Stop")
	src.mu.Unlock()
	p.Stop()
}

func TestMutators_ReferenceData(t *testing.T) {
	src := &fakeSource{
		inscriptions: []models.Inscription{
			{ID: 1, Nom: "Kouassi", Statut: models.StatutValide, DortoirID: uptr(7), ChefQuartierID: uptr(1)},
			{ID: 2, Nom: "Traoré", Statut: models.StatutRejete, DortoirID: uptr(7)},
		},
		dortoirs: []models.Dortoir{{ID: 7, Nom: "Salomon", Capacite: 10}},
		stats:    []models.DortoirStat{{DortoirID: 7, Nom: "Salomon", Capacite: 10, Occupation: 1, PlacesLibres: 9, TauxRemplissage: 10}},
	}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	require.NoError(t, p.UpdateDortoirLocal(7, map[string]any{"nom": "Salomon A", "capacite": 4}))
	got, _ := p.Inscription(1)
	require.NotNil(t, got.Dortoir)
	assert.Equal(t, "Salomon A", got.Dortoir.Nom, "joined dortoir follows the edit")
	stats := p.DortoirStats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Occupation, "rejected registrations do not occupy a bed")
	assert.Equal(t, 3, stats[0].PlacesLibres)
	assert.Equal(t, 25.0, stats[0].TauxRemplissage)

	require.NoError(t, p.AddDortoirLocal(models.Dortoir{ID: 8, Nom: "Esther", Capacite: 2}))
	assert.Len(t, p.DortoirStats(), 2)
	require.NoError(t, p.UpdateInscriptionLocal(1, map[string]any{"dortoir_id": uint(8)}))
	for _, s := range p.DortoirStats() {
		if s.DortoirID == 8 {
			assert.Equal(t, 1, s.Occupation)
		}
	}
	require.NoError(t, p.DeleteDortoirLocal(7))
	assert.Len(t, p.DortoirStats(), 1)
	assert.ErrorIs(t, p.DeleteDortoirLocal(7), ErrUnknownRecord)

	require.NoError(t, p.UpdateChefLocal(1, map[string]any{"nom": "Koné M."}))
	got, _ = p.Inscription(1)
	require.NotNil(t, got.ChefQuartier)
	assert.Equal(t, "Koné M.", got.ChefQuartier.Nom)
	require.NoError(t, p.AddChefLocal(models.ChefQuartier{ID: 2, Nom: "Bamba"}))
	assert.Len(t, p.Chefs(), 2)
	require.NoError(t, p.DeleteChefLocal(2))
	assert.Len(t, p.Chefs(), 1)

	require.NoError(t, p.AddClasseLocal(models.Classe{ID: 2, Nom: "B", Niveau: models.NiveauDebutant, Capacite: 25}))
	require.NoError(t, p.UpdateClasseLocal(2, map[string]any{"capacite": 30}))
	assert.Len(t, p.Classes(), 2)
	require.NoError(t, p.DeleteClasseLocal(2))
	assert.Len(t, p.Classes(), 1)

	require.NoError(t, p.SetCapaciteLocal(models.ConfigCapaciteClasse{ID: 3, NiveauFormation: models.NiveauNormal, CapaciteParClasse: 30}))
	require.Len(t, p.Capacites(), 1)
	assert.Equal(t, Pending, p.SyncState(CollCapacites, 3))

	// the source never stored the level: the next load flags it
	require.True(t, p.LoadAll(context.Background(), true))
	assert.Equal(t, Conflict, p.SyncState(CollCapacites, 3))
	assert.Empty(t, p.Capacites())
}

func TestMutators_PaiementStatus(t *testing.T) {
	src := &fakeSource{
		inscriptions: []models.Inscription{{ID: 1, Nom: "Kouassi"}},
		paiements:    []models.Paiement{{ID: 5, InscriptionID: 1, Montant: 500, Statut: models.StatutValide}},
	}
	p := newTestProvider(src)
	require.True(t, p.LoadAll(context.Background(), true))

	require.NoError(t, p.UpdatePaiementLocal(5, map[string]any{"statut": models.StatutAnnule}))
	pm := p.PaiementsOf(1)
	require.Len(t, pm, 1)
	assert.Equal(t, models.StatutAnnule, pm[0].Statut)
	assert.Equal(t, Pending, p.SyncState(CollPaiements, 5))
	assert.ErrorIs(t, p.UpdatePaiementLocal(6, map[string]any{"statut": models.StatutAnnule}), ErrUnknownRecord)
}
