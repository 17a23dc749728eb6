package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sefimap/manager/internal/logsvc"
	"github.com/sefimap/manager/internal/models"
)

// DefaultPollInterval is how often Start reloads everything.
const DefaultPollInterval = 3 * time.Minute

const loadErrPrefix = "Erreur lors du chargement des données: "

// ErrUnknownRecord is returned by local mutators for ids the cache does not hold.
var ErrUnknownRecord = errors.New("enregistrement absent du cache")

func inscriptionID(r models.Inscription) uint       { return r.ID }
func paiementID(r models.Paiement) uint             { return r.ID }
func dortoirID(r models.Dortoir) uint               { return r.ID }
func classeID(r models.Classe) uint                 { return r.ID }
func chefID(r models.ChefQuartier) uint             { return r.ID }
func noteID(r models.NoteExamen) uint               { return r.ID }
func capaciteID(r models.ConfigCapaciteClasse) uint { return r.ID }

// Provider holds every collection the admin pages read, refreshed from a
// Source and patched locally after each successful write.
type Provider struct {
	src      Source
	interval time.Duration
	log      *logsvc.Logger
	now      func() time.Time

	running atomic.Bool
	loading atomic.Bool

	mu           sync.RWMutex
	inscriptions []models.Inscription
	paiements    []models.Paiement
	dortoirs     []models.Dortoir
	dortoirStats []models.DortoirStat
	classes      []models.Classe
	chefs        []models.ChefQuartier
	notes        []models.NoteExamen
	capacites    []models.ConfigCapaciteClasse
	lastUpdated  time.Time
	errMsg       string
	loadErrs     map[string]error
	stats        Stats
	sci          StatsScientifique
	syncs        map[syncKey]*syncEntry

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an empty provider. A zero interval means DefaultPollInterval.
func New(src Source, interval time.Duration, l *logsvc.Logger) *Provider {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if l == nil {
		l = logsvc.Default()
	}
	p := &Provider{
		src:      src,
		interval: interval,
		log:      l,
		now:      time.Now,
		loadErrs: map[string]error{},
		syncs:    map[syncKey]*syncEntry{},
	}
	p.recompute()
	return p
}

// LoadAll fetches the seven collections in parallel and replaces the cache.
// A failed fetch leaves its collection empty and is reported through Error.
// It returns false without doing anything when a load is already running.
// silent loads do not raise the Loading flag.
func (p *Provider) LoadAll(ctx context.Context, silent bool) bool {
	if !p.running.CompareAndSwap(false, true) {
		return false
	}
	defer p.running.Store(false)
	if !silent {
		p.loading.Store(true)
		defer p.loading.Store(false)
	}

	started := p.now()
	var (
		inscriptions []models.Inscription
		paiements    []models.Paiement
		dortoirs     []models.Dortoir
		dortoirStats []models.DortoirStat
		classes      []models.Classe
		chefs        []models.ChefQuartier
		notes        []models.NoteExamen
		capacites    []models.ConfigCapaciteClasse

		errMu sync.Mutex
		errs  = map[string]error{}
	)
	record := func(coll string, err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		errs[coll] = err
		errMu.Unlock()
	}

	// errgroup without a shared context: one failing slice must not cancel the others
	var g errgroup.Group
	g.Go(func() (err error) {
		inscriptions, err = p.src.Inscriptions(ctx)
		record(CollInscriptions, err)
		return nil
	})
	g.Go(func() (err error) {
		paiements, err = p.src.Paiements(ctx)
		record(CollPaiements, err)
		return nil
	})
	g.Go(func() (err error) {
		dortoirs, dortoirStats, err = p.src.Dortoirs(ctx)
		record(CollDortoirs, err)
		return nil
	})
	g.Go(func() (err error) {
		classes, err = p.src.Classes(ctx)
		record(CollClasses, err)
		return nil
	})
	g.Go(func() (err error) {
		chefs, err = p.src.Chefs(ctx)
		record(CollChefs, err)
		return nil
	})
	g.Go(func() (err error) {
		notes, err = p.src.Notes(ctx)
		record(CollNotes, err)
		return nil
	})
	g.Go(func() (err error) {
		capacites, err = p.src.Capacites(ctx)
		record(CollCapacites, err)
		return nil
	})
	_ = g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	failed := map[string]bool{}
	for coll := range errs {
		failed[coll] = true
	}
	p.inscriptions = orEmpty(inscriptions, failed[CollInscriptions])
	p.paiements = orEmpty(paiements, failed[CollPaiements])
	p.dortoirs = orEmpty(dortoirs, failed[CollDortoirs])
	p.dortoirStats = orEmpty(dortoirStats, failed[CollDortoirs])
	p.classes = orEmpty(classes, failed[CollClasses])
	p.chefs = orEmpty(chefs, failed[CollChefs])
	p.notes = orEmpty(notes, failed[CollNotes])
	p.capacites = orEmpty(capacites, failed[CollCapacites])
	p.loadErrs = errs
	p.errMsg = ""
	if len(errs) > 0 {
		p.errMsg = loadErrPrefix + joinErrors(errs)
		p.log.Error("cache load failed", p.errMsg)
	}

	p.reconcile(started, failed)
	p.recompute()
	p.lastUpdated = p.now()
	return true
}

// Refresh forces a load that raises the Loading flag.
func (p *Provider) Refresh(ctx context.Context) bool {
	return p.LoadAll(ctx, false)
}

// Start polls the source with silent loads until Stop or ctx is done.
// Calling Start twice keeps the first poller.
func (p *Provider) Start(ctx context.Context) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.LoadAll(ctx, true)
			}
		}
	}()
}

// Stop tears the poller down and waits for it.
func (p *Provider) Stop() {
	p.lifeMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.lifeMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Provider) Loading() bool { return p.loading.Load() }

// Error is the last load's error string, empty when every fetch succeeded.
func (p *Provider) Error() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.errMsg
}

// LoadErrors returns the per-collection errors of the last load.
func (p *Provider) LoadErrors() map[string]error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]error, len(p.loadErrs))
	for k, v := range p.loadErrs {
		out[k] = v
	}
	return out
}

func (p *Provider) LastUpdated() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastUpdated
}

func orEmpty[T any](items []T, failed bool) []T {
	if failed || items == nil {
		return []T{}
	}
	return items
}

func joinErrors(errs map[string]error) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, errs[k].Error())
	}
	return strings.Join(parts, "; ")
}
