package cache

import (
	"sort"
	"time"
)

// Sync states of a cached record.
const (
	Synced   = "synced"
	Pending  = "pending"
	Conflict = "conflict"
)

// Collection names used as sync keys.
const (
	CollInscriptions = "inscriptions"
	CollPaiements    = "paiements"
	CollDortoirs     = "dortoirs"
	CollClasses      = "classes"
	CollChefs        = "chefs_quartier"
	CollNotes        = "notes_examens"
	CollCapacites    = "config_capacite_classes"
)

type syncKey struct {
	coll string
	id   uint
}

type syncEntry struct {
	state   string
	patch   map[string]any
	deleted bool
	at      time.Time
	server  map[string]any
}

// ConflictInfo describes a local change the store did not confirm. Server is
// nil when the record no longer exists there.
type ConflictInfo struct {
	Collection string         `json:"collection"`
	ID         uint           `json:"id"`
	Patch      map[string]any `json:"patch,omitempty"`
	Deleted    bool           `json:"deleted"`
	Server     map[string]any `json:"server"`
	At         time.Time      `json:"at"`
}

// track records a local change. Successive patches of the same record merge
// and restart the wait for a load that began after the latest one.
// Caller holds p.mu.
func (p *Provider) track(coll string, id uint, patch map[string]any, deleted bool) {
	k := syncKey{coll, id}
	e, ok := p.syncs[k]
	if !ok || e.state == Conflict {
		e = &syncEntry{patch: map[string]any{}}
		p.syncs[k] = e
	}
	e.state = Pending
	e.deleted = deleted
	e.server = nil
	e.at = p.now()
	if deleted {
		e.patch = map[string]any{}
		return
	}
	for f, v := range patch {
		e.patch[f] = v
	}
}

// reconcile settles pending entries against freshly loaded records. Only
// entries older than the load start are judged; younger ones are applied
// again on top of the loaded data. Caller holds p.mu.
func (p *Provider) reconcile(started time.Time, failed map[string]bool) {
	for k, e := range p.syncs {
		if e.state != Pending || failed[k.coll] {
			continue
		}
		if !e.at.Before(started) {
			// the load may predate the write: keep showing the local change
			p.reapply(k, e)
			continue
		}
		server, found := p.serverRecord(k.coll, k.id)
		switch {
		case e.deleted && !found:
			delete(p.syncs, k)
		case e.deleted:
			e.state = Conflict
			e.server = server
		case !found:
			e.state = Conflict
		case matches(server, e.patch):
			delete(p.syncs, k)
		default:
			e.state = Conflict
			e.server = server
		}
	}
}

func reapply[T any](items []T, id uint, idOf func(T) uint, e *syncEntry) []T {
	if e.deleted {
		out, _ := remove(items, id, idOf)
		return out
	}
	var base T
	if i := index(items, id, idOf); i >= 0 {
		base = items[i]
	}
	rec, err := applyPatch(base, e.patch)
	if err != nil {
		return items
	}
	return upsert(items, rec, idOf)
}

func (p *Provider) reapply(k syncKey, e *syncEntry) {
	switch k.coll {
	case CollInscriptions:
		p.inscriptions = reapply(p.inscriptions, k.id, inscriptionID, e)
		if i := index(p.inscriptions, k.id, inscriptionID); i >= 0 {
			p.inscriptions[i] = p.linkInscription(p.inscriptions[i])
		}
	case CollPaiements:
		p.paiements = reapply(p.paiements, k.id, paiementID, e)
	case CollDortoirs:
		p.dortoirs = reapply(p.dortoirs, k.id, dortoirID, e)
	case CollClasses:
		p.classes = reapply(p.classes, k.id, classeID, e)
	case CollChefs:
		p.chefs = reapply(p.chefs, k.id, chefID, e)
	case CollNotes:
		p.notes = reapply(p.notes, k.id, noteID, e)
	case CollCapacites:
		p.capacites = reapply(p.capacites, k.id, capaciteID, e)
	}
}

func (p *Provider) serverRecord(coll string, id uint) (map[string]any, bool) {
	var (
		rec any
		i   = -1
	)
	switch coll {
	case CollInscriptions:
		if i = index(p.inscriptions, id, inscriptionID); i >= 0 {
			rec = p.inscriptions[i]
		}
	case CollPaiements:
		if i = index(p.paiements, id, paiementID); i >= 0 {
			rec = p.paiements[i]
		}
	case CollDortoirs:
		if i = index(p.dortoirs, id, dortoirID); i >= 0 {
			rec = p.dortoirs[i]
		}
	case CollClasses:
		if i = index(p.classes, id, classeID); i >= 0 {
			rec = p.classes[i]
		}
	case CollChefs:
		if i = index(p.chefs, id, chefID); i >= 0 {
			rec = p.chefs[i]
		}
	case CollNotes:
		if i = index(p.notes, id, noteID); i >= 0 {
			rec = p.notes[i]
		}
	case CollCapacites:
		if i = index(p.capacites, id, capaciteID); i >= 0 {
			rec = p.capacites[i]
		}
	}
	if i < 0 {
		return nil, false
	}
	m, err := scalarFields(rec)
	if err != nil {
		return nil, true
	}
	return m, true
}

// SyncState returns the state of one cached record.
func (p *Provider) SyncState(coll string, id uint) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.syncs[syncKey{coll, id}]; ok {
		return e.state
	}
	return Synced
}

// Conflicts lists unconfirmed local changes, oldest first.
func (p *Provider) Conflicts() []ConflictInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := []ConflictInfo{}
	for k, e := range p.syncs {
		if e.state != Conflict {
			continue
		}
		out = append(out, ConflictInfo{
			Collection: k.coll,
			ID:         k.id,
			Patch:      e.patch,
			Deleted:    e.deleted,
			Server:     e.server,
			At:         e.at,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ID < out[j].ID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Ack dismisses a conflict. It reports whether there was one.
func (p *Provider) Ack(coll string, id uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := syncKey{coll, id}
	if e, ok := p.syncs[k]; ok && e.state == Conflict {
		delete(p.syncs, k)
		return true
	}
	return false
}
