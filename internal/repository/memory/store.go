// Package memory is an in-process repository.Store used for local
// development and service tests. All state sits behind one mutex;
// transactions hold it for their whole duration and restore a snapshot on
// error.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
)

type assignment struct {
	doctorID   uuid.UUID
	assignedAt time.Time
}

type data struct {
	actors      map[uuid.UUID]model.Actor
	contacts    map[uuid.UUID]model.EmergencyContact
	tokens      map[string]model.OpaqueToken
	requests    map[uuid.UUID]model.PendingRequest
	assignments map[uuid.UUID]assignment // patient id -> doctor
	sequences   map[int]int
}

func newData() *data {
	return &data{
		actors:      make(map[uuid.UUID]model.Actor),
		contacts:    make(map[uuid.UUID]model.EmergencyContact),
		tokens:      make(map[string]model.OpaqueToken),
		requests:    make(map[uuid.UUID]model.PendingRequest),
		assignments: make(map[uuid.UUID]assignment),
		sequences:   make(map[int]int),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.actors {
		c.actors[k] = v
	}
	for k, v := range d.contacts {
		c.contacts[k] = v
	}
	for k, v := range d.tokens {
		c.tokens[k] = v
	}
	for k, v := range d.requests {
		c.requests[k] = v
	}
	for k, v := range d.assignments {
		c.assignments[k] = v
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	return c
}

// deleteActor removes id and applies the same ON DELETE rules as the
// postgres schema: relatives monitoring id and rows owned by id go with it,
// references from other actors are cleared.
func (d *data) deleteActor(id uuid.UUID) {
	delete(d.actors, id)

	var dependents []uuid.UUID
	for aid, a := range d.actors {
		if a.MonitoredPatient != nil && *a.MonitoredPatient == id {
			dependents = append(dependents, aid)
			continue
		}
		changed := false
		if a.ApprovedBy != nil && *a.ApprovedBy == id {
			a.ApprovedBy = nil
			changed = true
		}
		if a.AssignedDoctor != nil && *a.AssignedDoctor == id {
			a.AssignedDoctor = nil
			changed = true
		}
		if changed {
			d.actors[aid] = a
		}
	}
	for cid, c := range d.contacts {
		if c.PatientID == id {
			delete(d.contacts, cid)
		}
	}
	for rid, req := range d.requests {
		if req.DoctorID == id || req.PatientID == id {
			delete(d.requests, rid)
		}
	}
	for pid, as := range d.assignments {
		if pid == id || as.doctorID == id {
			delete(d.assignments, pid)
		}
	}
	for _, dep := range dependents {
		d.deleteActor(dep)
	}
}

// Store implements repository.Store in memory.
type Store struct {
	mu   *sync.Mutex
	d    *data
	inTx bool
}

func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, d: newData()}
}

// lock takes the store mutex unless this view already runs inside a
// transaction that holds it.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Actors() repository.ActorRepository {
	return &actorRepository{s}
}

func (s *Store) Tokens() repository.TokenRepository {
	return &tokenRepository{s}
}

func (s *Store) Assignments() repository.AssignmentRepository {
	return &assignmentRepository{s}
}

func (s *Store) EmergencyContacts() repository.EmergencyContactRepository {
	return &emergencyContactRepository{s}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	tx := &Store{mu: s.mu, d: s.d, inTx: true}

	defer func() {
		if p := recover(); p != nil {
			*s.d = *snapshot
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}
