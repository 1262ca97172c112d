package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

type actorRepository struct{ s *Store }

func (r *actorRepository) Create(_ context.Context, actor *model.Actor) error {
	defer r.s.lock()()

	actor.Email = model.NormalizeEmail(actor.Email)
	for _, a := range r.s.d.actors {
		if a.Email == actor.Email && a.Role == actor.Role {
			return apperrors.Conflict(fmt.Sprintf("an account with email %s already exists", actor.Email))
		}
	}
	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = time.Now().UTC()
	}
	actor.UpdatedAt = actor.CreatedAt
	r.s.d.actors[actor.ID] = *actor
	return nil
}

func (r *actorRepository) Get(_ context.Context, id uuid.UUID) (*model.Actor, error) {
	defer r.s.lock()()

	a, ok := r.s.d.actors[id]
	if !ok {
		return nil, apperrors.NotFound("account", nil)
	}
	return &a, nil
}

func (r *actorRepository) GetByEmail(_ context.Context, email string, role model.Role) (*model.Actor, error) {
	defer r.s.lock()()

	email = model.NormalizeEmail(email)
	for _, a := range r.s.d.actors {
		if a.Email == email && a.Role == role {
			return &a, nil
		}
	}
	return nil, apperrors.NotFound("account", nil)
}

func (r *actorRepository) ListByEmail(_ context.Context, email string) ([]*model.Actor, error) {
	defer r.s.lock()()

	email = model.NormalizeEmail(email)
	var out []*model.Actor
	for _, a := range r.s.d.actors {
		if a.Email == email {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *actorRepository) Delete(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()

	if _, ok := r.s.d.actors[id]; !ok {
		return apperrors.NotFound("account", nil)
	}
	r.s.d.deleteActor(id)
	return nil
}

func (r *actorRepository) List(_ context.Context, filter *model.ActorFilter) ([]*model.Actor, int, error) {
	defer r.s.lock()()

	if filter == nil {
		filter = &model.ActorFilter{}
	}
	matched := []*model.Actor{}
	for _, a := range r.s.d.actors {
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if filter.IsApproved != nil && a.IsApproved != *filter.IsApproved {
			continue
		}
		if filter.InvitationStatus != "" && a.InvitationState() != filter.InvitationStatus {
			continue
		}
		if filter.ProfileCompleted != nil && a.ProfileCompleted != *filter.ProfileCompleted {
			continue
		}
		a := a
		matched = append(matched, &a)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	page := filter.Pagination.Normalize(100)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *actorRepository) MarkApprovalRequested(_ context.Context, id, adminID uuid.UUID, patientNumber string, at time.Time) error {
	defer r.s.lock()()

	a, ok := r.s.d.actors[id]
	if !ok || a.Role != model.RolePatient || a.IsApproved {
		return apperrors.AlreadyActivated("patient is already approved")
	}
	a.ApprovedAt = &at
	a.ApprovedBy = &adminID
	if a.PatientNumber == nil && patientNumber != "" {
		a.PatientNumber = &patientNumber
	}
	a.UpdatedAt = at
	r.s.d.actors[id] = a
	return nil
}

func (r *actorRepository) Activate(_ context.Context, id uuid.UUID, at time.Time) error {
	defer r.s.lock()()

	a, ok := r.s.d.actors[id]
	if !ok || a.Role != model.RolePatient || a.IsApproved {
		return apperrors.AlreadyActivated("account is already activated")
	}
	a.IsApproved = true
	a.EmailVerified = true
	if a.ApprovedAt == nil {
		a.ApprovedAt = &at
	}
	a.UpdatedAt = at
	r.s.d.actors[id] = a
	return nil
}

func (r *actorRepository) SetPassword(_ context.Context, id uuid.UUID, hash string, at time.Time) error {
	defer r.s.lock()()

	a, ok := r.s.d.actors[id]
	if !ok {
		return apperrors.NotFound("account", nil)
	}
	a.PasswordHash = hash
	a.PasswordChangedAt = &at
	a.UpdatedAt = at
	r.s.d.actors[id] = a
	return nil
}

func (r *actorRepository) SetInvitation(_ context.Context, id uuid.UUID, tokenID string, expires, sentAt time.Time) error {
	defer r.s.lock()()

	a, ok := r.s.d.actors[id]
	if !ok || a.Role != model.RoleRelative || a.InvitationState() != model.InvitationPending {
		return apperrors.AlreadyCompleted("invitation has already been accepted")
	}
	a.InvitationToken = &tokenID
	a.InvitationExpires = &expires
	a.InvitationSentAt = &sentAt
	a.UpdatedAt = sentAt
	r.s.d.actors[id] = a
	return nil
}

func (r *actorRepository) CompleteSetup(_ context.Context, id uuid.UUID, hash string, at time.Time) error {
	defer r.s.lock()()

	a, ok := r.s.d.actors[id]
	if !ok || a.Role != model.RoleRelative || a.InvitationState() != model.InvitationPending || a.ProfileCompleted {
		return apperrors.AlreadyCompleted("account setup has already been completed")
	}
	accepted := model.InvitationAccepted
	a.PasswordHash = hash
	a.PasswordChangedAt = &at
	a.ProfileCompleted = true
	a.InvitationStatus = &accepted
	a.InvitationToken = nil
	a.IsFirstLogin = false
	a.UpdatedAt = at
	r.s.d.actors[id] = a
	return nil
}

func (r *actorRepository) NextPatientSequence(_ context.Context, year int) (int, error) {
	defer r.s.lock()()

	r.s.d.sequences[year]++
	return r.s.d.sequences[year], nil
}

func (r *actorRepository) ApprovalStatistics(context.Context) (*model.ApprovalStatistics, error) {
	defer r.s.lock()()

	var stats model.ApprovalStatistics
	for _, a := range r.s.d.actors {
		if a.Role != model.RolePatient {
			continue
		}
		stats.TotalPatients++
		if a.IsApproved {
			stats.ApprovedPatients++
		} else {
			stats.PendingApprovals++
		}
	}
	if stats.TotalPatients > 0 {
		stats.ApprovalRate = float64(stats.ApprovedPatients) / float64(stats.TotalPatients) * 100
	}
	return &stats, nil
}

type tokenRepository struct{ s *Store }

func (r *tokenRepository) Create(_ context.Context, token *model.OpaqueToken) error {
	defer r.s.lock()()

	if _, exists := r.s.d.tokens[token.Token]; exists {
		return apperrors.Conflict("record already exists")
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	token.Email = model.NormalizeEmail(token.Email)
	r.s.d.tokens[token.Token] = *token
	return nil
}

func (r *tokenRepository) Get(_ context.Context, kind model.TokenKind, token string) (*model.OpaqueToken, error) {
	defer r.s.lock()()

	t, ok := r.s.d.tokens[token]
	if !ok || t.Kind != kind {
		return nil, apperrors.InvalidToken("invalid token", nil)
	}
	return &t, nil
}

func (r *tokenRepository) Consume(_ context.Context, kind model.TokenKind, token, email string, now time.Time) (*model.OpaqueToken, error) {
	defer r.s.lock()()

	t, ok := r.s.d.tokens[token]
	if !ok || t.Kind != kind {
		return nil, apperrors.InvalidToken("invalid token", nil)
	}
	email = model.NormalizeEmail(email)
	if (email != "" && t.Email != email) || t.Used || t.Expired(now) {
		return nil, repository.ClassifyTokenMiss(&t, email, now)
	}
	t.Used = true
	t.UsedAt = &now
	r.s.d.tokens[token] = t
	return &t, nil
}

func (r *tokenRepository) RevokeForEmail(_ context.Context, kind model.TokenKind, email string) (int64, error) {
	defer r.s.lock()()

	email = model.NormalizeEmail(email)
	var n int64
	for k, t := range r.s.d.tokens {
		if t.Kind == kind && t.Email == email && !t.Used {
			delete(r.s.d.tokens, k)
			n++
		}
	}
	return n, nil
}

func (r *tokenRepository) DeleteForEmail(_ context.Context, email string) (int64, error) {
	defer r.s.lock()()

	email = model.NormalizeEmail(email)
	var n int64
	for k, t := range r.s.d.tokens {
		if t.Email == email {
			delete(r.s.d.tokens, k)
			n++
		}
	}
	return n, nil
}

func (r *tokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	defer r.s.lock()()

	var n int64
	for k, t := range r.s.d.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.s.d.tokens, k)
			n++
		}
	}
	return n, nil
}

type assignmentRepository struct{ s *Store }

func (r *assignmentRepository) CreateRequest(_ context.Context, req *model.PendingRequest) error {
	defer r.s.lock()()

	for _, existing := range r.s.d.requests {
		if existing.DoctorID == req.DoctorID && existing.PatientID == req.PatientID && existing.Status == model.RequestPending {
			return apperrors.Conflict("a request to this doctor is already pending")
		}
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = model.RequestPending
	}
	r.s.d.requests[req.ID] = *req
	return nil
}

func (r *assignmentRepository) FindPending(_ context.Context, doctorID, patientID uuid.UUID) (*model.PendingRequest, error) {
	defer r.s.lock()()

	for _, req := range r.s.d.requests {
		if req.DoctorID == doctorID && req.PatientID == patientID && req.Status == model.RequestPending {
			return &req, nil
		}
	}
	return nil, apperrors.NotFound("pending request", nil)
}

func (r *assignmentRepository) Decide(_ context.Context, id uuid.UUID, status model.RequestStatus, at time.Time) (*model.PendingRequest, error) {
	defer r.s.lock()()

	req, ok := r.s.d.requests[id]
	if !ok || req.Status != model.RequestPending {
		return nil, apperrors.NotFound("pending request", nil)
	}
	req.Status = status
	req.DecidedAt = &at
	r.s.d.requests[id] = req
	return &req, nil
}

func (r *assignmentRepository) PendingForDoctor(_ context.Context, doctorID uuid.UUID) ([]*model.PendingRequest, error) {
	defer r.s.lock()()

	out := []*model.PendingRequest{}
	for _, req := range r.s.d.requests {
		if req.DoctorID == doctorID && req.Status == model.RequestPending {
			req := req
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (r *assignmentRepository) RequestedDoctors(_ context.Context, patientID uuid.UUID) ([]*model.DoctorSummary, error) {
	defer r.s.lock()()

	var pending []model.PendingRequest
	for _, req := range r.s.d.requests {
		if req.PatientID == patientID && req.Status == model.RequestPending {
			pending = append(pending, req)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].RequestedAt.After(pending[j].RequestedAt) })

	out := []*model.DoctorSummary{}
	for _, req := range pending {
		d, ok := r.s.d.actors[req.DoctorID]
		if !ok {
			continue
		}
		out = append(out, &model.DoctorSummary{
			ID:             d.ID,
			FirstName:      d.FirstName,
			LastName:       d.LastName,
			Email:          d.Email,
			Specialization: d.Specialization,
			Status:         req.Status,
		})
	}
	return out, nil
}

func (r *assignmentRepository) Assign(_ context.Context, doctorID, patientID uuid.UUID, at time.Time) error {
	defer r.s.lock()()

	p, ok := r.s.d.actors[patientID]
	if !ok || p.Role != model.RolePatient {
		return apperrors.NotFound("patient", nil)
	}
	if cur, ok := r.s.d.assignments[patientID]; !ok || cur.doctorID != doctorID {
		r.s.d.assignments[patientID] = assignment{doctorID: doctorID, assignedAt: at}
	}
	p.AssignedDoctor = &doctorID
	p.UpdatedAt = at
	r.s.d.actors[patientID] = p
	return nil
}

func (r *assignmentRepository) IsAssigned(_ context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	defer r.s.lock()()

	cur, ok := r.s.d.assignments[patientID]
	return ok && cur.doctorID == doctorID, nil
}

func (r *assignmentRepository) AssignedPatients(_ context.Context, doctorID uuid.UUID) ([]*model.AssignedPatient, error) {
	defer r.s.lock()()

	out := []*model.AssignedPatient{}
	for patientID, cur := range r.s.d.assignments {
		if cur.doctorID != doctorID {
			continue
		}
		p, ok := r.s.d.actors[patientID]
		if !ok {
			continue
		}
		out = append(out, &model.AssignedPatient{
			PatientID:     p.ID,
			FirstName:     p.FirstName,
			LastName:      p.LastName,
			Email:         p.Email,
			Phone:         p.Phone,
			PatientNumber: p.PatientNumber,
			AssignedAt:    cur.assignedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

func (r *assignmentRepository) DeleteForPatient(_ context.Context, patientID uuid.UUID) error {
	defer r.s.lock()()

	for id, req := range r.s.d.requests {
		if req.PatientID == patientID {
			delete(r.s.d.requests, id)
		}
	}
	delete(r.s.d.assignments, patientID)
	return nil
}

type emergencyContactRepository struct{ s *Store }

func (r *emergencyContactRepository) Create(_ context.Context, contact *model.EmergencyContact) error {
	defer r.s.lock()()

	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	contact.CreatedAt = time.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt
	contact.Email = model.NormalizeEmail(contact.Email)
	r.s.d.contacts[contact.ID] = *contact
	return nil
}

func (r *emergencyContactRepository) ListForPatient(_ context.Context, patientID uuid.UUID) ([]*model.EmergencyContact, error) {
	defer r.s.lock()()

	out := []*model.EmergencyContact{}
	for _, c := range r.s.d.contacts {
		if c.PatientID == patientID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *emergencyContactRepository) ListWithoutRelative(_ context.Context, page model.Pagination) ([]*model.RelativeRequest, int, error) {
	defer r.s.lock()()

	relatives := make(map[string]bool)
	for _, a := range r.s.d.actors {
		if a.Role == model.RoleRelative {
			relatives[a.Email] = true
		}
	}
	matched := []*model.RelativeRequest{}
	for _, c := range r.s.d.contacts {
		if relatives[c.Email] {
			continue
		}
		patient, ok := r.s.d.actors[c.PatientID]
		if !ok {
			continue
		}
		matched = append(matched, &model.RelativeRequest{
			EmergencyContact: c,
			PatientName:      patient.FullName(),
			PatientEmail:     patient.Email,
			PatientNumber:    patient.PatientNumber,
		})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	page = page.Normalize(100)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
