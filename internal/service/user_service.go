package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/model"
)

// UserService manages staff and parent accounts and parent-child links.
type UserService struct {
	users     UserStore
	relations RelationStore
	state     *appstate.State
	log       zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users UserStore, relations RelationStore, state *appstate.State, log zerolog.Logger) *UserService {
	return &UserService{
		users:     users,
		relations: relations,
		state:     state,
		log:       log.With().Str("component", "user_service").Logger(),
	}
}

// List returns every user with the ids of its children, sorted by q.
func (s *UserService) List(ctx context.Context, q model.UserListQuery) ([]model.User, error) {
	var (
		users     []model.User
		relations []model.Relation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.users.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		relations, err = s.relations.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	childrenOf := make(map[string][]string)
	for _, r := range relations {
		childrenOf[r.ParentID] = append(childrenOf[r.ParentID], r.StudentID)
	}
	for i := range users {
		users[i].ChildIDs = childrenOf[users[i].ID]
	}
	s.state.PutUsers(users...)

	sortUsers(users, q.Sort, q.Dir)
	return users, nil
}

// PinAvailable reports whether pin is free for a user other than excludeID.
func (s *UserService) PinAvailable(ctx context.Context, pin, excludeID string) (bool, error) {
	taken, err := s.users.PinTaken(ctx, pin, excludeID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Create adds a user and, for parents, links the requested children.
// Link failures are logged and do not fail the request.
func (s *UserService) Create(ctx context.Context, req model.SaveUserRequest) (model.User, error) {
	u, err := s.prepare("", req)
	if err != nil {
		return model.User{}, err
	}
	if err := s.ensurePinFree(ctx, u.PIN, ""); err != nil {
		return model.User{}, err
	}

	created, err := s.users.Create(ctx, u)
	if err != nil {
		return model.User{}, err
	}

	if created.Role == model.RoleParent && len(u.ChildIDs) > 0 {
		if err := s.relations.Add(ctx, created.ID, u.ChildIDs); err != nil {
			s.log.Error().Err(err).Str("user_id", created.ID).Msg("Failed to link children")
		} else {
			created.ChildIDs = u.ChildIDs
		}
	}

	s.state.PutUsers(created)
	return created, nil
}

// Update edits a user and reconciles its children with the request.
// Users who are no longer parents lose every link.
func (s *UserService) Update(ctx context.Context, id string, req model.SaveUserRequest) (model.User, error) {
	u, err := s.prepare(id, req)
	if err != nil {
		return model.User{}, err
	}
	if err := s.ensurePinFree(ctx, u.PIN, id); err != nil {
		return model.User{}, err
	}

	updated, err := s.users.Update(ctx, u)
	if err != nil {
		return model.User{}, err
	}

	want := u.ChildIDs
	if updated.Role != model.RoleParent {
		want = nil
	}
	updated.ChildIDs = s.syncChildren(ctx, id, want)

	s.state.PutUsers(updated)
	return updated, nil
}

// Delete removes a user. Links go with it; logs keep the performer id.
func (s *UserService) Delete(ctx context.Context, id string) error {
	err := s.users.Delete(ctx, id)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	s.state.RemoveUser(id)
	return nil
}

func (s *UserService) prepare(id string, req model.SaveUserRequest) (model.User, error) {
	if !req.Role.Valid() {
		return model.User{}, apperror.Validation("role", "unknown role %q", req.Role)
	}
	if !pinPattern.MatchString(req.PIN) {
		return model.User{}, apperror.Validation("pin", "PIN must be 4 digits")
	}

	var children []string
	for _, c := range req.ChildIDs {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(children, c) {
			children = append(children, c)
		}
	}

	return model.User{
		ID:        id,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      req.Role,
		PIN:       req.PIN,
		ChildIDs:  children,
	}, nil
}

func (s *UserService) ensurePinFree(ctx context.Context, pin, excludeID string) error {
	taken, err := s.users.PinTaken(ctx, pin, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperror.Conflict("pin", "PIN already in use")
	}
	return nil
}

// syncChildren diffs the stored links against want and returns the links
// that are in place afterwards.
func (s *UserService) syncChildren(ctx context.Context, parentID string, want []string) []string {
	rels, err := s.relations.ForParent(ctx, parentID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", parentID).Msg("Failed to load children")
		return want
	}
	current := make([]string, len(rels))
	for i, r := range rels {
		current[i] = r.StudentID
	}

	toAdd, toRemove := diffIDs(current, want)
	kept := slices.DeleteFunc(slices.Clone(current), func(id string) bool { return slices.Contains(toRemove, id) })

	if err := s.relations.Remove(ctx, parentID, toRemove); err != nil {
		s.log.Error().Err(err).Str("user_id", parentID).Strs("student_ids", toRemove).Msg("Failed to unlink children")
		kept = current
	}
	if err := s.relations.Add(ctx, parentID, toAdd); err != nil {
		s.log.Error().Err(err).Str("user_id", parentID).Strs("student_ids", toAdd).Msg("Failed to link children")
	} else {
		kept = append(kept, toAdd...)
	}
	return kept
}

// diffIDs returns the ids of want missing from current, and the ids of
// current missing from want.
func diffIDs(current, want []string) (toAdd, toRemove []string) {
	for _, id := range want {
		if !slices.Contains(current, id) {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range current {
		if !slices.Contains(want, id) {
			toRemove = append(toRemove, id)
		}
	}
	return toAdd, toRemove
}
