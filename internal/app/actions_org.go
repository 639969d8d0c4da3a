package app

import (
	"context"
	"errors"
	"strings"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/cache"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

type DepartmentInput struct {
	ID          string  `json:"-"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	HeadID      *string `json:"headId"`
}

type TeamInput struct {
	ID           string  `json:"-"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	DepartmentID *string `json:"departmentId"`
	LeadID       *string `json:"leadId"`
}

type TeamMemberInput struct {
	TeamID string `json:"-"`
	UserID string `json:"userId"`
}

func validateNamed(name, description string) error {
	if blank(name) {
		return required("name")
	}
	if err := maxLen("name", strings.TrimSpace(name), 100); err != nil {
		return err
	}
	return maxLen("description", description, 2000)
}

func (s *Service) requireDepartment(ctx context.Context, id string) (store.Department, error) {
	dept, err := s.store.GetDepartment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Department{}, notFound("Department")
	}
	return dept, err
}

func (s *Service) requireTeam(ctx context.Context, id string) (store.Team, error) {
	team, err := s.store.GetTeam(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Team{}, notFound("Team")
	}
	return team, err
}

// departmentNameTaken compares case-insensitively, matching the unique index.
func (s *Service) departmentNameTaken(ctx context.Context, name, exceptID string) error {
	depts, err := s.store.ListDepartments(ctx)
	if err != nil {
		return err
	}
	for _, d := range depts {
		if d.ID != exceptID && strings.EqualFold(d.Name, strings.TrimSpace(name)) {
			return conflict("Department name already exists")
		}
	}
	return nil
}

func departmentWriteErr(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return conflict("Department name already exists")
	}
	return err
}

func (s *Service) CreateDepartment(ctx context.Context, actor *auth.Session, in DepartmentInput) ActionResult {
	return s.run(ctx, actor, mutation{
		action:   audit.DepartmentCreated,
		entity:   audit.EntityDepartment,
		perm:     rbac.PermDepartmentCreate,
		validate: func() error { return validateNamed(in.Name, in.Description) },
		check: func(ctx context.Context) error {
			if err := s.departmentNameTaken(ctx, in.Name, ""); err != nil {
				return err
			}
			return s.checkUserRef(ctx, "headId", optionalID(in.HeadID))
		},
		write: func(ctx context.Context) (written, error) {
			dept := store.Department{
				ID:          util.NewID("dep"),
				Name:        strings.TrimSpace(in.Name),
				Description: strings.TrimSpace(in.Description),
				HeadID:      optionalID(in.HeadID),
			}
			if err := s.store.CreateDepartment(ctx, dept); err != nil {
				return written{}, departmentWriteErr(err)
			}
			return written{id: dept.ID, detail: dept.Name}, nil
		},
		tags:    []string{cache.TagDepartments},
		message: "Department created successfully",
	})
}

func (s *Service) UpdateDepartment(ctx context.Context, actor *auth.Session, in DepartmentInput) ActionResult {
	var dept store.Department
	return s.run(ctx, actor, mutation{
		action: audit.DepartmentUpdated,
		entity: audit.EntityDepartment,
		perm:   rbac.PermDepartmentUpdate,
		validate: func() error {
			if blank(in.ID) {
				return required("id")
			}
			return validateNamed(in.Name, in.Description)
		},
		check: func(ctx context.Context) (err error) {
			if dept, err = s.requireDepartment(ctx, in.ID); err != nil {
				return err
			}
			if err := s.departmentNameTaken(ctx, in.Name, in.ID); err != nil {
				return err
			}
			return s.checkUserRef(ctx, "headId", optionalID(in.HeadID))
		},
		write: func(ctx context.Context) (written, error) {
			dept.Name = strings.TrimSpace(in.Name)
			dept.Description = strings.TrimSpace(in.Description)
			dept.HeadID = optionalID(in.HeadID)
			if err := s.store.UpdateDepartment(ctx, dept); err != nil {
				return written{}, departmentWriteErr(err)
			}
			return written{id: dept.ID}, nil
		},
		tags:    []string{cache.TagDepartments},
		message: "Department updated successfully",
	})
}

func (s *Service) DeleteDepartment(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var dept store.Department
	return s.run(ctx, actor, mutation{
		action: audit.DepartmentDeleted,
		entity: audit.EntityDepartment,
		perm:   rbac.PermDepartmentDelete,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if dept, err = s.requireDepartment(ctx, id); err != nil {
				return err
			}
			if dept.MemberCount > 0 {
				return conflict("Department still has members")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			deleted, err := s.store.DeleteDepartment(ctx, id)
			if err != nil {
				return written{}, err
			}
			if !deleted {
				return written{}, notFound("Department")
			}
			return written{id: id, detail: dept.Name}, nil
		},
		tags:    []string{cache.TagDepartments, cache.TagTeams},
		message: "Department deleted successfully",
	})
}

func (s *Service) checkTeamRefs(ctx context.Context, in TeamInput) error {
	if err := s.checkUserRef(ctx, "leadId", optionalID(in.LeadID)); err != nil {
		return err
	}
	if dept := optionalID(in.DepartmentID); dept != nil {
		if _, err := s.store.GetDepartment(ctx, *dept); errors.Is(err, store.ErrNotFound) {
			return invalid("departmentId", "must reference an existing department")
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CreateTeam(ctx context.Context, actor *auth.Session, in TeamInput) ActionResult {
	return s.run(ctx, actor, mutation{
		action:   audit.TeamCreated,
		entity:   audit.EntityTeam,
		perm:     rbac.PermTeamCreate,
		validate: func() error { return validateNamed(in.Name, in.Description) },
		check:    func(ctx context.Context) error { return s.checkTeamRefs(ctx, in) },
		write: func(ctx context.Context) (written, error) {
			team := store.Team{
				ID:           util.NewID("team"),
				Name:         strings.TrimSpace(in.Name),
				Description:  strings.TrimSpace(in.Description),
				DepartmentID: optionalID(in.DepartmentID),
				LeadID:       optionalID(in.LeadID),
			}
			if err := s.store.CreateTeam(ctx, team); err != nil {
				return written{}, err
			}
			return written{id: team.ID, detail: team.Name}, nil
		},
		tags:    []string{cache.TagTeams},
		message: "Team created successfully",
	})
}

func (s *Service) UpdateTeam(ctx context.Context, actor *auth.Session, in TeamInput) ActionResult {
	var team store.Team
	return s.run(ctx, actor, mutation{
		action: audit.TeamUpdated,
		entity: audit.EntityTeam,
		perm:   rbac.PermTeamUpdate,
		validate: func() error {
			if blank(in.ID) {
				return required("id")
			}
			return validateNamed(in.Name, in.Description)
		},
		check: func(ctx context.Context) (err error) {
			if team, err = s.requireTeam(ctx, in.ID); err != nil {
				return err
			}
			return s.checkTeamRefs(ctx, in)
		},
		write: func(ctx context.Context) (written, error) {
			team.Name = strings.TrimSpace(in.Name)
			team.Description = strings.TrimSpace(in.Description)
			team.DepartmentID = optionalID(in.DepartmentID)
			team.LeadID = optionalID(in.LeadID)
			if err := s.store.UpdateTeam(ctx, team); err != nil {
				return written{}, err
			}
			return written{id: team.ID}, nil
		},
		tags:    []string{cache.TagTeams},
		message: "Team updated successfully",
	})
}

func (s *Service) DeleteTeam(ctx context.Context, actor *auth.Session, id string) ActionResult {
	var team store.Team
	return s.run(ctx, actor, mutation{
		action: audit.TeamDeleted,
		entity: audit.EntityTeam,
		perm:   rbac.PermTeamDelete,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			team, err = s.requireTeam(ctx, id)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			deleted, err := s.store.DeleteTeam(ctx, id)
			if err != nil {
				return written{}, err
			}
			if !deleted {
				return written{}, notFound("Team")
			}
			return written{id: id, detail: team.Name}, nil
		},
		tags:    []string{cache.TagTeams, cache.TagProjects, cache.TagUsers},
		message: "Team deleted successfully",
	})
}

func (s *Service) AddTeamMember(ctx context.Context, actor *auth.Session, in TeamMemberInput) ActionResult {
	return s.run(ctx, actor, mutation{
		action: audit.TeamMemberAdded,
		entity: audit.EntityTeam,
		perm:   rbac.PermTeamManageMembers,
		validate: func() error {
			if blank(in.TeamID) {
				return required("teamId")
			}
			if blank(in.UserID) {
				return required("userId")
			}
			return nil
		},
		check: func(ctx context.Context) error {
			if _, err := s.requireTeam(ctx, in.TeamID); err != nil {
				return err
			}
			_, err := s.requireUser(ctx, in.UserID)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			added, err := s.store.AddTeamMember(ctx, in.TeamID, in.UserID)
			if err != nil {
				return written{}, err
			}
			if !added {
				return written{}, conflict("User is already a member of this team")
			}
			return written{id: in.TeamID, detail: "user " + in.UserID}, nil
		},
		tags:    []string{cache.TagTeams, cache.TagUsers},
		message: "Team member added successfully",
	})
}

func (s *Service) RemoveTeamMember(ctx context.Context, actor *auth.Session, in TeamMemberInput) ActionResult {
	return s.run(ctx, actor, mutation{
		action: audit.TeamMemberRemoved,
		entity: audit.EntityTeam,
		perm:   rbac.PermTeamManageMembers,
		validate: func() error {
			if blank(in.TeamID) {
				return required("teamId")
			}
			if blank(in.UserID) {
				return required("userId")
			}
			return nil
		},
		check: func(ctx context.Context) error {
			if _, err := s.requireTeam(ctx, in.TeamID); err != nil {
				return err
			}
			_, err := s.requireUser(ctx, in.UserID)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			removed, err := s.store.RemoveTeamMember(ctx, in.TeamID, in.UserID)
			if err != nil {
				return written{}, err
			}
			if !removed {
				return written{}, conflict("User is not a member of this team")
			}
			return written{id: in.TeamID, detail: "user " + in.UserID}, nil
		},
		tags:    []string{cache.TagTeams, cache.TagUsers},
		message: "Team member removed successfully",
	})
}
