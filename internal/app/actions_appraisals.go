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

type AppraisalInput struct {
	EmployeeID string `json:"employeeId"`
	Period     string `json:"period"`
}

type AppraisalReviewInput struct {
	ID           string `json:"-"`
	Score        int    `json:"score"`
	Strengths    string `json:"strengths"`
	Improvements string `json:"improvements"`
	Goals        string `json:"goals"`
	Comments     string `json:"comments"`
}

func (s *Service) requireAppraisal(ctx context.Context, id string) (store.Appraisal, error) {
	a, err := s.store.GetAppraisal(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Appraisal{}, notFound("Appraisal")
	}
	return a, err
}

func (s *Service) CreateAppraisal(ctx context.Context, actor *auth.Session, in AppraisalInput) ActionResult {
	period := strings.TrimSpace(in.Period)
	return s.run(ctx, actor, mutation{
		action: audit.AppraisalCreated,
		entity: audit.EntityAppraisal,
		perm:   rbac.PermAppraisalCreate,
		validate: func() error {
			if blank(in.EmployeeID) {
				return required("employeeId")
			}
			if period == "" {
				return required("period")
			}
			return maxLen("period", period, 50)
		},
		check: func(ctx context.Context) error {
			if in.EmployeeID == actor.UserID {
				return conflict("You cannot appraise yourself")
			}
			employee, err := s.requireUser(ctx, in.EmployeeID)
			if err != nil {
				return err
			}
			if employee.Status != store.UserActive {
				return conflict("Cannot appraise an inactive user")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			a := store.Appraisal{
				ID:         util.NewID("apr"),
				EmployeeID: in.EmployeeID,
				ReviewerID: actor.UserID,
				Period:     period,
				Status:     store.AppraisalDraft,
				CreatedAt:  s.now().UTC(),
			}
			if err := s.store.CreateAppraisal(ctx, a); err != nil {
				return written{}, err
			}
			return written{id: a.ID, detail: period}, nil
		},
		tags:    []string{cache.TagAppraisals},
		message: "Appraisal created successfully",
	})
}

// SubmitAppraisal finalises a draft. Only its reviewer or an admin may submit it.
func (s *Service) SubmitAppraisal(ctx context.Context, actor *auth.Session, in AppraisalReviewInput) ActionResult {
	var appraisal store.Appraisal
	return s.run(ctx, actor, mutation{
		action: audit.AppraisalSubmitted,
		entity: audit.EntityAppraisal,
		perm:   rbac.PermAppraisalSubmit,
		validate: func() error {
			if blank(in.ID) {
				return required("id")
			}
			if in.Score < 1 || in.Score > 5 {
				return invalid("score", "must be between 1 and 5")
			}
			fields := [][2]string{
				{"strengths", in.Strengths}, {"improvements", in.Improvements},
				{"goals", in.Goals}, {"comments", in.Comments},
			}
			for _, f := range fields {
				if err := maxLen(f[0], f[1], 5000); err != nil {
					return err
				}
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if appraisal, err = s.requireAppraisal(ctx, in.ID); err != nil {
				return err
			}
			if appraisal.ReviewerID != actor.UserID && actor.Role != rbac.RoleAdmin {
				return forbidden("Only the reviewer can submit this appraisal")
			}
			if appraisal.Status != store.AppraisalDraft {
				return conflict("Appraisal has already been submitted")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			appraisal.Score = ptr(in.Score)
			appraisal.Strengths = strings.TrimSpace(in.Strengths)
			appraisal.Improvements = strings.TrimSpace(in.Improvements)
			appraisal.Goals = strings.TrimSpace(in.Goals)
			appraisal.Comments = strings.TrimSpace(in.Comments)
			appraisal.SubmittedAt = ptr(s.now().UTC())
			changed, err := s.store.SubmitAppraisal(ctx, appraisal)
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("Appraisal has already been submitted")
			}
			return written{id: appraisal.ID, detail: appraisal.Period}, nil
		},
		tags:    []string{cache.TagAppraisals},
		message: "Appraisal submitted successfully",
	})
}

func (s *Service) AcknowledgeAppraisal(ctx context.Context, actor *auth.Session, id string) ActionResult {
	return s.run(ctx, actor, mutation{
		action: audit.AppraisalAcknowledged,
		entity: audit.EntityAppraisal,
		perm:   rbac.PermAppraisalAcknowledge,
		validate: func() error {
			if blank(id) {
				return required("id")
			}
			return nil
		},
		check: func(ctx context.Context) error {
			appraisal, err := s.requireAppraisal(ctx, id)
			if err != nil {
				return err
			}
			if appraisal.EmployeeID != actor.UserID {
				return forbidden("Only the appraised employee can acknowledge this appraisal")
			}
			if appraisal.Status != store.AppraisalSubmitted {
				return conflict("Only submitted appraisals can be acknowledged")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.AcknowledgeAppraisal(ctx, id, s.now().UTC())
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("Only submitted appraisals can be acknowledged")
			}
			return written{id: id}, nil
		},
		tags:    []string{cache.TagAppraisals},
		message: "Appraisal acknowledged",
	})
}
