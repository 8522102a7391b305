package teaching

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/user"
)

type tier struct {
	source  Source
	resolve func(ctx context.Context, teacher user.User, subjects []core.Subject) ([]StudentProgress, error)
}

func (svc *service) tiers() []tier {
	return []tier{
		{source: SourceLinks, resolve: svc.fromLinks},
		{source: SourceGrade, resolve: svc.fromGrade},
		{source: SourceSubjects, resolve: svc.fromSubjects},
	}
}

func (svc *service) Dashboard(ctx context.Context, p core.Principal) (dash Dashboard) {
	var teacher user.User
	defer func() {
		if r := recover(); r != nil {
			dash = svc.degraded(errors.Errorf("panic: %v", r), teacher)
		}
	}()

	teacher, err := user.Resolve(ctx, svc.usrRepo, p)
	if err != nil {
		if errors.Cause(err) == core.ErrUnauthorized {
			return Dashboard{StudentProgress: []StudentProgress{}, Status: StatusIncompleteProfile}
		}
		return svc.degraded(err, teacher)
	}
	if !teacher.IsTeacher() || !teacher.Grade.IsSet() {
		return Dashboard{Teacher: &teacher, StudentProgress: []StudentProgress{}, Status: StatusIncompleteProfile}
	}

	subjects := teacher.Subjects
	if len(subjects) == 0 {
		subjects = core.AllSubjects
	}

	var rows []StudentProgress
	var source Source
	for _, t := range svc.tiers() {
		rows, err = t.resolve(ctx, teacher, subjects)
		if err != nil {
			return svc.degraded(errors.Wrapf(err, "resolving students from %s", t.source), teacher)
		}
		source = t.source
		if len(rows) > 0 {
			break
		}
	}
	if rows == nil {
		rows = []StudentProgress{}
	}
	return Dashboard{Teacher: &teacher, StudentProgress: rows, Source: source, Status: StatusOK}
}

func (svc *service) degraded(err error, teacher user.User) Dashboard {
	msg := fmt.Sprintf("building teacher dashboard: %v", err)
	if teacher.ID != "" {
		svc.logger.Error(msg, err, teacher)
	} else {
		svc.logger.Error(msg, err)
	}
	return Dashboard{StudentProgress: []StudentProgress{}, Status: StatusDegraded}
}

// filterSubjects keeps the records whose subject is in subjects.
func filterSubjects(progs []progress.Progress, subjects []core.Subject) []progress.Progress {
	out := make([]progress.Progress, 0, len(progs))
	for _, p := range progs {
		if core.ContainsSubject(subjects, p.Subject) {
			out = append(out, p)
		}
	}
	return out
}

// withProgress loads the progress of every student concurrently. A nil student (or a
// student whose load returned user.ErrNotFound) is dropped from the result; order is kept.
func (svc *service) withProgress(
	ctx context.Context,
	n int,
	student func(ctx context.Context, i int) (*user.User, error),
	subjects []core.Subject,
) ([]StudentProgress, error) {
	rows := make([]*StudentProgress, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("panic: %v", r)
				}
			}()
			st, err := student(gctx, i)
			if err != nil {
				return err
			}
			if st == nil {
				return nil
			}
			progs, err := svc.progRepo.ListByUser(gctx, st.ID)
			if err != nil {
				return errors.Wrap(err, "listing progress")
			}
			rows[i] = &StudentProgress{Student: *st, Progress: filterSubjects(progs, subjects)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]StudentProgress, 0, n)
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (svc *service) fromLinks(ctx context.Context, teacher user.User, subjects []core.Subject) ([]StudentProgress, error) {
	links, err := svc.links.ListByTeacher(ctx, teacher.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing links")
	}
	return svc.withProgress(ctx, len(links), func(ctx context.Context, i int) (*user.User, error) {
		st, err := svc.usrRepo.GetByID(ctx, links[i].StudentID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return nil, nil
			}
			return nil, errors.Wrap(err, "getting linked student")
		}
		return &st, nil
	}, subjects)
}

func (svc *service) fromGrade(ctx context.Context, teacher user.User, subjects []core.Subject) ([]StudentProgress, error) {
	students, err := svc.usrRepo.QueryByRoleAndGrade(ctx, user.RoleStudent, teacher.Grade)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return svc.withProgress(ctx, len(students), func(_ context.Context, i int) (*user.User, error) {
		return &students[i], nil
	}, subjects)
}

// fromSubjects rebuilds the student list from the progress recorded in the teacher's subjects,
// keeping owners whose current grade is the teacher's. Rows owned by the teacher are skipped;
// teachers never record progress, so this only guards against stray records.
func (svc *service) fromSubjects(ctx context.Context, teacher user.User, subjects []core.Subject) ([]StudentProgress, error) {
	type owner struct {
		usr   user.User
		found bool
	}
	owners := make(map[string]owner)
	index := make(map[string]int) // user ID -> position in rows
	rows := make([]StudentProgress, 0)

	for _, subj := range subjects {
		progs, err := svc.progRepo.ListBySubject(ctx, subj)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s progress", subj)
		}
		for _, prog := range progs {
			o, seen := owners[prog.UserID]
			if !seen {
				usr, err := svc.usrRepo.GetByID(ctx, prog.UserID)
				switch {
				case err == nil:
					o = owner{usr: usr, found: true}
				case errors.Cause(err) == user.ErrNotFound:
					o = owner{}
				default:
					return nil, errors.Wrap(err, "getting progress owner")
				}
				owners[prog.UserID] = o
			}
			if !o.found || o.usr.Grade != teacher.Grade || o.usr.ID == teacher.ID {
				continue
			}

			i, ok := index[prog.UserID]
			if !ok {
				i = len(rows)
				index[prog.UserID] = i
				rows = append(rows, StudentProgress{Student: o.usr, Progress: []progress.Progress{}})
			}
			rows[i].Progress = append(rows[i].Progress, prog)
		}
	}
	return rows, nil
}
