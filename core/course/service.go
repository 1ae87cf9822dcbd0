package course

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("course not found")
	ErrNotTeacher = errors.New("only teachers can open courses")
)

type (
	// Repository persists courses in the `courses` collection.
	// Failures other than a missing document are reported as *core.StoreError.
	Repository interface {
		InsertCourse(ctx context.Context, c Course) error
		GetCourse(ctx context.Context, id string) (Course, error)
		// QueryCoursesByTeacher returns the courses whose teacherId is teacherID, in no particular order.
		QueryCoursesByTeacher(ctx context.Context, teacherID string) ([]Course, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// AddCourse opens a course taught by teacher, whose profile must hold the TEACHER role.
// Invalid input is reported as validator.ValidationErrors.
func (svc *Service) AddCourse(ctx context.Context, teacher user.Profile, nc NewCourse) (Course, error) {
	if !teacher.IsTeacher() {
		return Course{}, errors.Wrapf(ErrNotTeacher, "%s is %s", teacher.ID, teacher.Role)
	}
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, err
	}
	if nc.MaxStudents == 0 {
		nc.MaxStudents = DefaultMaxStudents
	}

	c := Course{
		ID:          uuid.New().String(),
		Name:        nc.Name,
		Description: nc.Description,
		TeacherID:   teacher.ID,
		TeacherName: teacher.Name,
		CreatedAt:   core.NowMillis(),
		MaxStudents: nc.MaxStudents,
	}
	if err := svc.repo.InsertCourse(ctx, c); err != nil {
		return Course{}, errors.Wrap(err, "adding course")
	}
	return c, nil
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, errors.Wrap(err, "getting course")
	}
	return c, nil
}

// CoursesByTeacher returns the courses of teacherID, newest first.
func (svc *Service) CoursesByTeacher(ctx context.Context, teacherID string) ([]Course, error) {
	courses, err := svc.repo.QueryCoursesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	sort.SliceStable(courses, func(i, j int) bool {
		if courses[i].CreatedAt != courses[j].CreatedAt {
			return courses[i].CreatedAt > courses[j].CreatedAt
		}
		return courses[i].Name < courses[j].Name
	})
	return courses, nil
}
