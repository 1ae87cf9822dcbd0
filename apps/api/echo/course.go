package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/course"
	"github.com/trezcool/companion/core/user"
)

type courseApi struct {
	courses  *course.Service
	profiles *user.Service
	logger   core.Logger
}

func registerCourseAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := courseApi{
		courses:  deps.Courses,
		profiles: deps.Profiles,
		logger:   deps.Logger,
	}

	cg := g.Group("/courses", append(auth.middleware(), teacherMiddleware())...)
	cg.POST("", api.create)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
}

// Handlers

// create opens a course taught by the caller. The teacher name comes from the stored profile.
func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	teacher, err := api.profiles.GetProfile(c, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting teacher profile")
	}
	created, err := api.courses.AddCourse(c, teacher, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, created)
}

// query lists the caller's courses, newest first.
func (api *courseApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	courses, err := api.courses.CoursesByTeacher(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

// retrieve hides the courses of other teachers.
func (api *courseApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	c, err := api.courses.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if c.TeacherID != claims.Subject {
		return errors.Wrapf(course.ErrNotFound, "course %s of %s", c.ID, c.TeacherID)
	}
	return ctx.JSON(http.StatusOK, c)
}
