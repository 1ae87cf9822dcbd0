package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/course"
)

const courseColumns = "id, name, description, teacher_id, teacher_name, created_at, max_students, current_students"

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db core.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) InsertCourse(ctx context.Context, c course.Course) error {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO courses (`+courseColumns+`)
		VALUES (:id, :name, :description, :teacher_id, :teacher_name, :created_at, :max_students, :current_students)`, c)
	return core.NewStoreError("inserting course", err)
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	if err := repo.db.GetContext(ctx, &c, "SELECT "+courseColumns+" FROM courses WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, core.NewStoreError("getting course", err)
	}
	return c, nil
}

func (repo *courseRepository) QueryCoursesByTeacher(ctx context.Context, teacherID string) ([]course.Course, error) {
	courses := make([]course.Course, 0)
	q := "SELECT " + courseColumns + " FROM courses WHERE teacher_id = $1"
	if err := repo.db.SelectContext(ctx, &courses, q, teacherID); err != nil {
		return nil, core.NewStoreError("querying courses", err)
	}
	return courses, nil
}
