package inmemdb

import (
	"context"

	"github.com/trezcool/companion/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) InsertCourse(_ context.Context, c course.Course) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.courses[c.ID] = c
	return nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCoursesByTeacher(_ context.Context, teacherID string) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if c.TeacherID == teacherID {
			courses = append(courses, c)
		}
	}
	return courses, nil
}
