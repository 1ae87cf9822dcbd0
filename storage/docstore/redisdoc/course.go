package redisdoc

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/course"
)

const coursesCollection = "courses"

// teacherIndex is the set of the course ids taught by teacherID.
func teacherIndex(teacherID string) string {
	return coursesCollection + ":teacher/" + teacherID
}

type courseRepository struct {
	client *redis.Client
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(client *redis.Client) course.Repository {
	return &courseRepository{client: client}
}

func (repo *courseRepository) InsertCourse(ctx context.Context, c course.Course) error {
	_, err := repo.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := putDoc(ctx, pipe, coursesCollection, c.ID, c); err != nil {
			return err
		}
		pipe.SAdd(ctx, teacherIndex(c.TeacherID), c.ID)
		return nil
	})
	return core.NewStoreError("inserting course", err)
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	found, err := getDoc(ctx, repo.client, docKey(coursesCollection, id), &c)
	if err != nil {
		return course.Course{}, core.NewStoreError("getting course", err)
	}
	if !found {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func (repo *courseRepository) QueryCoursesByTeacher(ctx context.Context, teacherID string) ([]course.Course, error) {
	courses := make([]course.Course, 0)
	err := queryIndex(ctx, repo.client, teacherIndex(teacherID), coursesCollection, func(data []byte) error {
		var c course.Course
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		courses = append(courses, c)
		return nil
	})
	if err != nil {
		return nil, core.NewStoreError("querying courses", err)
	}
	return courses, nil
}
