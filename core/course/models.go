package course

// DefaultMaxStudents is the capacity of a course created without one.
const DefaultMaxStudents = 40

// Course is a class taught by one teacher, stored at `courses/{id}`.
type Course struct {
	ID              string `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	Description     string `json:"description" db:"description"`
	TeacherID       string `json:"teacherId" db:"teacher_id"`
	TeacherName     string `json:"teacherName" db:"teacher_name"`
	CreatedAt       int64  `json:"createdAt" db:"created_at"` // epoch millis
	MaxStudents     int    `json:"maxStudents" db:"max_students"`
	CurrentStudents int    `json:"currentStudents" db:"current_students"`
}

// NewCourse is what a teacher submits to open a course.
type NewCourse struct {
	Name        string `json:"name" validate:"notblank,max=120"`
	Description string `json:"description" validate:"max=2000"`
	MaxStudents int    `json:"maxStudents" validate:"omitempty,min=1,max=1000"`
}
