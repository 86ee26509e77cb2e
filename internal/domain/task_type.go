package domain

// TaskType is one of a fixed set of task categories.
type TaskType string

// Known task types.
const (
	TaskTypeChore    TaskType = "chore"
	TaskTypeProject  TaskType = "project"
	TaskTypeLearning TaskType = "learning"
	TaskTypeBonus    TaskType = "bonus"
)

// taskTypeConfig holds the point defaults for a category.
type taskTypeConfig struct {
	defaultPoints int
	maxPoints     int
}

var taskTypes = map[TaskType]taskTypeConfig{
	TaskTypeChore:    {defaultPoints: 25, maxPoints: 75},
	TaskTypeProject:  {defaultPoints: 50, maxPoints: 100},
	TaskTypeLearning: {defaultPoints: 30, maxPoints: 80},
	TaskTypeBonus:    {defaultPoints: 40, maxPoints: 120},
}

// TaskTypes lists every known type in a stable order.
func TaskTypes() []TaskType {
	return []TaskType{TaskTypeChore, TaskTypeProject, TaskTypeLearning, TaskTypeBonus}
}

// IsValid reports whether tt is a known type.
func (tt TaskType) IsValid() bool {
	_, ok := taskTypes[tt]
	return ok
}

// DefaultPoints is used when a task is created without explicit points.
func (tt TaskType) DefaultPoints() int {
	return taskTypes[tt].defaultPoints
}

// MaxPoints is the largest points value a task of this type may carry.
func (tt TaskType) MaxPoints() int {
	return taskTypes[tt].maxPoints
}
