package taskname

const (
	// Job tasks
	JobSubmit = "job:submit"
)
