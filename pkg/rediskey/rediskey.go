package rediskey

import "fmt"

// Job keys
const (
	JobPrefix = "job"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildJobKey returns "job:{jobID}"
func BuildJobKey(jobID string) string {
	return NamespaceKey(JobPrefix, jobID)
}
