package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobSnapshotKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func SelectionKey(projectID uuid.UUID, queryHash string) string {
	return fmt.Sprintf("selection:%s:%s", projectID, queryHash)
}

func ReadinessKey(projectID uuid.UUID) string {
	return fmt.Sprintf("readiness:%s", projectID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
