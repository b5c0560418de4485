package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var runIDRegex = regexp.MustCompile(`^run_[0-9]{10}_[0-9a-f]{8}$`)

// GenerateRunID returns an id of the form run_<unix seconds>_<8 hex>.
func GenerateRunID() string {
	return generateRunID(time.Now(), uuid.New())
}

func generateRunID(now time.Time, u uuid.UUID) string {
	hex := strings.ReplaceAll(u.String(), "-", "")
	return fmt.Sprintf("run_%010d_%s", now.Unix(), hex[:8])
}

// ValidateRunID reports whether id has the run id shape.
func ValidateRunID(id string) bool {
	return runIDRegex.MatchString(id)
}
