// Package info carries build metadata injected by -ldflags and the id of this running instance.
package info

import (
	"fmt"

	"github.com/google/uuid"
)

var (
	Version    = "0.0.0"
	GitRev     = "000000"
	BuildTime  = "2000-01-01_00:00:00"
	InstanceID = uuid.New().String()
)

// String is what `-app version` prints
func String() string {
	return fmt.Sprintf("peachcash %s (rev %s, built %s) instance %s", Version, GitRev, BuildTime, InstanceID)
}
