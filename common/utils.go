package common

import (
	uuid "github.com/nu7hatch/gouuid"
)

// GenUUID returns a random uuid string, used to name staged files.
func GenUUID() string {
	// uuid.NewV4() only fails if crypto/rand does, so keep trying.
	for {
		if id, err := uuid.NewV4(); err == nil {
			return id.String()
		}
	}
}
