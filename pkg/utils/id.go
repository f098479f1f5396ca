package utils

import "github.com/google/uuid"

// GenerateID returns a random UUID, optionally namespaced as "<prefix>_<uuid>".
func GenerateID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
