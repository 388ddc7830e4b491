package domain

import (
	"fmt"
	"strings"
)

// StoredAvatarPrefix marks avatar values that point into object storage.
const StoredAvatarPrefix = "avatars/"

var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// AvatarExtension returns the file extension for an accepted avatar content
// type. Only jpeg, png and webp are accepted.
func AvatarExtension(contentType string) (string, bool) {
	ext, ok := avatarExtensions[contentType]
	return ext, ok
}

// AvatarKeyPrefix is the object storage prefix reserved for one client's
// avatars.
func AvatarKeyPrefix(ownerID, clientID int64) string {
	return fmt.Sprintf("%s%d/%d/", StoredAvatarPrefix, ownerID, clientID)
}

// IsStoredAvatar reports whether avatar is an object storage key.
func IsStoredAvatar(avatar string) bool {
	return strings.HasPrefix(avatar, StoredAvatarPrefix)
}

// OwnsAvatarKey reports whether key lies under the client's own prefix.
func OwnsAvatarKey(ownerID, clientID int64, key string) bool {
	prefix := AvatarKeyPrefix(ownerID, clientID)
	return strings.HasPrefix(key, prefix) && len(key) > len(prefix) && !strings.Contains(key[len(prefix):], "/")
}
