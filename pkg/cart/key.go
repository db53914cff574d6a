package cart

import "strings"

const (
	anonymousKey  = "cart"
	userKeyPrefix = "cart_"
)

// StorageKey derives the storage key for a cart: cart_<userID>, or cart when
// nobody is signed in.
func StorageKey(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return anonymousKey
	}
	return userKeyPrefix + userID
}
