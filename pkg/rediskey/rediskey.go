package rediskey

import "fmt"

// Progression keys (global convention across services)
const (
	CatalogPrefix = "progression:catalog"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildCatalogVersionKey returns "progression:catalog:version"
func BuildCatalogVersionKey() string {
	return NamespaceKey(CatalogPrefix, "version")
}
