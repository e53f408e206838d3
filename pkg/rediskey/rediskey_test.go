package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildKeys(t *testing.T) {
	require.Equal(t, "progression:catalog:card-1", NamespaceKey(CatalogPrefix, "card-1"))
	require.Equal(t, "progression:catalog:version", BuildCatalogVersionKey())
}
