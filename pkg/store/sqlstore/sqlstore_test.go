package sqlstore_test

import (
	"testing"

	"github.com/fluxcd/circles/pkg/store"
	"github.com/fluxcd/circles/pkg/store/sqlstore"
	"github.com/fluxcd/circles/pkg/store/storetest"
)

func TestDatabaseStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return sqlstore.OpenTestDB(t)
	})
}
