package mongo_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/store/mongo"
	"github.com/Nityam-7/TELSTAR/store/storetest"
)

// The suite needs a replica set for transactions, e.g.
// TELSTAR_MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0
func TestConformance(t *testing.T) {
	uri := os.Getenv("TELSTAR_MONGO_URI")
	if uri == "" {
		t.Skip("TELSTAR_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		dbName := "telstar_test_" + strings.ReplaceAll(id.NewCustomerID().String()[5:], "_", "")

		s, err := mongo.Open(ctx, uri, dbName)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		// Cleanups run last-registered first, so this runs after the suite
		// has closed s.
		t.Cleanup(func() {
			if dropper, err := mongo.Open(context.Background(), uri, dbName); err == nil {
				_ = dropper.Database().Drop(context.Background())
				_ = dropper.Close()
			}
		})
		return s
	})
}
