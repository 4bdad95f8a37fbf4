package mysql

import (
	"os"
	"testing"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/engine/storage/test"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("FORMFLOW_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("FORMFLOW_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	// the suite generates unique IDs so an existing, schema-loaded
	// database can be reused between runs.
	test.TestEngineStorage(t, func() storage.AllStorage { return s })
}
