package mysql

import (
	"os"
	"testing"

	"github.com/formflow/formflow/subsystem/schema/storage"
	"github.com/formflow/formflow/subsystem/schema/storage/test"

	_ "github.com/go-sql-driver/mysql"
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

	test.TestSchemaStorage(t, func() storage.Storage { return s })
}
