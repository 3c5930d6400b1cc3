package graph_test

import (
	"testing"

	"cargohold/testutil"
)

func TestGraphContractHasNoInternalImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "pkg/graph is the public data source contract")
}
