package adapters_test

import (
	"testing"

	"cargohold/testutil"
)

func TestAdaptersOnlyTalkToTheGraphContract(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.Any(testutil.EngineImportForbidden, testutil.ServiceImportForbidden),
		"the mapping layer depends on pkg/graph only")
}
