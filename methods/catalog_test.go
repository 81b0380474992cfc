package methods_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/finance-engine/methods"
)

func TestCatalog_Lookup(t *testing.T) {
	catalog := methods.NewCatalog()

	m, err := catalog.Lookup(methods.CodeBankTransfer)
	require.NoError(t, err)
	assert.Equal(t, "Bank Transfer", m.MethodName)

	_, err = catalog.Lookup("CHECK")
	assert.ErrorIs(t, err, methods.ErrUnknownMethod)
}

func TestCatalog_ReimbursementRestrictedToPayable(t *testing.T) {
	catalog := methods.NewCatalog()

	_, err := catalog.ValidateForFlow(methods.CodeReimbursement, methods.FlowPayable)
	assert.NoError(t, err)

	_, err = catalog.ValidateForFlow(methods.CodeReimbursement, methods.FlowReceivable)
	assert.ErrorIs(t, err, methods.ErrMethodNotAllowed)

	// Everything else is valid on both sides.
	for _, code := range []string{methods.CodeCash, methods.CodeBankTransfer, methods.CodeEWallet} {
		_, err := catalog.ValidateForFlow(code, methods.FlowReceivable)
		assert.NoError(t, err, code)
		_, err = catalog.ValidateForFlow(code, methods.FlowPayable)
		assert.NoError(t, err, code)
	}
}

func TestCachedCatalog_PopulatesAndServesFromCache(t *testing.T) {
	cache := methods.NewMemoryCache()
	cc := methods.NewCachedCatalog(cache, time.Minute)
	ctx := context.Background()

	first := cc.All(ctx)
	require.Len(t, first, 4)

	// Second read hits the cache and returns the same set.
	second := cc.All(ctx)
	assert.Equal(t, first, second)
}
