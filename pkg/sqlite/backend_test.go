package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/recopy/internal/fixture"
	"github.com/mesh-intelligence/recopy/pkg/deepcopy"
	"github.com/mesh-intelligence/recopy/pkg/sqlite"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

func TestNewBackend_CopiesQuoteToInvoice(t *testing.T) {
	ctx := context.Background()
	reg := fixture.QuoteInvoice()
	backend := sqlite.NewBackend(reg, zaptest.NewLogger(t))
	require.NoError(t, backend.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { backend.Detach() })

	quote, err := reg.Model(fixture.Quote)
	require.NoError(t, err)
	invoice, err := reg.Model(fixture.Invoice)
	require.NoError(t, err)

	src, err := types.InsertGraph(ctx, backend, quote, fixture.QuoteData("Q-1",
		fixture.Line("tools", 5, 10), fixture.Line("paint", 2, 20)))
	require.NoError(t, err)

	out, err := deepcopy.NewSession(backend).From(src).To(invoice).With(fixture.Lines).Copy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, 108.9, out.Get("total"))

	assert.ErrorIs(t, backend.Attach(types.Config{Backend: types.BackendSQLite}), types.ErrAlreadyAttached)
}
