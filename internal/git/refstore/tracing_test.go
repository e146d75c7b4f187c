package refstore

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
	"gitlab.com/gitlab-org/gitaly-refs/internal/testhelper"
)

func TestTransaction_tracing(t *testing.T) {
	tracer := mocktracer.New()
	previous := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() { opentracing.SetGlobalTracer(previous) })

	ctx, cancel := testhelper.Context()
	defer cancel()

	store := setupStore(t)

	tx := store.Transaction([]git.RefEdit{
		git.NewUpdateEdit("refs/heads/main", git.NewPeeledTarget(oidX)),
		git.NewUpdateEdit("refs/heads/feature", git.NewPeeledTarget(oidY)),
	}, safe.FailImmediately())

	_, err := tx.Commit(ctx)
	require.NoError(t, err)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)

	require.Equal(t, "refstore.Transaction.Prepare", spans[0].OperationName)
	require.Equal(t, 2, spans[0].Tag("edits"))
	require.Equal(t, tx.ID(), spans[0].Tag("transaction_id"))

	require.Equal(t, "refstore.Transaction.Commit", spans[1].OperationName)
	require.Equal(t, tx.ID(), spans[1].Tag("transaction_id"))
}
