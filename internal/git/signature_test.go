package git

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	when := time.Unix(1600000000, 500).In(time.FixedZone("", -(4*60+30)*60))

	signature := NewSignature(" Jane <Doe>\n", "<jane@example.com>", when)
	require.Equal(t, "Jane Doe", signature.Name)
	require.Equal(t, "jane@example.com", signature.Email)
	require.True(t, signature.When.Equal(when.Truncate(time.Second)))

	require.Equal(t, "Jane Doe <jane@example.com> 1600000000 -0430", signature.String())
}
