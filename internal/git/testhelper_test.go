package git

import (
	"testing"

	"gitlab.com/gitlab-org/gitaly-refs/internal/testhelper"
)

func TestMain(m *testing.M) {
	testhelper.Run(m)
}
