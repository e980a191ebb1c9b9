package pgwatch

import (
	"encoding/json"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/receiptly/team-api/internal/access"
)

func TestClassifyStoreError(t *testing.T) {
	t.Parallel()

	t.Run("insufficient privilege maps to unauthorized", func(t *testing.T) {
		err := classifyStoreError(&pq.Error{Code: "42501", Message: "permission denied"})
		require.ErrorIs(t, err, access.ErrWatchUnauthorized)
	})

	t.Run("authentication failures map to unauthorized", func(t *testing.T) {
		err := classifyStoreError(&pq.Error{Code: "28P01", Message: "password authentication failed"})
		require.ErrorIs(t, err, access.ErrWatchUnauthorized)
	})

	t.Run("wrapped driver errors are still classified", func(t *testing.T) {
		err := classifyStoreError(errors.Wrap(&pq.Error{Code: "42501"}, "snapshot"))
		require.ErrorIs(t, err, access.ErrWatchUnauthorized)
	})

	t.Run("other errors pass through unchanged", func(t *testing.T) {
		cause := errors.New("connection refused")
		require.Equal(t, cause, classifyStoreError(cause))

		serialization := &pq.Error{Code: "40001"}
		require.Equal(t, error(serialization), classifyStoreError(serialization))
	})
}

func TestMemberEventPayload(t *testing.T) {
	t.Parallel()

	var payload memberEventPayload
	raw := `{"op":"delete","member_id":"7f3c6f1e-2f9e-4fd2-9a65-1bb0f1a54f10"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	require.Equal(t, "delete", payload.Op)
	require.Equal(t, "7f3c6f1e-2f9e-4fd2-9a65-1bb0f1a54f10", payload.MemberID)
}
