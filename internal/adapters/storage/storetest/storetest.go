// Package storetest holds the behavior every domain.HistoryStore must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

// Run exercises s, whose provisioned table is table. s must be empty.
func Run(t *testing.T, table string, s domain.HistoryStore) {
	t.Helper()

	t.Run("unwritten session is absent", func(t *testing.T) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			blob, found, err := s.GetHistory(ctx, "never-written")
			require.NoError(t, err)
			require.False(t, found)
			require.Empty(t, blob)
		}
	})

	t.Run("round trip keeps order and text", func(t *testing.T) {
		ctx := context.Background()
		records := []domain.HistoryRecord{
			domain.NewHistoryRecord(domain.RoleUser, "hello"),
			domain.NewHistoryRecord(domain.RoleModel, "Hi there"),
			domain.NewHistoryRecord(domain.RoleUser, `quote " and \ backslash`),
			domain.NewHistoryRecord(domain.RoleModel, "ünïcødé ✓"),
		}
		blob, err := domain.EncodeHistory(records)
		require.NoError(t, err)

		stored, err := s.PutHistory(ctx, "round-trip", blob)
		require.NoError(t, err)
		require.Equal(t, blob, stored)

		got, found, err := s.GetHistory(ctx, "round-trip")
		require.NoError(t, err)
		require.True(t, found)

		decoded, err := domain.DecodeHistory(got)
		require.NoError(t, err)
		require.Equal(t, records, decoded)
	})

	t.Run("put replaces the whole value", func(t *testing.T) {
		ctx := context.Background()
		_, err := s.PutHistory(ctx, "replace", `[{"role":"user","parts":"one"},{"role":"model","parts":"two"}]`)
		require.NoError(t, err)

		next := `[{"role":"user","parts":"three"}]`
		_, err = s.PutHistory(ctx, "replace", next)
		require.NoError(t, err)

		got, found, err := s.GetHistory(ctx, "replace")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, next, got)
	})

	t.Run("sessions are independent", func(t *testing.T) {
		ctx := context.Background()
		_, err := s.PutHistory(ctx, "a", `[{"role":"user","parts":"a"}]`)
		require.NoError(t, err)
		_, err = s.PutHistory(ctx, "b", `[{"role":"user","parts":"b"}]`)
		require.NoError(t, err)

		got, _, err := s.GetHistory(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, `[{"role":"user","parts":"a"}]`, got)
	})

	t.Run("configured table is described", func(t *testing.T) {
		st, err := s.DescribeTable(context.Background(), table)
		require.NoError(t, err)
		require.True(t, st.Found)
		require.NotEmpty(t, st.Status)
		require.Equal(t, table, st.Table)
	})
}
