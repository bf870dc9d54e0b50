package operation_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/store"
)

// --- Builder Tests ---

func TestBuilders(t *testing.T) {
	tests := []struct {
		name    string
		op      operation.Operation
		command operation.Command
		path    []string
		args    map[string]any
	}{
		{
			"set root",
			operation.Set(store.KindBlock, "b1", nil, map[string]any{"type": "header"}),
			operation.CommandSet, []string{}, map[string]any{"type": "header"},
		},
		{
			"update field",
			operation.Update(store.KindUserSettings, "u1", []string{"settings"}, map[string]any{"locale": "en"}),
			operation.CommandUpdate, []string{"settings"}, map[string]any{"locale": "en"},
		},
		{
			"list before",
			operation.ListBefore(store.KindBlock, "p1", store.SlotContent, "b2", "b1"),
			operation.CommandListBefore, []string{"content"}, map[string]any{"before": "b1", "id": "b2"},
		},
		{
			"list after",
			operation.ListAfter(store.KindSpace, "s1", store.SlotPages, "p1", ""),
			operation.CommandListAfter, []string{"pages"}, map[string]any{"after": "", "id": "p1"},
		},
		{
			"list remove",
			operation.ListRemove(store.KindBlock, "p1", store.SlotContent, "b1"),
			operation.CommandListRemove, []string{"content"}, map[string]any{"id": "b1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.command, tt.op.Command)
			assert.Equal(t, tt.path, tt.op.Path)
			assert.Equal(t, tt.args, tt.op.Args)
		})
	}
}

func TestOperation_JSON(t *testing.T) {
	op := operation.ListAfter(store.KindSpace, "s1", store.SlotPages, "p1", "")
	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{"table":"space","id":"s1","path":["pages"],"command":"listAfter","args":{"after":"","id":"p1"}}`, string(data))

	root := operation.Update(store.KindBlock, "b1", nil, map[string]any{})
	data, err = json.Marshal(root)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"path":[]`)
}

func TestOperation_IsList(t *testing.T) {
	assert.True(t, operation.ListRemove(store.KindBlock, "p", "content", "c").IsList())
	assert.False(t, operation.Update(store.KindBlock, "p", nil, nil).IsList())
	assert.Equal(t, store.Pointer{ID: "p", Kind: store.KindBlock}, operation.Set(store.KindBlock, "p", nil, nil).Pointer())
}

func TestCompact(t *testing.T) {
	ops := []operation.Operation{
		operation.Update(store.KindBlock, "a", nil, map[string]any{}),
		operation.Update(store.KindBlock, "b", nil, map[string]any{"x": 1}),
		operation.Set(store.KindBlock, "c", nil, nil),
		operation.ListRemove(store.KindBlock, "p", store.SlotContent, "b"),
	}
	out := operation.Compact(ops)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, operation.CommandListRemove, out[1].Command)
	assert.Len(t, ops, 4, "input is not modified")
}

func TestAffected(t *testing.T) {
	ops := []operation.Operation{
		operation.Update(store.KindBlock, "b", nil, map[string]any{"x": 1}),
		operation.Update(store.KindBlock, "p", nil, map[string]any{"x": 1}),
		operation.ListRemove(store.KindBlock, "p", store.SlotContent, "b"),
		operation.Update(store.KindSpace, "p", nil, map[string]any{"x": 1}),
	}
	assert.Equal(t, []store.Pointer{
		{ID: "b", Kind: store.KindBlock},
		{ID: "p", Kind: store.KindBlock},
		{ID: "p", Kind: store.KindSpace},
	}, operation.Affected(ops))
	assert.Empty(t, operation.Affected(nil))
}

// --- Interpreter Tests ---

func TestApplyList(t *testing.T) {
	tests := []struct {
		name string
		arr  []string
		op   operation.Operation
		want []string
	}{
		{"after anchor", []string{"a", "b"}, operation.ListAfter("", "", "", "x", "a"), []string{"a", "x", "b"}},
		{"after empty", []string{"a", "b"}, operation.ListAfter("", "", "", "x", ""), []string{"a", "b", "x"}},
		{"after missing", []string{"a"}, operation.ListAfter("", "", "", "x", "q"), []string{"a", "x"}},
		{"before anchor", []string{"a", "b"}, operation.ListBefore("", "", "", "x", "b"), []string{"a", "x", "b"}},
		{"before empty", []string{"a", "b"}, operation.ListBefore("", "", "", "x", ""), []string{"x", "a", "b"}},
		{"move", []string{"x", "a", "b"}, operation.ListAfter("", "", "", "x", "b"), []string{"a", "b", "x"}},
		{"remove", []string{"a", "b"}, operation.ListRemove("", "", "", "a"), []string{"b"}},
		{"remove absent", []string{"a"}, operation.ListRemove("", "", "", "z"), []string{"a"}},
		{"into nil", nil, operation.ListAfter("", "", "", "x", ""), []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := operation.ApplyList(tt.arr, tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyList_Errors(t *testing.T) {
	_, err := operation.ApplyList([]string{"a"}, operation.ListAfter("", "", "", "", "a"))
	assert.Error(t, err)

	_, err = operation.ApplyList([]string{"a"}, operation.Operation{Command: operation.CommandSet, Args: map[string]any{"id": "a"}})
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	t.Run("update root merges top-level keys", func(t *testing.T) {
		rec := &store.Record{ID: "b1", Alive: true, Type: "text", Version: 2}
		err := operation.Apply(rec, operation.Update(store.KindBlock, "b1", nil, map[string]any{"alive": false}))
		require.NoError(t, err)
		assert.False(t, rec.Alive)
		assert.Equal(t, "text", rec.Type)
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("set root replaces the record", func(t *testing.T) {
		rec := &store.Record{ID: "b1", Type: "text", Content: []string{"a"}}
		err := operation.Apply(rec, operation.Set(store.KindBlock, "b1", nil, map[string]any{"type": "header"}))
		require.NoError(t, err)
		assert.Equal(t, "header", rec.Type)
		assert.Empty(t, rec.Content)
		assert.True(t, rec.Alive)
		assert.Equal(t, "b1", rec.ID)
	})

	t.Run("list op on slot", func(t *testing.T) {
		rec := &store.Record{ID: "s1", Pages: []string{"p1"}}
		err := operation.Apply(rec, operation.ListBefore(store.KindSpace, "s1", store.SlotPages, "p2", "p1"))
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p1"}, rec.Pages)
	})

	t.Run("list op on non-slot", func(t *testing.T) {
		rec := &store.Record{ID: "s1"}
		err := operation.Apply(rec, operation.ListAfter(store.KindSpace, "s1", "permissions", "u", ""))
		assert.ErrorIs(t, err, operation.ErrUnsupportedPath)
	})

	t.Run("update field merges into map", func(t *testing.T) {
		rec := &store.Record{ID: "u1", Settings: map[string]any{"locale": "en", "tz": "UTC"}}
		err := operation.Apply(rec, operation.Update(store.KindUserSettings, "u1", []string{"settings"}, map[string]any{"locale": "fr"}))
		require.NoError(t, err)
		assert.Equal(t, "fr", rec.Settings["locale"])
		assert.Equal(t, "UTC", rec.Settings["tz"])
	})

	t.Run("set field replaces map", func(t *testing.T) {
		rec := &store.Record{ID: "v1", Format: map[string]any{"a": "1"}}
		err := operation.Apply(rec, operation.Set(store.KindCollectionView, "v1", []string{"format"}, map[string]any{"b": "2"}))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"b": "2"}, rec.Format)
	})

	t.Run("nested path", func(t *testing.T) {
		rec := &store.Record{ID: "v1"}
		err := operation.Apply(rec, operation.Set(store.KindCollectionView, "v1", []string{"format", "table_wrap"}, map[string]any{}))
		assert.ErrorIs(t, err, operation.ErrUnsupportedPath)
	})
}
