package typemap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfury/graphport/api/schemas"
)

// -- Widening Tests --

func TestObserveWidening(t *testing.T) {
	cases := []struct {
		name   string
		values []any
		want   PropKind
	}{
		{"single value keeps its kind", []any{int32(1)}, PropKind{Kind: Int32}},
		{"int32 meets int64", []any{int32(1), int64(2)}, PropKind{Kind: Int64}},
		{"int64 meets float64", []any{int64(1), float64(2)}, PropKind{Kind: Int64}},
		{"float32 meets float64", []any{float32(1), float64(2)}, PropKind{Kind: Float64}},
		{"int32 meets float32", []any{int32(1), float32(2)}, PropKind{Kind: Int32}},
		{"int16 meets int8", []any{int16(1), int8(2)}, PropKind{Kind: Int16}},
		{"int meets int32 resolves through the table", []any{int(1), int32(2)}, PropKind{Kind: Int32}},
		{"uint64 meets int32 resolves through the table", []any{uint64(1), int32(2)}, PropKind{Kind: Int32}},
		{"numeric meets string", []any{int32(1), "x"}, PropKind{Kind: Hetero}},
		{"bool meets numeric", []any{true, int64(1)}, PropKind{Kind: Hetero}},
		{"scalar meets slice", []any{int64(1), []int64{2}}, PropKind{Kind: Hetero}},
		{"slices of different kinds", []any{[]int64{1}, []string{"a"}}, PropKind{Kind: Hetero}},
		{"equal slices stay typed", []any{[]int64{1}, []int64{2, 3}}, PropKind{Kind: Int64, Slice: true}},
		{"unknown type is heterogeneous", []any{struct{}{}}, PropKind{Kind: Hetero}},
		{"heterogeneous absorbs later numerics", []any{int32(1), "x", int64(2), float64(3)}, PropKind{Kind: Hetero}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			for _, v := range tc.values {
				require.NoError(t, m.Observe("k", v))
			}
			got, ok := m.Kind("k")
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

// TestWideningIsOrderIndependent feeds every permutation of a numeric value
// set and checks the reconciled kind never depends on scan order.
func TestWideningIsOrderIndependent(t *testing.T) {
	values := []any{int8(1), float32(2), int32(3), float64(4)}

	var result *Kind
	for _, perm := range permutations(len(values)) {
		m := New()
		for _, idx := range perm {
			require.NoError(t, m.Observe("k", values[idx]))
		}
		got, ok := m.Kind("k")
		require.True(t, ok)
		if result == nil {
			result = &got.Kind
			continue
		}
		assert.Equal(t, *result, got.Kind, "permutation %v changed the outcome", perm)
	}
	require.NotNil(t, result)
	assert.Equal(t, Float64, *result)
}

// permutations returns every ordering of the indices 0..n-1.
func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, sub := range permutations(n - 1) {
		for pos := 0; pos <= len(sub); pos++ {
			perm := make([]int, 0, n)
			perm = append(perm, sub[:pos]...)
			perm = append(perm, n-1)
			perm = append(perm, sub[pos:]...)
			out = append(out, perm)
		}
	}
	return out
}

func TestObserveUnsupportedNumericCollision(t *testing.T) {
	m := New()
	require.NoError(t, m.Observe("k", uint64(1)))

	err := m.Observe("k", uint32(2))
	require.Error(t, err)

	var unsupported *UnsupportedNumericError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, Uint64, unsupported.Recorded)
	assert.Equal(t, Uint32, unsupported.Observed)
	assert.Contains(t, err.Error(), `property "k"`)
}

func TestObserveKeysAreIndependent(t *testing.T) {
	m := New()
	require.NoError(t, m.Observe("a", int32(1)))
	require.NoError(t, m.Observe("b", "x"))
	require.NoError(t, m.Observe("a", int64(2)))

	a, _ := m.Kind("a")
	b, _ := m.Kind("b")
	assert.Equal(t, PropKind{Kind: Int64}, a)
	assert.Equal(t, PropKind{Kind: String}, b)

	_, ok := m.Kind("never-seen")
	assert.False(t, ok)
}

// -- Scan Entry Point Tests --

func TestForNodes(t *testing.T) {
	nodes := []schemas.Node{
		{ID: 1, Props: schemas.Properties{"age": int32(40), "name": "ada"}},
		{ID: 2, Props: schemas.Properties{"age": int64(41), "name": "bob", "tags": []string{"x"}}},
	}

	m, err := ForNodes(nodes)
	require.NoError(t, err)

	age, _ := m.Kind("age")
	name, _ := m.Kind("name")
	tags, _ := m.Kind("tags")
	assert.Equal(t, PropKind{Kind: Int64}, age)
	assert.Equal(t, PropKind{Kind: String}, name)
	assert.Equal(t, PropKind{Kind: String, Slice: true}, tags)
	assert.Equal(t, []string{"age", "name", "tags"}, m.Keys())
	assert.Equal(t, 3, m.Len())
}

func TestForRelationships(t *testing.T) {
	rels := []schemas.Relationship{
		{ID: 1, Props: schemas.Properties{"weight": float64(0.5)}},
		{ID: 2, Props: schemas.Properties{"weight": "heavy"}},
	}

	m, err := ForRelationships(rels)
	require.NoError(t, err)

	weight, _ := m.Kind("weight")
	assert.Equal(t, PropKind{Kind: Hetero}, weight)
}

// -- Output Mapping Tests --

func TestTypeFor(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		allowed map[string]struct{}
		want    string
	}{
		{"bool", Bool, GraphMLAllowed, "boolean"},
		{"int32", Int32, GraphMLAllowed, "int"},
		{"int64", Int64, GraphMLAllowed, "long"},
		{"int maps to long", Int, GraphMLAllowed, "long"},
		{"float32", Float32, GraphMLAllowed, "float"},
		{"float64", Float64, GraphMLAllowed, "double"},
		{"string", String, GraphMLAllowed, "string"},
		{"int16 degrades to int", Int16, GraphMLAllowed, "int"},
		{"int8 degrades to int", Int8, GraphMLAllowed, "int"},
		{"uint32 degrades to int", Uint32, GraphMLAllowed, "int"},
		{"heterogeneous stays untyped", Hetero, GraphMLAllowed, ""},
		{"nil allow list passes names through", Int16, nil, "short"},
		{"bool with restrictive allow list stays untyped", Bool, map[string]struct{}{"string": {}}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TypeFor(tc.kind, tc.allowed))
		})
	}
}

func TestLabelsString(t *testing.T) {
	assert.Equal(t, "", LabelsString(schemas.Node{}))
	assert.Equal(t, ":Person", LabelsString(schemas.Node{Labels: []string{"Person"}}))
	assert.Equal(t, ":Person:Admin", LabelsString(schemas.Node{Labels: []string{"Person", "Admin"}}))
}
