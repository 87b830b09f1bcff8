package resolver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	Name  string
	email string
	Tags  map[string]string
}

func (a author) Initials() string { return a.Name[:1] }

func (a *author) Email() (string, error) {
	if a.email == "" {
		return "", errors.New("email hidden")
	}
	return a.email, nil
}

type label string

func TestProject(t *testing.T) {
	a := &author{Name: "Frank", email: "f@example.com"}

	cases := []struct {
		name   string
		source any
		field  string
		want   any
	}{
		{"nil source", nil, "x", nil},
		{"map key", map[string]any{"x": 1}, "x", 1},
		{"missing map key", map[string]any{}, "x", nil},
		{"typed map", map[string]string{"x": "y"}, "x", "y"},
		{"named key type", map[label]int{"k": 5}, "k", 5},
		{"struct field by name", author{Name: "Frank"}, "name", "Frank"},
		{"pointer struct field", a, "name", "Frank"},
		{"value method", a, "initials", "F"},
		{"pointer method with error", a, "email", "f@example.com"},
		{"nil pointer", (*author)(nil), "name", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Project(tc.source, tc.field)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Project(&author{Name: "x"}, "email")
	assert.EqualError(t, err, "email hidden")

	_, err = Project(author{Name: "x"}, "missing")
	assert.Error(t, err)

	_, err = Project(42, "x")
	assert.Error(t, err)
}

func TestProjectJSONTags(t *testing.T) {
	type row struct {
		ID      int    `json:"id"`
		Renamed string `json:"alias,omitempty"`
		Hidden  string `json:"-"`
	}
	r := row{ID: 7, Renamed: "a", Hidden: "h"}

	v, err := Project(r, "id")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = Project(r, "alias")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = Project(r, "renamed")
	assert.Error(t, err, "a tagged field is only reachable by its tag")

	_, err = Project(r, "hidden")
	assert.Error(t, err)
}

func TestTypename(t *testing.T) {
	name, err := Typename(map[string]any{"__typename": "Dog"})
	require.NoError(t, err)
	assert.Equal(t, "Dog", name)

	name, err = Typename(&Book{})
	require.NoError(t, err)
	assert.Equal(t, "Book", name)

	name, err = Typename(author{})
	require.NoError(t, err)
	assert.Equal(t, "author", name)

	_, err = Typename(map[string]any{})
	assert.Error(t, err)
	_, err = Typename(nil)
	assert.Error(t, err)
	_, err = Typename(3)
	assert.Error(t, err)
}

func TestSerializeLeafValue(t *testing.T) {
	sch := mustSchema(t)
	reg := New(WithWorkers(1))
	t.Cleanup(reg.Close)
	reg.Scalar("Money", func(v any) (any, error) { return v.(int) * 100, nil })
	require.NoError(t, reg.Bind(sch))
	ctx := context.Background()

	ok := []struct {
		typ  string
		in   any
		want any
	}{
		{"Int", int64(5), 5},
		{"Int", float64(3), 3},
		{"Int", uint8(9), 9},
		{"Float", 2, float64(2)},
		{"Float", float32(1.5), 1.5},
		{"String", "s", "s"},
		{"String", label("l"), "l"},
		{"String", []byte("hi"), "aGk="},
		{"String", 12, "12"},
		{"Boolean", true, true},
		{"ID", 42, "42"},
		{"ID", "abc", "abc"},
		{"Kind", "NOVEL", "NOVEL"},
		{"Money", 3, 300},
	}
	for _, tc := range ok {
		got, err := reg.SerializeLeafValue(ctx, tc.typ, tc.in)
		require.NoError(t, err, "%s(%v)", tc.typ, tc.in)
		assert.Equal(t, tc.want, got, "%s(%v)", tc.typ, tc.in)
	}

	bad := []struct {
		typ string
		in  any
	}{
		{"Int", int64(math.MaxInt32) + 1},
		{"Int", 1.5},
		{"Int", "1"},
		{"Float", math.Inf(1)},
		{"Boolean", "true"},
		{"ID", 1.5},
		{"Kind", "POEM"},
		{"Kind", 1},
	}
	for _, tc := range bad {
		_, err := reg.SerializeLeafValue(ctx, tc.typ, tc.in)
		assert.Error(t, err, "%s(%v)", tc.typ, tc.in)
	}
}
