package route

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgedge/imgedge/pkg/origin"
	"github.com/imgedge/imgedge/pkg/response"
)

type stubBackend struct {
	name string
	kind string
}

func (s stubBackend) Name() string         { return s.name }
func (s stubBackend) Kind() string         { return s.kind }
func (s stubBackend) ShieldRegion() string { return "" }
func (s stubBackend) RequiresWrite() bool  { return false }
func (s stubBackend) Fetch(_ context.Context, _ *origin.Request) *response.Response {
	return response.NewNoContent(200)
}

func newTable(t *testing.T) *Table {
	transformed := stubBackend{name: "transformed", kind: origin.KindStore}
	compute := stubBackend{name: "compute", kind: origin.KindCompute}
	original := stubBackend{name: "original", kind: origin.KindStore}

	images := &Route{
		Name:          "images",
		Patterns:      []string{"/*.png", "/*.jpg", "/*.jpeg"},
		Origin:        origin.NewGroup("images", transformed, compute, []int{403, 500, 503, 504}),
		Transformable: true,
	}
	def := &Route{Name: "default", Origin: origin.NewGroup("default", original, nil, nil)}

	table, err := NewTable(def, images)
	require.Nil(t, err)
	return table
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		{"/*.jpg", "/cat.jpg", true},
		{"/*.jpg", "/img/2020/cat.jpg", true},
		{"/*.jpg", "/cat.jpeg", false},
		{"/*.jpg", "/cat.JPG", false},
		{"/*.jpg", "/cat.jpg.svg", false},
		{"*.png", "/a/b.png", true},
		{"img/*", "/img/cat.svg", true},
		{"img/*", "/static/img/cat.svg", false},
		{"/cat?.jpg", "/cat1.jpg", true},
		{"/cat?.jpg", "/cat12.jpg", false},
		{"/a+b(c).jpg", "/a+b(c).jpg", true},
		{"/a+b(c).jpg", "/aab(c).jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			m, err := CompilePattern(tt.pattern)
			require.Nil(t, err)
			assert.Equal(t, tt.match, m.MatchString(tt.path))
		})
	}

	_, err := CompilePattern("")
	assert.NotNil(t, err)
}

func TestTable_Match(t *testing.T) {
	table := newTable(t)

	for _, p := range []string{"/cat.jpg", "/cat.jpeg", "/a/b/c.png"} {
		r := table.Match(p)
		assert.Equal(t, "images", r.Name, p)
		assert.Equal(t, "transformed", r.Backends()[0].Name(), p)
		assert.Equal(t, "compute", r.Backends()[1].Name(), p)
	}

	for _, p := range []string{"/logo.svg", "/", "/index.html", "/cat.gif", "/cat.jpg/"} {
		r := table.Match(p)
		assert.Equal(t, "default", r.Name, p)
		assert.Len(t, r.Backends(), 1, p)
		assert.Equal(t, "original", r.Backends()[0].Name(), p)
	}
}

func TestTable_FirstMatch(t *testing.T) {
	compute := stubBackend{name: "compute", kind: origin.KindCompute}
	original := stubBackend{name: "original", kind: origin.KindStore}

	first := &Route{Name: "first", Patterns: []string{"/img/*"}, Origin: origin.NewGroup("first", original, nil, nil)}
	second := &Route{Name: "second", Patterns: []string{"/*.jpg"}, Origin: origin.NewGroup("second", compute, nil, nil)}
	def := &Route{Name: "default", Origin: origin.NewGroup("default", original, nil, nil)}

	table, err := NewTable(def, first, second)
	require.Nil(t, err)

	assert.Equal(t, "first", table.Match("/img/cat.jpg").Name)
	assert.Equal(t, "second", table.Match("/cat.jpg").Name)

	routes := table.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "default", routes[2].Name)
	assert.Equal(t, def, table.Default())
}

func TestNewTable_Invalid(t *testing.T) {
	original := stubBackend{name: "original", kind: origin.KindStore}
	group := origin.NewGroup("g", original, nil, nil)
	def := &Route{Name: "default", Origin: group}

	_, err := NewTable(nil)
	assert.NotNil(t, err)

	_, err = NewTable(&Route{Name: "default"})
	assert.NotNil(t, err, "default route without origin")

	_, err = NewTable(def, &Route{Name: "a", Origin: group})
	assert.NotNil(t, err, "route without patterns")

	_, err = NewTable(def, &Route{Name: "a", Patterns: []string{"/*.jpg"}})
	assert.NotNil(t, err, "route without origin")

	_, err = NewTable(def, &Route{Name: "default", Patterns: []string{"/*.jpg"}, Origin: group})
	assert.NotNil(t, err, "duplicated name")

	_, err = NewTable(def, &Route{Name: "a", Patterns: []string{""}, Origin: group})
	assert.NotNil(t, err, "empty pattern")
}
