package oic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestCompileFieldPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		expr    string
		wantNil bool
	}{
		{name: "simple", expr: "sub"},
		{name: "nested", expr: "realm_access.roles"},
		{name: "quoted", expr: `"cognito:groups"`},
		{name: "quoted-with-dot", expr: `"my.dotted.key"`},
		{name: "index", expr: "contacts[0].email"},
		{name: "projection", expr: "groups[].name"},
		{name: "empty", expr: "", wantNil: true},
		{name: "blank", expr: "   ", wantNil: true},
		{name: "trailing-dot", expr: "a.", wantNil: true},
		{name: "empty-key", expr: "a..b", wantNil: true},
		{name: "unterminated-quote", expr: `"abc`, wantNil: true},
		{name: "unterminated-bracket", expr: "a[", wantNil: true},
		{name: "negative-index", expr: "a[-1]", wantNil: true},
		{name: "non-numeric-index", expr: "a[x]", wantNil: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			got := CompileFieldPath(tt.expr, nil, "test")
			if tt.wantNil {
				assert.Nil(got)
				return
			}
			assert.NotNil(got)
			assert.Equal(tt.expr, got.Source())
		})
	}
}

func TestFieldPath_Search(t *testing.T) {
	t.Parallel()
	doc := `{
		"sub": "alice",
		"email_verified": true,
		"level": 3,
		"realm_access": {"roles": ["admin", "dev"]},
		"cognito:groups": ["g1"],
		"my.dotted.key": "dotted",
		"contacts": [{"email": "a@example.com"}, {"email": "b@example.com"}],
		"groups": [{"name": "g1"}, {"name": "g2"}, {"id": 7}],
		"empty": null
	}`
	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{name: "scalar", expr: "sub", want: "alice"},
		{name: "bool", expr: "email_verified", want: true},
		{name: "number", expr: "level", want: float64(3)},
		{name: "nested-list", expr: "realm_access.roles", want: []interface{}{"admin", "dev"}},
		{name: "quoted-key", expr: `"cognito:groups"`, want: []interface{}{"g1"}},
		{name: "quoted-dotted-key", expr: `"my.dotted.key"`, want: "dotted"},
		{name: "index", expr: "contacts[0].email", want: "a@example.com"},
		{name: "index-second", expr: "contacts[1].email", want: "b@example.com"},
		{name: "index-out-of-range", expr: "contacts[5].email", want: nil},
		{name: "projection", expr: "groups[].name", want: []interface{}{"g1", "g2"}},
		{name: "projection-whole", expr: "realm_access.roles[]", want: []interface{}{"admin", "dev"}},
		{name: "missing", expr: "nope", want: nil},
		{name: "missing-nested", expr: "realm_access.nope", want: nil},
		{name: "null-value", expr: "empty", want: nil},
		{name: "scalar-descend", expr: "sub.deeper", want: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			p := CompileFieldPath(tt.expr, nil, "test")
			require.NotNil(p)
			assert.Equal(tt.want, p.Search(testDoc(t, doc)))
		})
	}
}

func TestFieldPath_SearchNil(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	var p *FieldPath
	assert.Nil(p.Search(map[string]interface{}{"a": "b"}))
	assert.Equal("", p.Source())
	assert.Nil(CompileFieldPath("a", nil, "").Search(nil))
}
