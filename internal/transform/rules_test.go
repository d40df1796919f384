package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want []pathPart
	}{
		{"name", []pathPart{{Name: "name"}}},
		{"user.name", []pathPart{{Name: "user"}, {Name: "name"}}},
		{"users[0]", []pathPart{{Name: "users", IsArray: true, Index: 0}}},
		{"items[2].id", []pathPart{{Name: "items", IsArray: true, Index: 2}, {Name: "id"}}},
		{"[1].id", []pathPart{{IsArray: true, Index: 1}, {Name: "id"}}},
		{"a[x]", []pathPart{{Name: "a[x]"}}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseFieldPath(tt.path))
		})
	}
}

func TestRules_SetReplacesArrayElement(t *testing.T) {
	t.Parallel()

	rules := Rules{{Op: OpSet, Path: "users[0]", Value: "Fred"}}
	out, err := Apply("application/json", []byte(`{"users":["Alice"]}`), rules.Func())
	require.NoError(t, err)
	assert.Equal(t, `{"users":["Fred"]}`, string(out))
}

func TestRules_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rules Rules
		in    string
		want  string
	}{
		{
			name:  "set creates intermediate objects",
			rules: Rules{{Op: OpSet, Path: "meta.source", Value: "bridge"}},
			in:    `{}`,
			want:  `{"meta":{"source":"bridge"}}`,
		},
		{
			name:  "set grows arrays",
			rules: Rules{{Op: OpSet, Path: "list[2]", Value: 3}},
			in:    `{"list":[1]}`,
			want:  `{"list":[1,null,3]}`,
		},
		{
			name:  "remove object field",
			rules: Rules{{Op: OpRemove, Path: "user.password"}},
			in:    `{"user":{"name":"a","password":"x"}}`,
			want:  `{"user":{"name":"a"}}`,
		},
		{
			name:  "remove array element",
			rules: Rules{{Op: OpRemove, Path: "users[1]"}},
			in:    `{"users":["a","b","c"]}`,
			want:  `{"users":["a","c"]}`,
		},
		{
			name:  "remove missing path",
			rules: Rules{{Op: OpRemove, Path: "nope.deeper"}},
			in:    `{"a":1}`,
			want:  `{"a":1}`,
		},
		{
			name:  "rename",
			rules: Rules{{Op: OpRename, Path: "user_name", To: "user.name"}},
			in:    `{"user_name":"alice"}`,
			want:  `{"user":{"name":"alice"}}`,
		},
		{
			name:  "rename missing source is skipped",
			rules: Rules{{Op: OpRename, Path: "missing", To: "other"}, {Op: OpSet, Path: "ok", Value: true}},
			in:    `{}`,
			want:  `{"ok":true}`,
		},
		{
			name:  "root array",
			rules: Rules{{Op: OpSet, Path: "[0].id", Value: 7}},
			in:    `[{"id":1}]`,
			want:  `[{"id":7}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			out, err := tt.rules.Apply(v)
			require.NoError(t, err)
			encoded, err := Encode(out)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(encoded))
		})
	}
}

func TestRules_ApplyTypeMismatch(t *testing.T) {
	t.Parallel()

	v, err := Decode([]byte(`{"users":"not-an-array"}`))
	require.NoError(t, err)

	_, err = Rules{{Op: OpSet, Path: "users[0]", Value: "x"}}.Apply(v)
	assert.ErrorIs(t, err, ErrInvalidDataType)
}

func TestRules_FuncSkipsFailingRule(t *testing.T) {
	t.Parallel()

	fn := Rules{
		{Op: OpSet, Path: "users[0]", Value: "x"},
		{Op: OpSet, Path: "done", Value: true},
	}.Func()

	out, err := Apply("application/json", []byte(`{"users":"scalar"}`), fn)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":"scalar","done":true}`, string(out))

	assert.Nil(t, Rules{}.Func())
}

func TestRules_SetValueIsCopied(t *testing.T) {
	t.Parallel()

	value := map[string]interface{}{"k": "v"}
	fn := Rules{{Op: OpSet, Path: "obj", Value: value}}.Func()

	out := fn(map[string]interface{}{})
	out.(map[string]interface{})["obj"].(map[string]interface{})["k"] = "changed"
	assert.Equal(t, "v", value["k"])
}

func TestRule_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Rule{Op: OpSet, Path: "a"}.Validate())
	assert.NoError(t, Rule{Op: OpRemove, Path: "a[0]"}.Validate())
	assert.NoError(t, Rule{Op: OpRename, Path: "a", To: "b"}.Validate())

	assert.ErrorIs(t, Rule{Op: OpSet}.Validate(), ErrInvalidFieldPath)
	assert.ErrorIs(t, Rule{Op: OpRename, Path: "a"}.Validate(), ErrInvalidFieldPath)
	assert.ErrorIs(t, Rule{Op: "merge", Path: "a"}.Validate(), ErrUnknownOp)

	err := Rules{{Op: OpSet, Path: "a"}, {Op: "bad", Path: "b"}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule 1")
}
