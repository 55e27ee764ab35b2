package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscriminators(t *testing.T) {
	view, err := JSONInspector().Inspect([]byte(`{
		"source": "my.app",
		"detail-type": "UserCreated",
		"route": "/user/7",
		"count": 3,
		"detail": {"userId": "123"}
	}`))
	require.NoError(t, err)

	tests := []struct {
		name string
		d    Discriminator
		want bool
	}{
		{"has fields", HasFields("source", "detail-type"), true},
		{"has nested field", HasFields("source", "detail.userId"), true},
		{"has fields missing one", HasFields("source", "missing"), false},
		{"has no fields", HasFields(), true},

		{"field equals", FieldEquals("source", "my.app"), true},
		{"field equals other value", FieldEquals("source", "other"), false},
		{"field equals non-string", FieldEquals("count", "3"), false},
		{"field equals missing", FieldEquals("missing", ""), false},

		{"field in", FieldIn("detail-type", "UserDeleted", "UserCreated"), true},
		{"field in none", FieldIn("detail-type", "UserDeleted"), false},

		{"field prefix slash", FieldPrefix("route", "/"), true},
		{"field prefix other", FieldPrefix("route", "/order"), false},
		{"field prefix non-string", FieldPrefix("count", ""), false},

		{"and all", And(HasFields("source"), FieldEquals("detail-type", "UserCreated")), true},
		{"and one fails", And(HasFields("source"), FieldEquals("detail-type", "Other")), false},
		{"and empty", And(), true},

		{"or one", Or(FieldEquals("source", "x"), FieldEquals("source", "my.app")), true},
		{"or none", Or(FieldEquals("source", "x"), FieldEquals("source", "y")), false},
		{"or empty", Or(), false},

		{"not", Not(HasFields("missing")), true},
		{"not present", Not(HasFields("source")), false},

		{"func", DiscriminatorFunc(func(v View) bool { return v.HasField("count") }), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Match(view))
		})
	}
}

func TestDiscriminators_AreValues(t *testing.T) {
	assert.Equal(t, FieldEquals("source", "my.app"), FieldEquals("source", "my.app"))
	assert.Equal(t, fieldIn{path: "type", values: []string{"a", "b"}}, FieldIn("type", "a", "b"))
	assert.Equal(t, fieldPrefix{path: "route", prefix: "/"}, FieldPrefix("route", "/"))
	assert.Equal(t, not{d: hasFields{paths: []string{"x"}}}, Not(HasFields("x")))
	assert.IsType(t, and{}, And())
	assert.IsType(t, or{}, Or())
}
