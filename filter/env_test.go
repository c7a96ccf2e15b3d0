package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campushub/studyhub/types"
)

func TestCompileRejectsBadExpressions(t *testing.T) {
	_, err := Compile(`Subject == `)
	assert.Error(t, err)

	// non-boolean result
	_, err = Compile(`Capacity`)
	assert.Error(t, err)

	// unknown property
	_, err = Compile(`Teacher == "smith"`)
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	group := &types.Group{
		Name:     "algebra crunch",
		Subject:  "calculus",
		Program:  "math",
		Year:     2,
		Capacity: 5,
		Members:  []types.User{{Id: 1}, {Id: 2}},
	}

	cases := []struct {
		expression string
		want       bool
	}{
		{`Subject == "calculus"`, true},
		{`Subject == "biology"`, false},
		{`SpotsLeft > 0`, true},
		{`SpotsLeft > 3`, false},
		{`Members == 2 && Year >= 2`, true},
		{`Program == "math" || Capacity < 3`, true},
	}
	for _, c := range cases {
		prog, err := Compile(c.expression)
		if err != nil {
			t.Fatalf("compile %q: %s", c.expression, err)
		}
		assert.Equal(t, c.want, Match(prog, group), c.expression)
	}
}

func TestFromGroup(t *testing.T) {
	group := &types.Group{Name: "g", Subject: "s", Capacity: 3, Members: []types.User{{Id: 1}}}
	env := FromGroup(group)
	assert.Equal(t, 1, env.Members)
	assert.Equal(t, 2, env.SpotsLeft)
}
