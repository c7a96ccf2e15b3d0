package filter

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/campushub/studyhub/types"
)

/*
Env is the environment group browsing filter expressions are evaluated
against, f.e. `Subject == "calculus" && SpotsLeft > 0`.
Once this struct is fixed, it should not be changed, otherwise filters baked
into clients may not compile any more (f.e. if properties are renamed etc.)
*/
type Env struct {
	Name      string
	Subject   string
	Program   string
	Year      int
	Capacity  int
	Members   int
	SpotsLeft int
}

func FromGroup(g *types.Group) Env {
	return Env{
		Name:      g.Name,
		Subject:   g.Subject,
		Program:   g.Program,
		Year:      g.Year,
		Capacity:  g.Capacity,
		Members:   len(g.Members),
		SpotsLeft: g.SpotsLeft(),
	}
}

// Compile checks a filter expression against the Env once, so a bad
// expression fails the request instead of every evaluation.
func Compile(expression string) (*vm.Program, error) {
	return expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
}

// Match evaluates a compiled filter for one group. Evaluation errors count
// as a non-match.
func Match(prog *vm.Program, g *types.Group) bool {
	out, err := expr.Run(prog, FromGroup(g))
	if err != nil {
		return false
	}
	res, ok := out.(bool)
	return ok && res
}
