package lineage

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/vango-dev/fluxstore/pkg/store"
)

// Expr compiles an expression into a Predicate. The expression sees:
//
//	Name        store name
//	Key         binding key
//	ID          instance ID
//	Values      snapshot of the store table
//	defines(k)  whether the store has a value or default for k
//
// For example `Name == "cart" && Values.count > 0`. An expression that fails
// at run time does not match.
func Expr(src string) (Predicate, error) {
	if src == "" {
		return nil, fmt.Errorf("lineage: expression must not be empty")
	}
	program, err := exprlang.Compile(src,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("lineage: compile %q: %w", src, err)
	}
	return func(s *store.Store) bool {
		return run(program, s)
	}, nil
}

// MustExpr is like Expr but panics on a compile error.
func MustExpr(src string) Predicate {
	p, err := Expr(src)
	if err != nil {
		panic(err)
	}
	return p
}

func run(program *exprvm.Program, s *store.Store) bool {
	env := map[string]any{
		"Name":   s.Name(),
		"Key":    s.Key(),
		"ID":     s.ID(),
		"Values": s.Snapshot(),
		"defines": func(key string) bool {
			_, ok := s.Lookup(key)
			return ok
		},
	}
	out, err := exprlang.Run(program, env)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}
