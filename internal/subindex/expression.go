package subindex

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/schema"
)

// compiledExpression is what compileExpression produces: a runnable
// program plus the set of attribute names it references, so Search can
// skip a subscription outright when an event leaves one of them
// undefined rather than asking expr to evaluate a partial environment.
type compiledExpression struct {
	program     *vm.Program
	identifiers map[string]struct{}
}

// schemaEnv builds the compile-time type environment expr checks
// subscription expressions against: one zero-valued field per
// attribute, typed per its Kind. Compiling against a concrete type per
// field (rather than a permissive map[string]any) is what makes expr
// reject both unknown attribute names and kind-mismatched operators
// (e.g. `tags > 3`) at subscribe time instead of at match time.
func schemaEnv(s *schema.Schema) map[string]any {
	env := make(map[string]any, s.Len())
	for _, attr := range s.Attributes() {
		switch attr.Kind {
		case schema.KindBoolean:
			env[attr.Name] = false
		case schema.KindInteger:
			env[attr.Name] = int64(0)
		case schema.KindFloat:
			env[attr.Name] = float64(0)
		case schema.KindString:
			env[attr.Name] = ""
		case schema.KindStringList:
			env[attr.Name] = []string{}
		case schema.KindIntegerList:
			env[attr.Name] = []int64{}
		}
	}
	return env
}

// compileExpression parses and type-checks a subscription expression
// against env, and separately walks its AST to record every attribute
// name it references. Both the parse and the compile can fail for a
// malformed or ill-typed expression; either is reported as the single
// "invalid expression" error a caller surfaces to the subscribing
// client.
func compileExpression(expression string, env map[string]any) (compiledExpression, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return compiledExpression{}, err
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return compiledExpression{}, err
	}

	return compiledExpression{
		program:     program,
		identifiers: collectIdentifiers(tree.Node),
	}, nil
}

func collectIdentifiers(node ast.Node) map[string]struct{} {
	c := &identifierCollector{idents: make(map[string]struct{})}
	ast.Walk(&node, c)
	return c.idents
}

type identifierCollector struct {
	idents map[string]struct{}
}

func (c *identifierCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		c.idents[id.Value] = struct{}{}
	}
}
