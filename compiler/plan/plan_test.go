package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/ast"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/sched"
	"github.com/LeonardoTemperanza/RyuCompiler-sub000/compiler/tp"
)

type deps struct {
	phases map[ast.Decl]sched.Phase
	asked  []string
}

func (d *deps) Require(x ast.Decl, p sched.Phase) error {
	d.asked = append(d.asked, ast.Name(x))

	if d.phases[x] >= p {
		return nil
	}

	return errors.Wrap(sched.ErrYield, "%v", ast.Name(x))
}

func run(t *testing.T, name string) *Report {
	t.Helper()

	p, err := Load(name)
	require.NoError(t, err)

	r, err := p.Run(context.Background())
	require.NoError(t, err)

	return r
}

func outcome(t *testing.T, r *Report, name string) Outcome {
	t.Helper()

	o, ok := r.Outcome(name)
	require.True(t, ok, "no outcome for %v", name)

	return o
}

func TestChain(t *testing.T) {
	r := run(t, "testdata/chain.yaml")

	assert.NoError(t, r.Err)

	for _, name := range []string{"main", "helper", "Point"} {
		o := outcome(t, r, name)

		assert.Equal(t, sched.Run, o.Phase, "%v", name)
		assert.Equal(t, sched.NoError, o.Err, "%v", name)
	}

	// main yields once before getting through type checking
	assert.Greater(t, outcome(t, r, "main").Calls, int(sched.NumPhases-sched.TypeChecked))
}

func TestCycle(t *testing.T) {
	r := run(t, "testdata/cycle.yaml")

	assert.True(t, errors.Is(r.Err, sched.ErrFailed), "err: %v", r.Err)

	assert.Equal(t, sched.Cycle, outcome(t, r, "A").Err)
	assert.Equal(t, sched.Cycle, outcome(t, r, "B").Err)
	assert.Equal(t, sched.CycleDependent, outcome(t, r, "user").Err)

	free := outcome(t, r, "free")
	assert.Equal(t, sched.NoError, free.Err)
	assert.Equal(t, sched.Run, free.Phase)

	text := string(r.AppendText(nil))
	assert.Contains(t, text, "cycle")
	assert.Contains(t, text, "compilation failed")
}

func TestFailure(t *testing.T) {
	r := run(t, "testdata/failure.yaml")

	broken := outcome(t, r, "broken")
	assert.Equal(t, sched.Semantic, broken.Err)
	assert.Equal(t, sched.TypeChecked, broken.Phase)
	assert.True(t, errors.Is(broken.Cause, ErrInjected))

	assert.Equal(t, sched.Dependency, outcome(t, r, "strict").Err)

	lenient := outcome(t, r, "lenient")
	assert.Equal(t, sched.NoError, lenient.Err)
	assert.Equal(t, sched.Run, lenient.Phase)
}

func TestReportYAML(t *testing.T) {
	r := run(t, "testdata/failure.yaml")

	data, err := yaml.Marshal(r)
	require.NoError(t, err)

	var doc struct {
		Rounds   int    `yaml:"rounds"`
		Err      string `yaml:"error"`
		Entities []struct {
			Name  string      `yaml:"name"`
			Phase sched.Phase `yaml:"phase"`
			Err   string      `yaml:"err"`
		} `yaml:"entities"`
	}

	err = yaml.Unmarshal(data, &doc)
	require.NoError(t, err, "%s", data)

	assert.Equal(t, r.Rounds, doc.Rounds)
	assert.Contains(t, doc.Err, "compilation failed")

	require.Len(t, doc.Entities, 3)
	assert.Equal(t, "broken", doc.Entities[0].Name)
	assert.Equal(t, sched.TypeChecked, doc.Entities[0].Phase)
	assert.Equal(t, "semantic", doc.Entities[0].Err)
	assert.Equal(t, "dependency", doc.Entities[1].Err)
	assert.Equal(t, "ok", doc.Entities[2].Err)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{"unknown_phase", "entities: [{name: a, fail: linked}]"},
		{"unknown_target", "entities: [{name: a, needs: [{at: typechecked, target: b, phase: run}]}]"},
		{"duplicate", "entities: [{name: a}, {name: a}]"},
		{"no_name", "entities: [{needs: []}]"},
		{"need_at_parsed", "entities: [{name: a, needs: [{at: parsed, target: a, phase: run}]}]"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestChecker(t *testing.T) {
	ctx := context.Background()

	p, err := Parse([]byte(`
entities:
  - name: List
    needs:
      - {at: typechecked, target: Node, phase: typechecked}
      - {at: sizecomputed, target: Node, phase: sizecomputed}
  - name: Node
  - name: Bad
    fail: typechecked
`))
	require.NoError(t, err)

	list := &ast.TypeDecl{Name: "List", T: tp.I64}
	node := &ast.TypeDecl{Name: "Node", T: tp.I64}
	bad := &ast.TypeDecl{Name: "Bad", T: tp.I64}
	other := &ast.TypeDecl{Name: "Other", T: tp.I64}

	c := &Checker{
		Plan:  p,
		Decls: map[string]ast.Decl{"List": list, "Node": node, "Bad": bad},
	}

	d := &deps{phases: map[ast.Decl]sched.Phase{node: sched.TypeChecked}}

	assert.NoError(t, c.TypeCheck(ctx, list, d))

	err = c.ComputeSize(ctx, list, d)
	assert.True(t, errors.Is(err, sched.ErrYield), "err: %v", err)

	d.phases[node] = sched.SizeComputed
	assert.NoError(t, c.ComputeSize(ctx, list, d))

	assert.Equal(t, []string{"Node", "Node", "Node"}, d.asked)

	assert.True(t, errors.Is(c.TypeCheck(ctx, bad, d), ErrInjected))
	assert.NoError(t, c.TypeCheck(ctx, other, d))
}
