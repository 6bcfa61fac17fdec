package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/macta/pkg/schema"
)

func TestNormalizeCondition(t *testing.T) {
	cases := map[string]string{
		"${approved == true}": "approved == true",
		"#{ amount > 100 }":   "amount > 100",
		"  approved  ":        "approved",
		"${unterminated":      "${unterminated",
		"":                    "",
		"${}":                 "",
		"cost < 10 && ${x}":   "cost < 10 && ${x}",
		"\n  ${ready}\n":      "ready",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCondition(in), "input %q", in)
	}
}

// --- CEL ---

func TestCEL_Evaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
	ctx := context.Background()

	out, err := e.Evaluate(ctx, "approved == true", map[string]any{"approved": true})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, "amount > 1000 && region == 'EU'", map[string]any{"amount": 1500, "region": "EU"})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, "1 + 2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out)
}

func TestCEL_Errors(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Evaluate(ctx, "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = e.Compile("approved ==")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, "missing > 1", map[string]any{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestCEL_CacheIsConcurrencySafe(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), "n * 2", map[string]any{"n": i})
			assert.NoError(t, err)
			assert.Equal(t, int64(i*2), out)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, e.programs.len())
}

// --- Expr ---

func TestExpr_Evaluate(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
	ctx := context.Background()

	out, err := e.Evaluate(ctx, "approved and amount > 100", map[string]any{"approved": true, "amount": 150})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, "missing == nil", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	err = e.Compile("amount +")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- GoJQ ---

func TestGoJQ_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())
	ctx := context.Background()
	data := map[string]any{"bottlenecks": []any{
		map[string]any{"resourceId": "clerk", "severity": "high"},
		map[string]any{"resourceId": "qa", "severity": "low"},
	}}

	out, err := e.Evaluate(ctx, `.bottlenecks | length`, data)
	require.NoError(t, err)
	assert.Equal(t, 2, out)

	out, err = e.Evaluate(ctx, `.bottlenecks[] | .resourceId`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"clerk", "qa"}, out)

	out, err = e.Evaluate(ctx, `empty`, data)
	require.NoError(t, err)
	assert.Nil(t, out)

	all, err := e.EvaluateAll(ctx, `.bottlenecks[0].severity`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"high"}, all)
}

func TestGoJQ_Query(t *testing.T) {
	e := NewGoJQEngine()
	resp := struct {
		RunID  string  `json:"runId"`
		Wait   float64 `json:"averageWaitTime"`
		Hidden string  `json:"-"`
	}{RunID: "run-1", Wait: 4.5, Hidden: "x"}

	out, err := e.Query(context.Background(), `.averageWaitTime`, resp)
	require.NoError(t, err)
	assert.Equal(t, 4.5, out)

	_, err = e.Query(context.Background(), `.`, []int{1})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestGoJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, ".[", map[string]any{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, `error("boom")`, map[string]any{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))

	out, err := e.Evaluate(ctx, `$ENV | length`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

// --- Conditions ---

func TestConditionChecker(t *testing.T) {
	c, err := NewConditionChecker()
	require.NoError(t, err)
	ctx := context.Background()

	engine, err := c.Check("${approved == true}")
	require.NoError(t, err)
	assert.Equal(t, "cel", engine.Name())

	engine, err = c.Check("${approved and amount > 100}")
	require.NoError(t, err)
	assert.Equal(t, "expr", engine.Name())

	_, err = c.Check("${amount >}")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = c.Check("${}")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	ok, err := c.Evaluate(ctx, "${approved == false}", map[string]any{"approved": false})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.Evaluate(ctx, "${amount + 1}", map[string]any{"amount": 1})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestPrograms_CompileFailureNotCached(t *testing.T) {
	e := NewExprEngine()
	require.Error(t, e.Compile("amount +"))
	require.NoError(t, e.Compile("amount + 1"))
	require.NoError(t, e.Compile("amount + 1"))
	assert.Equal(t, 1, e.programs.len())

	err := e.Compile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty expr expression")
}
