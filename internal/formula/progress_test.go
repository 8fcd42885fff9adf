package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/tracemon/internal/ir"
)

func ev(preds ...ir.Predicate) ir.Event {
	return ir.Event{Predicates: preds, Attrs: ir.Object{}}
}

func pred(name string, args ...ir.Value) ir.Predicate {
	return ir.Predicate{Name: name, Args: args}
}

type kv map[string]ir.Verdict

func (k kv) Lookup(fid string) (ir.Verdict, bool) {
	v, ok := k[fid]
	return v, ok
}

func progressString(t *testing.T, f string, e ir.Event) string {
	t.Helper()
	out, err := Progress(Simplify(MustParse(f)), e, nil, nil)
	require.NoError(t, err)
	return out.String()
}

func TestProgressRules(t *testing.T) {
	p := ev(pred("p"))
	q := ev(pred("q"))
	none := ev()

	tests := []struct {
		name    string
		formula string
		event   ir.Event
		want    string
	}{
		{"true fixed point", "true", p, "true"},
		{"false fixed point", "false", p, "false"},
		{"predicate present", "p", p, "true"},
		{"predicate absent", "p", q, "false"},
		{"not", "!p", p, "false"},
		{"and", "p and q", p, "false"},
		{"or", "p or q", q, "true"},
		{"imply vacuous", "p => q", q, "true"},
		{"imply violated", "p => q", p, "false"},
		{"next drops one level", "X q", p, "q"},
		{"always good prefix", "G p", p, "G(p)"},
		{"always violated", "G p", q, "false"},
		{"eventually satisfied", "F p", p, "true"},
		{"eventually pending", "F p", q, "F(p)"},
		{"until satisfied", "p U q", q, "true"},
		{"until pending", "p U q", p, "(p U q)"},
		{"until violated", "p U q", none, "false"},
		{"release holds", "p R q", ev(pred("p"), pred("q")), "true"},
		{"release pending", "p R q", q, "(p R q)"},
		{"release violated", "p R q", p, "false"},
		{"always next", "G(p => X q)", p, "(q and G(!p or X(q)))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, progressString(t, tt.formula, tt.event))
		})
	}
}

func TestProgressPredicateArguments(t *testing.T) {
	login := ev(pred("login", ir.Str("admin"), ir.Int(3)))

	assert.Equal(t, "true", progressString(t, "login('admin', 3)", login))
	assert.Equal(t, "true", progressString(t, "login('admin', '3')", login), "constants compare by text")
	assert.Equal(t, "false", progressString(t, "login('root', 3)", login))
	assert.Equal(t, "false", progressString(t, "login('admin')", login), "arity must match")
	assert.Equal(t, "true", progressString(t, "login(r'adm', 3)", login))
	assert.Equal(t, "false", progressString(t, "login(r'min', 3)", login), "regexp anchors at the start")
}

func TestProgressVariables(t *testing.T) {
	f := MustParse("login(u)")
	e := ev(pred("login", ir.Str("bob")))

	got, err := Progress(f, e, Valuation{"u": ir.Str("bob")}, nil)
	require.NoError(t, err)
	assert.Equal(t, Top, got)

	got, err = Progress(f, e, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Bottom, got, "unresolved variable never matches")

	e.Attrs = ir.Object{"u": ir.Str("alice")}
	got, err = Progress(f, e, Valuation{"u": ir.Str("bob")}, nil)
	require.NoError(t, err)
	assert.Equal(t, Bottom, got, "event attributes shadow the valuation")
}

func TestProgressComparison(t *testing.T) {
	x3 := ir.Event{Attrs: ir.Object{"x": ir.Int(3), "name": ir.Str("bob")}}

	tests := []struct {
		formula string
		want    Formula
	}{
		{"x > 5", Bottom},
		{"x < 5", Top},
		{"x * 2 - 1 == 5", Top},
		{"x % 2 != 0", Top},
		{"name == 'bob'", Top},
		{"name > 'alice'", Top},
		{"name > 3", Bottom},
		{"missing > 0", Bottom},
		{"missing != 0", Bottom},
		{"x == '3'", Bottom},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got, err := Progress(MustParse(tt.formula), x3, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgressDivisionByZero(t *testing.T) {
	_, err := Progress(MustParse("10 / x > 1"), ir.Event{Attrs: ir.Object{"x": ir.Int(0)}}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

type bogus struct{}

func (bogus) Kind() Kind     { return Kind(200) }
func (bogus) String() string { return "bogus" }

func TestProgressUnsupportedNode(t *testing.T) {
	_, err := Progress(And{Left: Pred{Name: "p"}, Right: Always{F: bogus{}}}, ev(pred("p")), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestProgressAt(t *testing.T) {
	f, err := BindFIDs(MustParse("G(@bob(p))"), "local")
	require.NoError(t, err)
	at := Ats(f)[0]
	require.NotEmpty(t, at.FID)

	got, err := Progress(f, ev(), nil, kv{})
	require.NoError(t, err)
	assert.Equal(t, "(@bob(p) and G(@bob(p)))", got.String(), "unknown fid keeps the reference")

	got, err = Progress(f, ev(), nil, kv{at.FID: ir.Unknown})
	require.NoError(t, err)
	assert.Equal(t, ir.Unknown, Verdict(got))

	got, err = Progress(f, ev(), nil, kv{at.FID: ir.False})
	require.NoError(t, err)
	assert.Equal(t, Bottom, got)

	got, err = Progress(f, ev(), nil, kv{at.FID: ir.True})
	require.NoError(t, err)
	assert.Equal(t, "G(@bob(p))", got.String())
}

func TestProgressAlwaysEventuallyStaysBounded(t *testing.T) {
	cur := Simplify(MustParse("G(F(p))"))
	var sizes []int
	for i := 0; i < 50; i++ {
		e := ev()
		if i%7 == 0 {
			e = ev(pred("p"))
		}
		next, err := Progress(cur, e, nil, nil)
		require.NoError(t, err)
		cur = next
		sizes = append(sizes, len(cur.String()))
	}
	for _, n := range sizes {
		assert.LessOrEqual(t, n, len("(F(p) and G(F(p)))"))
	}
}

func TestEvaluate(t *testing.T) {
	events := []ir.Event{ev(pred("a")), ev(pred("b")), ev(pred("c"))}

	got, err := Evaluate(MustParse("a U c"), events, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.False, Verdict(got), "b breaks the until")

	got, err = Evaluate(MustParse("F c"), events, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.True, Verdict(got))

	got, err = Evaluate(MustParse("G !d"), events, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Unknown, Verdict(got))
}

func genEvent(t *rapid.T) ir.Event {
	names := rapid.SliceOfN(rapid.SampledFrom([]string{"p", "q", "r"}), 0, 3).Draw(t, "preds")
	e := ir.Event{Attrs: ir.Object{"x": ir.Int(rapid.Int64Range(-10, 10).Draw(t, "x"))}}
	for _, n := range names {
		e.Predicates = append(e.Predicates, ir.Predicate{Name: n})
	}
	return e
}

func genFormula(t *rapid.T, depth int) Formula {
	if depth == 0 {
		return rapid.SampledFrom([]Formula{
			Top, Bottom, Pred{Name: "p"}, Pred{Name: "q"},
			Cmp{Op: OpGt, Left: Var{Name: "x"}, Right: Const{Value: ir.Int(0)}},
		}).Draw(t, "leaf")
	}
	sub := func() Formula { return genFormula(t, depth-1) }
	switch rapid.IntRange(0, 8).Draw(t, "op") {
	case 0:
		return Not{F: sub()}
	case 1:
		return And{Left: sub(), Right: sub()}
	case 2:
		return Or{Left: sub(), Right: sub()}
	case 3:
		return Always{F: sub()}
	case 4:
		return Eventually{F: sub()}
	case 5:
		return Next{F: sub()}
	case 6:
		return Until{Left: sub(), Right: sub()}
	case 7:
		return Release{Left: sub(), Right: sub()}
	default:
		return Imply{Left: sub(), Right: sub()}
	}
}

func TestLiteralFixedPointProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := genEvent(t)
		for _, lit := range []Formula{Top, Bottom} {
			got, err := Progress(lit, e, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got != lit {
				t.Fatalf("prg(%s) = %s", lit, got)
			}
		}
	})
}

func TestProgressDeterministicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Simplify(genFormula(t, rapid.IntRange(0, 3).Draw(t, "depth")))
		e := genEvent(t)

		a, err := Progress(f, e, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		b, err := Progress(f, e, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if a.String() != b.String() {
			t.Fatalf("progression not deterministic: %s vs %s", a, b)
		}
		if _, err := Parse(f.String()); err != nil {
			t.Fatalf("canonical text %q does not parse: %v", f.String(), err)
		}
	})
}
