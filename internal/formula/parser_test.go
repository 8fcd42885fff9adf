package formula

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

var ignoreRegexp = cmpopts.IgnoreUnexported(Regexp{})

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Formula
	}{
		{"true", Top},
		{"false", Bottom},
		{"p", Pred{Name: "p"}},
		{"p()", Pred{Name: "p"}},
		{"login('admin')", Pred{Name: "login", Args: []Term{Const{Value: ir.Str("admin")}}}},
		{"status(200, x)", Pred{Name: "status", Args: []Term{Const{Value: ir.Int(200)}, Var{Name: "x"}}}},
		{"path(r'/admin.*')", Pred{Name: "path", Args: []Term{Regexp{Pattern: "/admin.*"}}}},
		{"!p", Not{F: Pred{Name: "p"}}},
		{"not p", Not{F: Pred{Name: "p"}}},
		{"G p", Always{F: Pred{Name: "p"}}},
		{"always(p)", Always{F: Pred{Name: "p"}}},
		{"F X p", Eventually{F: Next{F: Pred{Name: "p"}}}},
		{"p U q", Until{Left: Pred{Name: "p"}, Right: Pred{Name: "q"}}},
		{"p release q", Release{Left: Pred{Name: "p"}, Right: Pred{Name: "q"}}},
		{"p & q | r", Or{Left: And{Left: Pred{Name: "p"}, Right: Pred{Name: "q"}}, Right: Pred{Name: "r"}}},
		{"p => q => r", Imply{Left: Pred{Name: "p"}, Right: Imply{Left: Pred{Name: "q"}, Right: Pred{Name: "r"}}}},
		{"p -> q", Imply{Left: Pred{Name: "p"}, Right: Pred{Name: "q"}}},
		{"@bob(G p)", At{Agent: "bob", F: Always{F: Pred{Name: "p"}}}},
		{"x > 5", Cmp{Op: OpGt, Left: Var{Name: "x"}, Right: Const{Value: ir.Int(5)}}},
		{"x + 1 * 2 >= -3", Cmp{
			Op:    OpGe,
			Left:  Arith{Op: OpAdd, Left: Var{Name: "x"}, Right: Arith{Op: OpMul, Left: Const{Value: ir.Int(1)}, Right: Const{Value: ir.Int(2)}}},
			Right: Const{Value: ir.Int(-3)},
		}},
		{"(x + 1) % 2 == 0", Cmp{
			Op:    OpEq,
			Left:  Arith{Op: OpMod, Left: Arith{Op: OpAdd, Left: Var{Name: "x"}, Right: Const{Value: ir.Int(1)}}, Right: Const{Value: ir.Int(2)}},
			Right: Const{Value: ir.Int(0)},
		}},
		{"user = 'bob'", Cmp{Op: OpEq, Left: Var{Name: "user"}, Right: Const{Value: ir.Str("bob")}}},
		{"G(x < 5 and p)", Always{F: And{
			Left:  Cmp{Op: OpLt, Left: Var{Name: "x"}, Right: Const{Value: ir.Int(5)}},
			Right: Pred{Name: "p"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, ignoreRegexp); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input  string
		offset int
	}{
		{"", 0},
		{"p and", 5},
		{"G(p", 3},
		{"login('admin)", 6},
		{"x >", 3},
		{"p $ q", 2},
		{"@(p)", 1},
		{"path(r'[')", 5},
		{"p q", 2},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, IsParseError(err), "want *ParseError, got %T", err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.offset, pe.Offset)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	inputs := []string{
		"G(!login('admin'))",
		"G((login(u) => F(logout(u))))",
		"(p U (q and !r))",
		"X(X(p))",
		"F(@bob(G(p)))",
		"G((x + 1) > 3)",
		"(-5 < (0 - y))",
		"path(r'/a\\d+', 'it\\'s', 3)",
		"(p R q)",
		"(true or false)",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			f, err := Parse(in)
			require.NoError(t, err)

			again, err := Parse(f.String())
			require.NoError(t, err, "canonical text %q must parse", f.String())
			if diff := cmp.Diff(f, again, ignoreRegexp); diff != "" {
				t.Errorf("round trip mismatch (-first +second):\n%s", diff)
			}
			assert.Equal(t, f.String(), again.String())
		})
	}
}

func TestCanonicalText(t *testing.T) {
	assert.Equal(t, "G(!login('admin'))", MustParse("G !login('admin')").String())
	assert.Equal(t, "G(x < 5)", MustParse("always x < 5").String())
	assert.Equal(t, "(p and q)", MustParse("p && q").String())
	assert.Equal(t, "@bob(p)", MustParse("@bob(p)").String())
}
