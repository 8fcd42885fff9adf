package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimplify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"p and true", "p"},
		{"p and false", "false"},
		{"p or true", "true"},
		{"p or false", "p"},
		{"p and p", "p"},
		{"!!p", "p"},
		{"G true", "true"},
		{"F false", "false"},
		{"X true", "true"},
		{"p U true", "true"},
		{"false U q", "q"},
		{"p R false", "false"},
		{"true R q", "q"},
		{"false => p", "true"},
		{"p => true", "true"},
		{"1 + 2 == 3", "true"},
		{"5 / 0 > 1", "((5 / 0) > 1)"},
		{"G(p and (q and p))", "G(p and q)"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Simplify(MustParse(tt.in)).String())
		})
	}
}

func TestConjDisjNeutralElements(t *testing.T) {
	assert.Equal(t, Top, Conj())
	assert.Equal(t, Bottom, Disj())
	assert.Equal(t, Top, Conj(Top, Top))
	assert.Equal(t, Bottom, Disj(Bottom, Bottom))
	assert.Equal(t, "(p and q)", Conj(Pred{Name: "p"}, Top, Pred{Name: "q"}, Pred{Name: "p"}).String())
	assert.Equal(t, "(p or q)", Disj(Pred{Name: "p"}, Or{Left: Pred{Name: "q"}, Right: Pred{Name: "p"}}).String())
}

func TestNeg(t *testing.T) {
	assert.Equal(t, Bottom, Neg(Top))
	assert.Equal(t, Top, Neg(Bottom))
	assert.Equal(t, Pred{Name: "p"}, Neg(Not{F: Pred{Name: "p"}}))
	assert.Equal(t, "!p", Neg(Pred{Name: "p"}).String())
}

func TestPredicateNames(t *testing.T) {
	assert.Equal(t, []string{"login", "logout"}, PredicateNames(MustParse("G(login(u) => F logout(u)) and login('x')")))
}
