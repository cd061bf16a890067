// Package dice parses and rolls simple dice expressions such as "d8", "2d6+1" or "1d20-2".
package dice

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/valyala/fastrand"
)

const (
	maxCount = 100
	// MaxSides bounds die size and flat modifiers so rolls stay well inside fastrand's range.
	MaxSides = 1000
)

var (
	ErrMalformed = fmt.Errorf("malformed dice expression")

	exprRe = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)
)

// Source yields a non-negative random int in [0, n). Implementations must be safe for
// concurrent use.
type Source interface {
	Intn(n int) int
}

type fastSource struct{}

func (fastSource) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	if n > math.MaxUint32 {
		n = math.MaxUint32
	}
	return int(fastrand.Uint32n(uint32(n)))
}

// FastSource is the process-wide source backed by fastrand.
var FastSource Source = fastSource{}

type Expr struct {
	Count    int
	Sides    int
	Modifier int
}

func Parse(s string) (Expr, error) {
	var e Expr

	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	m := exprRe.FindStringSubmatch(norm)
	if m == nil {
		return e, fmt.Errorf("%q: %w", s, ErrMalformed)
	}

	e.Count = 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return e, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		e.Count = n
	}

	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return e, fmt.Errorf("%q: %w", s, ErrMalformed)
	}
	e.Sides = sides

	if m[3] != "" {
		mod, err := strconv.Atoi(m[3])
		if err != nil {
			return e, fmt.Errorf("%q: %w", s, ErrMalformed)
		}
		e.Modifier = mod
	}

	if e.Count < 1 || e.Count > maxCount || e.Sides < 1 || e.Sides > MaxSides ||
		e.Modifier < -MaxSides || e.Modifier > MaxSides {
		return e, fmt.Errorf("%q: %w", s, ErrMalformed)
	}

	return e, nil
}

// Die is a single die with the given number of sides.
func Die(sides int) Expr {
	return Expr{Count: 1, Sides: sides}
}

func (e Expr) String() string {
	s := fmt.Sprintf("%dd%d", e.Count, e.Sides)
	if e.Modifier != 0 {
		s += fmt.Sprintf("%+d", e.Modifier)
	}
	return s
}

type Result struct {
	Expr  Expr
	Dice  []int
	Total int
}

func (e Expr) Roll(src Source) Result {
	r := Result{Expr: e, Dice: make([]int, e.Count), Total: e.Modifier}
	for i := 0; i < e.Count; i++ {
		n := src.Intn(e.Sides) + 1
		r.Dice[i] = n
		r.Total += n
	}

	return r
}
