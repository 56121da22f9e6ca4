package fixedpoint

import "math/big"

// MaxNewtonIterations bounds the stable invariant solver, as the pair contracts do.
const MaxNewtonIterations = 255

var three = big.NewInt(3)

// StableK returns the x³y + y³x invariant of a stable pair with both reserves normalised
// to 18 decimals. scaleX and scaleY are 10^decimals of each token.
func StableK(x, y, scaleX, scaleY *big.Int) *big.Int {
	nx := new(big.Int).Mul(x, One)
	nx.Quo(nx, scaleX)
	ny := new(big.Int).Mul(y, One)
	ny.Quo(ny, scaleY)

	// a = x*y/1e18
	a := new(big.Int).Mul(nx, ny)
	a.Quo(a, One)

	// b = x*x/1e18 + y*y/1e18
	b := new(big.Int).Mul(nx, nx)
	b.Quo(b, One)
	yy := new(big.Int).Mul(ny, ny)
	yy.Quo(yy, One)
	b.Add(b, yy)

	a.Mul(a, b)
	return a.Quo(a, One)
}

// stableF is x0*y³ + x0³*y in 1e18 units.
func stableF(x0, y *big.Int) *big.Int {
	// x0*(y*y/1e18*y/1e18)/1e18
	y3 := new(big.Int).Mul(y, y)
	y3.Quo(y3, One)
	y3.Mul(y3, y)
	y3.Quo(y3, One)
	left := new(big.Int).Mul(x0, y3)
	left.Quo(left, One)

	// (x0*x0/1e18*x0/1e18)*y/1e18
	x3 := new(big.Int).Mul(x0, x0)
	x3.Quo(x3, One)
	x3.Mul(x3, x0)
	x3.Quo(x3, One)
	right := x3.Mul(x3, y)
	right.Quo(right, One)

	return left.Add(left, right)
}

// stableD is the derivative of stableF with respect to y.
func stableD(x0, y *big.Int) *big.Int {
	// 3*x0*(y*y/1e18)/1e18
	y2 := new(big.Int).Mul(y, y)
	y2.Quo(y2, One)
	left := new(big.Int).Mul(three, x0)
	left.Mul(left, y2)
	left.Quo(left, One)

	// x0*x0/1e18*x0/1e18
	x3 := new(big.Int).Mul(x0, x0)
	x3.Quo(x3, One)
	x3.Mul(x3, x0)
	x3.Quo(x3, One)

	return left.Add(left, x3)
}

// GetY solves x0*y³ + x0³*y = xy for y with Newton's method, starting from y.
// It runs at most MaxNewtonIterations and stops once successive estimates differ by at
// most one unit. When the cap is hit the last estimate is returned with converged=false;
// callers should treat such results with suspicion but they are not errors.
func GetY(x0, xy, y *big.Int) (result *big.Int, converged bool) {
	current := new(big.Int).Set(y)
	dy := new(big.Int)
	for i := 0; i < MaxNewtonIterations; i++ {
		prev := new(big.Int).Set(current)
		k := stableF(x0, current)
		d := stableD(x0, current)
		if d.Sign() == 0 {
			return current, false
		}
		if k.Cmp(xy) < 0 {
			dy.Sub(xy, k)
			dy.Mul(dy, One)
			dy.Quo(dy, d)
			current.Add(current, dy)
		} else {
			dy.Sub(k, xy)
			dy.Mul(dy, One)
			dy.Quo(dy, d)
			if dy.Cmp(current) > 0 {
				current.SetUint64(0)
			} else {
				current.Sub(current, dy)
			}
		}
		dy.Sub(current, prev)
		if dy.CmpAbs(big.NewInt(1)) <= 0 {
			return current, true
		}
	}
	return current, false
}
