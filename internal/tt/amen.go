package tt

import (
	"log"
	"math"

	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/dense"
)

// DivideOptions configures the AMEN elementwise division solver.
type DivideOptions struct {
	Eps     float64 // relative accuracy, DefaultEps when zero
	Sweeps  int     // sweep budget, 50 when zero
	MaxRank int     // rank cap for the result, DefaultMaxRank when zero
	Kick    int     // enrichment rank added per site, 4 when zero
	Start   *Tensor // warm start, random rank-2 when nil
	Verbose bool
}

func (o DivideOptions) defaults() (DivideOptions, error) {
	if o.Eps < 0 {
		return o, errors.Wrapf(ErrInvalidArguments, "accuracy must be non-negative, got %g", o.Eps)
	}
	if o.Eps == 0 {
		o.Eps = DefaultEps
	}
	if o.Sweeps == 0 {
		o.Sweeps = 50
	}
	if o.Sweeps < 0 {
		return o, errors.Wrapf(ErrInvalidArguments, "sweep budget must be positive, got %d", o.Sweeps)
	}
	if o.MaxRank == 0 {
		o.MaxRank = DefaultMaxRank
	}
	if o.MaxRank < 1 {
		return o, errors.Wrapf(ErrInvalidArguments, "rank cap must be at least 1, got %d", o.MaxRank)
	}
	if o.Kick == 0 {
		o.Kick = 4
	}
	if o.Kick < 0 {
		return o, errors.Wrapf(ErrInvalidArguments, "enrichment rank must be non-negative, got %d", o.Kick)
	}
	return o, nil
}

// Div divides the receiver elementwise by other using the AMEN solver at
// default settings. The convergence report is discarded; use
// ElementwiseDivide to inspect it.
func (t *Tensor) Div(other *Tensor) (*Tensor, error) {
	out, _, err := ElementwiseDivide(t, other, DivideOptions{})
	return out, err
}

// ElementwiseDivide solves diag(y) z = x by alternating one-site
// optimization with residual-style rank enrichment, returning z ~= x / y.
// The diagonal structure of the operator splits every local system into
// independent small systems, one per mode index. Division by a train with
// (near-)zero entries does not error; it shows up as a large residual in the
// report.
func ElementwiseDivide(x, y *Tensor, opts DivideOptions) (*Tensor, Report, error) {
	var report Report
	if x.IsEmpty() || y.IsEmpty() {
		return nil, report, errors.Wrap(ErrInvalidArguments, "division with an empty tensor")
	}
	if x.isMatrix != y.isMatrix {
		return nil, report, errors.Wrap(ErrIncompatibleTypes, "cannot divide a TT matrix by a TT tensor or vice versa")
	}
	if x.isMatrix {
		if !sameModes(x.m, y.m) || !sameModes(x.n, y.n) {
			return nil, report, errors.Wrapf(ErrShapeMismatch,
				"division operands have mode sizes %vx%v and %vx%v", x.m, x.n, y.m, y.n)
		}
		// Fuse the row and column modes and divide as tensors.
		xt, err := fuseMatrixModes(x)
		if err != nil {
			return nil, report, err
		}
		yt, err := fuseMatrixModes(y)
		if err != nil {
			return nil, report, err
		}
		zt, report, err := ElementwiseDivide(xt, yt, opts)
		if err != nil {
			return nil, report, err
		}
		z, err := splitMatrixModes(zt, x.m, x.n)
		return z, report, err
	}
	if !sameModes(x.n, y.n) {
		return nil, report, errors.Wrapf(ErrShapeMismatch,
			"division operands have mode sizes %v and %v", x.n, y.n)
	}
	opts, err := opts.defaults()
	if err != nil {
		return nil, report, err
	}

	d := len(x.cores)
	if d == 1 {
		return divideSingleCore(x, y, opts.Eps, &report)
	}

	zc, err := startCores(x.n, opts.Start, x.Device())
	if err != nil {
		return nil, report, err
	}
	xNorm, err := x.NormSquared()
	if err != nil {
		return nil, report, err
	}
	xNorm = math.Sqrt(math.Abs(xNorm))

	for sweep := 1; sweep <= opts.Sweeps; sweep++ {
		zc, err = rightOrthogonalCores(zc)
		if err != nil {
			return nil, report, err
		}
		phiR, psiR, err := rightDivInterfaces(zc, y.cores, x.cores)
		if err != nil {
			return nil, report, err
		}

		phiL := dense.Ones(dense.Shape{1, 1, 1}, x.Device())
		psiL := dense.Ones(dense.Shape{1, 1}, x.Device())
		for i := 0; i < d; i++ {
			solved, err := solveDiagSite(phiL, phiR[i+1], psiL, psiR[i+1], y.cores[i], x.cores[i])
			if err != nil {
				return nil, report, err
			}
			zc[i] = solved
			if i == d-1 {
				break
			}

			q, carry, err := enrichAndOrthogonalize(zc[i], opts.Kick, opts.MaxRank)
			if err != nil {
				return nil, report, err
			}
			zc[i] = q
			zc[i+1], err = absorbCarry(carry, zc[i+1])
			if err != nil {
				return nil, report, err
			}

			phiL = advanceOpInterface(phiL, zc[i], y.cores[i])
			psiL = advanceVecInterface(psiL, zc[i], x.cores[i])
		}

		res, err := divisionResidual(x, y, zc, xNorm)
		if err != nil {
			return nil, report, err
		}
		report.Sweeps = sweep
		report.Residual = res
		if opts.Verbose {
			log.Printf("amen divide: sweep %d, residual %.3e, ranks %v", sweep, res, chainRanks(zc))
		}
		if res < opts.Eps {
			report.Converged = true
			break
		}
	}

	z, err := FromCores(zc)
	if err != nil {
		return nil, report, err
	}
	z, err = z.RoundWith(Options{Eps: opts.Eps, MaxRank: opts.MaxRank})
	if err != nil {
		return nil, report, err
	}
	return z, report, nil
}

// divideSingleCore handles the one-mode case directly: every entry is an
// independent scalar division. A zero divisor entry yields Inf or NaN in the
// quotient, which shows up as a non-finite residual and Converged false.
func divideSingleCore(x, y *Tensor, eps float64, report *Report) (*Tensor, Report, error) {
	n := x.n[0]
	out := dense.Zeros(dense.Shape{1, n, 1}, x.Device())
	xd, yd, od := x.cores[0].Data(), y.cores[0].Data(), out.Data()
	var res2, xNorm2 float64
	for i := range od {
		od[i] = xd[i] / yd[i]
		diff := xd[i] - yd[i]*od[i]
		res2 += diff * diff
		xNorm2 += xd[i] * xd[i]
	}
	res := math.Sqrt(res2)
	if xNorm2 > 0 {
		res /= math.Sqrt(xNorm2)
	}
	report.Sweeps = 1
	report.Residual = res
	report.Converged = res < eps
	z, err := FromCores([]*dense.Dense{out})
	if err != nil {
		return nil, *report, err
	}
	return z, *report, nil
}

// fuseMatrixModes views a TT matrix as a TT tensor with fused modes M_i*N_i.
func fuseMatrixModes(t *Tensor) (*Tensor, error) {
	cores := make([]*dense.Dense, len(t.cores))
	for i, c := range t.cores {
		r, m, n, rNext := c.Shape()[0], c.Shape()[1], c.Shape()[2], c.Shape()[3]
		cores[i] = c.Clone().MustReshape(dense.Shape{r, m * n, rNext})
	}
	return FromCores(cores)
}

// splitMatrixModes undoes fuseMatrixModes for the given row and column modes.
func splitMatrixModes(t *Tensor, rows, cols []int) (*Tensor, error) {
	cores := make([]*dense.Dense, len(t.cores))
	for i, c := range t.cores {
		r, rNext := c.Shape()[0], c.Shape()[2]
		cores[i] = c.Clone().MustReshape(dense.Shape{r, rows[i], cols[i], rNext})
	}
	return FromCores(cores)
}

// rightDivInterfaces builds the right interface stacks for the division
// sweeps: phi[i] (rz_i, ry_i, rz_i) projects diag(y) and psi[i] (rz_i, rx_i)
// projects the right-hand side, both over cores i..d-1.
func rightDivInterfaces(zc, ycores, xcores []*dense.Dense) ([]*dense.Dense, []*dense.Dense, error) {
	d := len(zc)
	phi := make([]*dense.Dense, d+1)
	psi := make([]*dense.Dense, d+1)
	phi[d] = dense.Ones(dense.Shape{1, 1, 1}, zc[0].Device())
	psi[d] = dense.Ones(dense.Shape{1, 1}, zc[0].Device())
	for i := d - 1; i >= 0; i-- {
		phi[i] = retreatOpInterface(phi[i+1], zc[i], ycores[i])
		psi[i] = retreatVecInterface(psi[i+1], zc[i], xcores[i])
	}
	return phi, psi, nil
}

// solveDiagSite solves the local system for one core of z. The operator
// diag(y) is diagonal in the mode index, so the (rz*n*rz') unknowns fall
// apart into n independent (rz*rz') systems.
func solveDiagSite(phiL, phiR, psiL, psiR, ycore, xcore *dense.Dense) (*dense.Dense, error) {
	bz, by := phiL.Shape()[0], phiL.Shape()[1]
	cz, cy := phiR.Shape()[0], phiR.Shape()[1]
	n := ycore.Shape()[1]
	rx, rxN := xcore.Shape()[0], xcore.Shape()[2]

	out := dense.Zeros(dense.Shape{bz, n, cz}, ycore.Device())
	phiLd, phiRd, yd := phiL.Data(), phiR.Data(), ycore.Data()

	// rhs[b,n,q] = sum_p psiL[b,p] x[p,n,q]
	rhs1, err := dense.MatMul(psiL, xcore.MustReshape(dense.Shape{rx, n * rxN}))
	if err != nil {
		return nil, err
	}
	rhs1d, psiRd := rhs1.Data(), psiR.Data()

	dim := bz * cz
	for nn := 0; nn < n; nn++ {
		// m[(b,c),(b2,c2)] = sum_{a,a2} phiL[b,a,b2] y[a,nn,a2] phiR[c,a2,c2]
		m := dense.Zeros(dense.Shape{dim, dim}, ycore.Device())
		md := m.Data()
		for b := 0; b < bz; b++ {
			for b2 := 0; b2 < bz; b2++ {
				for c := 0; c < cz; c++ {
					for c2 := 0; c2 < cz; c2++ {
						v := 0.0
						for a := 0; a < by; a++ {
							pl := phiLd[(b*by+a)*bz+b2]
							if pl == 0 {
								continue
							}
							yBase := (a*n + nn) * cy
							prBase := c * cy
							for a2 := 0; a2 < cy; a2++ {
								v += pl * yd[yBase+a2] * phiRd[(prBase+a2)*cz+c2]
							}
						}
						md[(b*cz+c)*dim+b2*cz+c2] = v
					}
				}
			}
		}

		rhs := dense.Zeros(dense.Shape{dim, 1}, ycore.Device())
		rd := rhs.Data()
		for b := 0; b < bz; b++ {
			for c := 0; c < cz; c++ {
				v := 0.0
				for q := 0; q < rxN; q++ {
					v += rhs1d[(b*n+nn)*rxN+q] * psiRd[c*rxN+q]
				}
				rd[b*cz+c] = v
			}
		}

		sol, err := dense.SolveLS(m, rhs)
		if err != nil {
			return nil, err
		}
		sd, od := sol.Data(), out.Data()
		for b := 0; b < bz; b++ {
			for c := 0; c < cz; c++ {
				od[(b*n+nn)*cz+c] = sd[b*cz+c]
			}
		}
	}
	return out, nil
}

// enrichAndOrthogonalize widens the solved core with random enrichment
// columns and orthogonalizes the result. The carry maps the widened basis
// back onto the original one so the represented tensor is unchanged. The
// widened bond never exceeds maxRank, keeping the local systems bounded on
// slow-converging divisions.
func enrichAndOrthogonalize(c *dense.Dense, kick, maxRank int) (*dense.Dense, *dense.Dense, error) {
	r, n, rNext := c.Shape()[0], c.Shape()[1], c.Shape()[2]
	rows := r * n

	if rNext+kick > maxRank {
		kick = maxRank - rNext
	}
	if kick < 0 {
		kick = 0
	}

	wide := dense.Zeros(dense.Shape{rows, rNext + kick}, c.Device())
	cd, wd := c.Data(), wide.Data()
	for i := 0; i < rows; i++ {
		copy(wd[i*(rNext+kick):i*(rNext+kick)+rNext], cd[i*rNext:(i+1)*rNext])
	}
	if kick > 0 {
		k := dense.Randn(dense.Shape{rows, kick}, c.Device())
		kd := k.Data()
		for i := 0; i < rows; i++ {
			copy(wd[i*(rNext+kick)+rNext:(i+1)*(rNext+kick)], kd[i*kick:(i+1)*kick])
		}
	}

	q, rr, err := dense.QR(wide)
	if err != nil {
		return nil, nil, err
	}
	kNew := q.Shape()[1]
	return q.MustReshape(dense.Shape{r, n, kNew}), rr, nil
}

// absorbCarry pushes the orthogonalization carry into the next core. The
// carry's trailing columns correspond to the enrichment block and meet a
// zero-padded next core, which leaves the train's value intact.
func absorbCarry(carry, next *dense.Dense) (*dense.Dense, error) {
	r, n, rNext := next.Shape()[0], next.Shape()[1], next.Shape()[2]
	wide := carry.Shape()[1]

	padded := dense.Zeros(dense.Shape{wide, n * rNext}, next.Device())
	nd, pd := next.Data(), padded.Data()
	copy(pd[:r*n*rNext], nd)

	prod, err := dense.MatMul(carry, padded)
	if err != nil {
		return nil, err
	}
	return prod.MustReshape(dense.Shape{carry.Shape()[0], n, rNext}), nil
}

// advanceOpInterface extends a left operator interface (rz, ry, rz) by one
// site: phi'[b2,a2,c2] = sum phi[b,a,c] z[b,n,b2] y[a,n,a2] z[c,n,c2].
func advanceOpInterface(phi, zc, ycore *dense.Dense) *dense.Dense {
	bz, by := phi.Shape()[0], phi.Shape()[1]
	n := zc.Shape()[1]
	zNext := zc.Shape()[2]
	yNext := ycore.Shape()[2]

	out := dense.Zeros(dense.Shape{zNext, yNext, zNext}, zc.Device())
	pd, zd, yd, od := phi.Data(), zc.Data(), ycore.Data(), out.Data()
	for b := 0; b < bz; b++ {
		for a := 0; a < by; a++ {
			for c := 0; c < bz; c++ {
				w := pd[(b*by+a)*bz+c]
				if w == 0 {
					continue
				}
				for nn := 0; nn < n; nn++ {
					zbBase := (b*n + nn) * zNext
					zcBase := (c*n + nn) * zNext
					yBase := (a*n + nn) * yNext
					for b2 := 0; b2 < zNext; b2++ {
						wb := w * zd[zbBase+b2]
						if wb == 0 {
							continue
						}
						for a2 := 0; a2 < yNext; a2++ {
							wba := wb * yd[yBase+a2]
							if wba == 0 {
								continue
							}
							dst := od[(b2*yNext+a2)*zNext : (b2*yNext+a2+1)*zNext]
							src := zd[zcBase : zcBase+zNext]
							for c2 := range src {
								dst[c2] += wba * src[c2]
							}
						}
					}
				}
			}
		}
	}
	return out
}

// retreatOpInterface extends a right operator interface by one site from the
// right: phi'[b,a,c] = sum phi[b2,a2,c2] z[b,n,b2] y[a,n,a2] z[c,n,c2].
func retreatOpInterface(phi, zc, ycore *dense.Dense) *dense.Dense {
	zNext, yNext := phi.Shape()[0], phi.Shape()[1]
	bz, n := zc.Shape()[0], zc.Shape()[1]
	by := ycore.Shape()[0]

	out := dense.Zeros(dense.Shape{bz, by, bz}, zc.Device())
	pd, zd, yd, od := phi.Data(), zc.Data(), ycore.Data(), out.Data()
	for b := 0; b < bz; b++ {
		for a := 0; a < by; a++ {
			for c := 0; c < bz; c++ {
				v := 0.0
				for nn := 0; nn < n; nn++ {
					zbBase := (b*n + nn) * zNext
					zcBase := (c*n + nn) * zNext
					yBase := (a*n + nn) * yNext
					for b2 := 0; b2 < zNext; b2++ {
						wb := zd[zbBase+b2]
						if wb == 0 {
							continue
						}
						for a2 := 0; a2 < yNext; a2++ {
							wba := wb * yd[yBase+a2]
							if wba == 0 {
								continue
							}
							base := (b2*yNext + a2) * zNext
							for c2 := 0; c2 < zNext; c2++ {
								v += wba * pd[base+c2] * zd[zcBase+c2]
							}
						}
					}
				}
				od[(b*by+a)*bz+c] = v
			}
		}
	}
	return out
}

// advanceVecInterface extends a left right-hand-side interface (rz, rx) by
// one site: psi'[b2,q] = sum psi[b,p] z[b,n,b2] x[p,n,q].
func advanceVecInterface(psi, zc, xcore *dense.Dense) *dense.Dense {
	bz, px := psi.Shape()[0], psi.Shape()[1]
	n, zNext := zc.Shape()[1], zc.Shape()[2]
	xNext := xcore.Shape()[2]

	out := dense.Zeros(dense.Shape{zNext, xNext}, zc.Device())
	pd, zd, xd, od := psi.Data(), zc.Data(), xcore.Data(), out.Data()
	for b := 0; b < bz; b++ {
		for p := 0; p < px; p++ {
			w := pd[b*px+p]
			if w == 0 {
				continue
			}
			for nn := 0; nn < n; nn++ {
				zBase := (b*n + nn) * zNext
				xBase := (p*n + nn) * xNext
				for b2 := 0; b2 < zNext; b2++ {
					wb := w * zd[zBase+b2]
					if wb == 0 {
						continue
					}
					dst := od[b2*xNext : (b2+1)*xNext]
					src := xd[xBase : xBase+xNext]
					for q := range src {
						dst[q] += wb * src[q]
					}
				}
			}
		}
	}
	return out
}

// retreatVecInterface extends a right right-hand-side interface by one site
// from the right: psi'[b,p] = sum psi[b2,q] z[b,n,b2] x[p,n,q].
func retreatVecInterface(psi, zc, xcore *dense.Dense) *dense.Dense {
	zNext, xNext := psi.Shape()[0], psi.Shape()[1]
	bz, n := zc.Shape()[0], zc.Shape()[1]
	px := xcore.Shape()[0]

	out := dense.Zeros(dense.Shape{bz, px}, zc.Device())
	pd, zd, xd, od := psi.Data(), zc.Data(), xcore.Data(), out.Data()
	for b := 0; b < bz; b++ {
		for p := 0; p < px; p++ {
			v := 0.0
			for nn := 0; nn < n; nn++ {
				zBase := (b*n + nn) * zNext
				xBase := (p*n + nn) * xNext
				for b2 := 0; b2 < zNext; b2++ {
					wb := zd[zBase+b2]
					if wb == 0 {
						continue
					}
					for q := 0; q < xNext; q++ {
						v += wb * pd[b2*xNext+q] * xd[xBase+q]
					}
				}
			}
			od[b*px+p] = v
		}
	}
	return out
}

// divisionResidual evaluates ||x - y .* z|| / ||x|| for the current iterate.
// The difference train is orthogonalized before measuring: the bilinear chain
// cancels catastrophically near convergence and would floor the residual
// around sqrt(machine epsilon).
func divisionResidual(x, y *Tensor, zc []*dense.Dense, xNorm float64) (float64, error) {
	z, err := FromCores(zc)
	if err != nil {
		return 0, err
	}
	yz, err := y.Mul(z)
	if err != nil {
		return 0, err
	}
	diff, err := x.Sub(yz)
	if err != nil {
		return 0, err
	}
	res, err := diff.Norm(NormOrthogonal)
	if err != nil {
		return 0, err
	}
	if xNorm == 0 {
		return res, nil
	}
	return res / xNorm, nil
}
