package dng

// Matrix is a row-major 3x3 matrix used for the colorimetric calibration
// fields. It is a value type; all operations return new matrices.
type Matrix [9]float64

// NewDiagonal returns a diagonal matrix.
func NewDiagonal(d0, d1, d2 float64) Matrix {
	return Matrix{d0, 0, 0, 0, d1, 0, 0, 0, d2}
}

// Identity returns the identity matrix.
func Identity() Matrix {
	return NewDiagonal(1, 1, 1)
}

// Mul returns m * other.
func (m Matrix) Mul(other Matrix) Matrix {
	var r Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = m[i*3]*other[j] + m[i*3+1]*other[3+j] + m[i*3+2]*other[6+j]
		}
	}
	return r
}

// MulScalar returns m scaled by f.
func (m Matrix) MulScalar(f float64) Matrix {
	var r Matrix
	for i := range m {
		r[i] = m[i] * f
	}
	return r
}

// Transpose returns the transpose of m.
func (m Matrix) Transpose() Matrix {
	return Matrix{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

// Cofactor returns the cofactor matrix of m.
func (m Matrix) Cofactor() Matrix {
	return Matrix{
		m[4]*m[8] - m[5]*m[7], -(m[3]*m[8] - m[5]*m[6]), m[3]*m[7] - m[4]*m[6],
		-(m[1]*m[8] - m[2]*m[7]), m[0]*m[8] - m[2]*m[6], -(m[0]*m[7] - m[1]*m[6]),
		m[1]*m[5] - m[2]*m[4], -(m[0]*m[5] - m[2]*m[3]), m[0]*m[4] - m[1]*m[3],
	}
}

// Adjugate returns the adjugate (transposed cofactor) matrix of m.
func (m Matrix) Adjugate() Matrix {
	return m.Cofactor().Transpose()
}

// Det returns the determinant of m.
func (m Matrix) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse returns the inverse of m. The caller guarantees m is invertible;
// a singular matrix produces Inf/NaN entries.
func (m Matrix) Inverse() Matrix {
	return m.Adjugate().MulScalar(1.0 / m.Det())
}
