// Package bspline implements univariate and tensor-product B-spline bases
package bspline

import "errors"

var (
	// ErrInvalidKnots indicates a knot vector that is too short or decreasing
	ErrInvalidKnots = errors.New("bspline: invalid knot vector")

	// ErrInvalidDegree indicates a degree incompatible with the knot vector
	ErrInvalidDegree = errors.New("bspline: invalid degree")

	// ErrDimension indicates mismatched dimensions between arguments
	ErrDimension = errors.New("bspline: dimension mismatch")
)
