package main

import "errors"

var (
	errInvalidLatLon  = errors.New("elevationd: invalid lat/lon query parameters")
	errOutOfCoverage  = errors.New("elevationd: location is outside model coverage")
	errJobNotFound    = errors.New("elevationd: unknown bulk job id")
)
