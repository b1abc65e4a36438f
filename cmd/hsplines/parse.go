package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nainya/hsplines/pkg/hbasis"
)

// parseIndexBox parses LEVEL:LO,..:HI,..
func parseIndexBox(s string) (hbasis.IndexBox, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return hbasis.IndexBox{}, fmt.Errorf("index box %q: want LEVEL:LO,..:HI,..", s)
	}
	level, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return hbasis.IndexBox{}, fmt.Errorf("index box %q: level: %w", s, err)
	}
	lo, err := parseList(parts[1], strconv.Atoi)
	if err != nil {
		return hbasis.IndexBox{}, fmt.Errorf("index box %q: lower: %w", s, err)
	}
	hi, err := parseList(parts[2], strconv.Atoi)
	if err != nil {
		return hbasis.IndexBox{}, fmt.Errorf("index box %q: upper: %w", s, err)
	}
	if len(lo) != len(hi) {
		return hbasis.IndexBox{}, fmt.Errorf("index box %q: corners differ in dimension", s)
	}
	return hbasis.IndexBox{Level: level, Lower: lo, Upper: hi}, nil
}

// parseParamBox parses LO,..:HI,..
func parseParamBox(s string) (hbasis.ParamBox, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return hbasis.ParamBox{}, fmt.Errorf("parameter box %q: want LO,..:HI,..", s)
	}
	parseFloat := func(v string) (float64, error) { return strconv.ParseFloat(v, 64) }
	lo, err := parseList(parts[0], parseFloat)
	if err != nil {
		return hbasis.ParamBox{}, fmt.Errorf("parameter box %q: lower: %w", s, err)
	}
	hi, err := parseList(parts[1], parseFloat)
	if err != nil {
		return hbasis.ParamBox{}, fmt.Errorf("parameter box %q: upper: %w", s, err)
	}
	if len(lo) != len(hi) {
		return hbasis.ParamBox{}, fmt.Errorf("parameter box %q: corners differ in dimension", s)
	}
	return hbasis.ParamBox{Lower: lo, Upper: hi}, nil
}

func parseList[T any](s string, parse func(string) (T, error)) ([]T, error) {
	fields := strings.Split(s, ",")
	out := make([]T, 0, len(fields))
	for _, f := range fields {
		v, err := parse(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
