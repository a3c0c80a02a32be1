package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/syssam/graft"
)

// Cast converts a payload value before validation. Casts only run on fields
// present with a non-nil value.
type Cast func(v any) (any, error)

// Built-in casts.
var (
	CastPassword = PasswordCast(bcrypt.DefaultCost)
	CastDate     Cast = castDate
	CastDateTime Cast = castDateTime
	CastMoney    Cast = castMoney
)

// PasswordCast returns a Cast replacing a string with its bcrypt hash.
func PasswordCast(cost int) Cast {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("password: unexpected type %T", v)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s), cost)
		if err != nil {
			return nil, fmt.Errorf("password: %w", err)
		}
		return string(hash), nil
	}
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func castDate(v any) (any, error) {
	t, err := parseTime(v)
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
}

func castDateTime(v any) (any, error) {
	t, err := parseTime(v)
	if err != nil {
		return nil, fmt.Errorf("datetime: %w", err)
	}
	return t, nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q", t)
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
}

// castMoney converts an amount to integer cents.
func castMoney(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("money: %w", err)
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case uint, uint64:
		k, ok := graft.NormalizeKey(v).(int64)
		if !ok {
			return nil, fmt.Errorf("money: %v out of range", v)
		}
		return cents(k)
	default:
		k, ok := graft.NormalizeKey(v).(int64)
		if !ok {
			return nil, fmt.Errorf("money: unexpected type %T", v)
		}
		return cents(k)
	}
	c := math.Round(f * 100)
	if math.IsNaN(c) || c >= math.MaxInt64 || c < math.MinInt64 {
		return nil, fmt.Errorf("money: %v out of range", v)
	}
	return int64(c), nil
}

func cents(k int64) (any, error) {
	if k > math.MaxInt64/100 || k < math.MinInt64/100 {
		return nil, fmt.Errorf("money: %d out of range", k)
	}
	return k * 100, nil
}

// applyCasts returns a copy of p with casts applied.
func applyCasts(p graft.Payload, casts map[string]Cast) (graft.Payload, error) {
	if len(casts) == 0 {
		return p, nil
	}
	out := p.Clone()
	for field, cast := range casts {
		v, ok := out[field]
		if !ok || v == nil {
			continue
		}
		cv, err := cast(v)
		if err != nil {
			return nil, fmt.Errorf("cast %s: %w", field, err)
		}
		out[field] = cv
	}
	return out, nil
}
