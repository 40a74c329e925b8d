// Package command parses and runs servo command lines of the form
//
//	run_target id=1 speed=500 target=90 then=hold
//
// The first word names the command and the rest are key=value arguments.
// Angles are in degrees, speeds in degrees per second and times in
// milliseconds. Decimal fractions down to a thousandth are accepted.
package command

import (
	"github.com/pkg/errors"

	"gobricks/core"
)

// Arg is one key=value pair.
type Arg struct {
	Key   string
	Value string
}

// Line is a parsed command line.
type Line struct {
	Verb string
	Args []Arg
}

// ParseLine splits a command line into its verb and arguments. Blank lines
// and lines starting with '#' parse to an empty Line.
func ParseLine(line string) (Line, error) {
	var l Line
	i := 0
	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) || line[i] == '#' {
			break
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		word := line[start:i]
		if l.Verb == "" {
			if indexByte(word, '=') >= 0 {
				return Line{}, errors.Wrapf(core.ErrInvalidArgument, "missing command before %q", word)
			}
			l.Verb = toLower(word)
			continue
		}
		eq := indexByte(word, '=')
		if eq <= 0 || eq == len(word)-1 {
			return Line{}, errors.Wrapf(core.ErrInvalidArgument, "argument %q is not key=value", word)
		}
		key := toLower(word[:eq])
		if _, dup := l.Lookup(key); dup {
			return Line{}, errors.Wrapf(core.ErrInvalidArgument, "argument %q given twice", key)
		}
		l.Args = append(l.Args, Arg{Key: key, Value: word[eq+1:]})
	}
	return l, nil
}

// IsEmpty reports whether the line had no command.
func (l Line) IsEmpty() bool {
	return l.Verb == ""
}

// Lookup returns the value of key.
func (l Line) Lookup(key string) (string, bool) {
	for _, a := range l.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Milli returns the value of key scaled by 1000, or def if it is absent.
func (l Line) Milli(key string, def int64) (int64, error) {
	v, ok := l.Lookup(key)
	if !ok {
		return def, nil
	}
	n, err := ParseMilli(v)
	return n, errors.Wrapf(err, "%s", key)
}

// Int returns the integer value of key, or def if it is absent.
func (l Line) Int(key string, def int64) (int64, error) {
	v, ok := l.Lookup(key)
	if !ok {
		return def, nil
	}
	n, err := ParseMilli(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	if n%1000 != 0 {
		return 0, errors.Wrapf(core.ErrInvalidArgument, "%s=%s is not a whole number", key, v)
	}
	return n / 1000, nil
}

// Require fails if any of keys is absent.
func (l Line) Require(keys ...string) error {
	for _, k := range keys {
		if _, ok := l.Lookup(k); !ok {
			return errors.Wrapf(core.ErrInvalidArgument, "%s needs %s=", l.Verb, k)
		}
	}
	return nil
}

// Only fails if the line has arguments other than keys.
func (l Line) Only(keys ...string) error {
	for _, a := range l.Args {
		found := false
		for _, k := range keys {
			if a.Key == k {
				found = true
				break
			}
		}
		if !found {
			return errors.Wrapf(core.ErrInvalidArgument, "%s does not take %s=", l.Verb, a.Key)
		}
	}
	return nil
}

// maxMilli keeps parsed values well inside int64 after scaling.
const maxMilli = 1 << 53

// ParseMilli parses a decimal number with up to three fractional digits and
// returns it multiplied by 1000.
func ParseMilli(s string) (int64, error) {
	i := 0
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	var v int64
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		v = v*10 + int64(s[i]-'0')
		if v > maxMilli/1000 {
			return 0, errors.Wrapf(core.ErrInvalidArgument, "%q out of range", s)
		}
		digits++
		i++
	}
	v *= 1000
	if i < len(s) && s[i] == '.' {
		i++
		scale := int64(100)
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			if scale == 0 {
				return 0, errors.Wrapf(core.ErrInvalidArgument, "%q has more than three decimals", s)
			}
			v += int64(s[i]-'0') * scale
			scale /= 10
			digits++
			i++
		}
	}
	if digits == 0 || i != len(s) {
		return 0, errors.Wrapf(core.ErrInvalidArgument, "%q is not a number", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
