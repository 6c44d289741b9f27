package razy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CompileRoute compiles a route pattern into an anchored regular
// expression. The pattern DSL supports, outside quoted literal spans:
//
//	:w          one or more word characters
//	:d          one or more digits
//	:a          one or more of any character except the path separator
//	:[set]      one or more characters of the named class
//	{min,max}   repetition bounds, valid immediately after a class token
//
// Single- or double-quoted spans are matched literally, quotes removed.
// Every class token captures its match as one path argument.
func CompileRoute(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidRoutePattern, pattern)
	}
	if !strings.HasSuffix(pattern, "/") {
		pattern += "/"
	}

	var b strings.Builder
	b.WriteString("^")

	rs := []rune(pattern)
	for i := 0; i < len(rs); {
		switch rs[i] {
		case '"', '\'':
			quote := rs[i]
			end := -1
			for j := i + 1; j < len(rs); j++ {
				if rs[j] == quote {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("%w: %q has an unterminated quote", ErrInvalidRoutePattern, pattern)
			}
			b.WriteString(regexp.QuoteMeta(string(rs[i+1 : end])))
			i = end + 1

		case ':':
			frag, next, err := compileClass(pattern, rs, i)
			if err != nil {
				return nil, err
			}
			b.WriteString(frag)
			i = next

		default:
			b.WriteString(regexp.QuoteMeta(string(rs[i])))
			i++
		}
	}

	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %s", ErrInvalidRoutePattern, pattern, err)
	}
	return re, nil
}

// compileClass translates one class token starting at rs[i] (the colon)
// into a capturing fragment, consuming an optional repetition suffix.
func compileClass(pattern string, rs []rune, i int) (string, int, error) {
	if i+1 >= len(rs) {
		return "", 0, fmt.Errorf("%w: %q ends with a bare colon", ErrInvalidRoutePattern, pattern)
	}

	var class string
	next := i + 2
	switch rs[i+1] {
	case 'w':
		class = `\w`
	case 'd':
		class = `\d`
	case 'a':
		class = `[^/]`
	case '[':
		end := -1
		for j := i + 2; j < len(rs); j++ {
			if rs[j] == ']' {
				end = j
				break
			}
		}
		if end < 0 || end == i+2 {
			return "", 0, fmt.Errorf("%w: %q has a malformed character class", ErrInvalidRoutePattern, pattern)
		}
		set := string(rs[i+2 : end])
		if strings.ContainsRune(set, '/') {
			return "", 0, fmt.Errorf("%w: %q class may not contain the path separator", ErrInvalidRoutePattern, pattern)
		}
		class = "[" + set + "]"
		next = end + 1
	default:
		return "", 0, fmt.Errorf("%w: %q has unknown class :%c", ErrInvalidRoutePattern, pattern, rs[i+1])
	}

	repeat := "+"
	if next < len(rs) && rs[next] == '{' {
		end := -1
		for j := next + 1; j < len(rs); j++ {
			if rs[j] == '}' {
				end = j
				break
			}
		}
		if end < 0 {
			return "", 0, fmt.Errorf("%w: %q has an unterminated repetition", ErrInvalidRoutePattern, pattern)
		}
		bounds := strings.SplitN(string(rs[next+1:end]), ",", 2)
		if len(bounds) != 2 {
			return "", 0, fmt.Errorf("%w: %q repetition needs min,max", ErrInvalidRoutePattern, pattern)
		}
		minRep, errMin := strconv.Atoi(strings.TrimSpace(bounds[0]))
		maxRep, errMax := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if errMin != nil || errMax != nil || minRep < 0 || maxRep < minRep {
			return "", 0, fmt.Errorf("%w: %q has invalid repetition bounds", ErrInvalidRoutePattern, pattern)
		}
		repeat = fmt.Sprintf("{%d,%d}", minRep, maxRep)
		next = end + 1
	}

	return "(" + class + repeat + ")", next, nil
}
