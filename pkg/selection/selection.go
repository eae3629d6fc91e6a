// Package selection turns the free-form VM selection typed by an operator
// ("1,3,5-7") into a validated, deduplicated, ascending list of ordinals.
package selection

import (
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

// Parse validates expr against an inventory of inventorySize VMs.
//
// Grammar: comma-separated tokens, each either n or a-b with a <= b.
// Whitespace around tokens is ignored and duplicates are merged. An empty
// expr selects nothing.
func Parse(expr string, inventorySize int) ([]int, error) {
	selected := sets.New[int]()
	if strings.TrimSpace(expr) == "" {
		return []int{}, nil
	}

	for _, raw := range strings.Split(expr, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			return nil, srvErrors.NewMalformedSelectionError(raw, "empty entry")
		}

		lo, hi, err := parseToken(token)
		if err != nil {
			return nil, err
		}

		// bounds are checked before expansion so "1-999999999" never allocates
		for _, bound := range []int{lo, hi} {
			if bound < 1 || bound > inventorySize {
				return nil, srvErrors.NewOutOfRangeError(bound, inventorySize)
			}
		}

		for n := lo; n <= hi; n++ {
			selected.Insert(n)
		}
	}

	return sets.List(selected), nil
}

func parseToken(token string) (int, int, error) {
	left, right, isRange := strings.Cut(token, "-")
	if !isRange {
		n, err := parseOrdinal(token, token)
		return n, n, err
	}

	lo, err := parseOrdinal(token, strings.TrimSpace(left))
	if err != nil {
		return 0, 0, err
	}
	hi, err := parseOrdinal(token, strings.TrimSpace(right))
	if err != nil {
		return 0, 0, err
	}
	if lo > hi {
		return 0, 0, srvErrors.NewMalformedSelectionError(token, "range start is greater than range end")
	}
	return lo, hi, nil
}

func parseOrdinal(token, s string) (int, error) {
	if s == "" {
		return 0, srvErrors.NewMalformedSelectionError(token, "missing number")
	}
	// reject signs so "+3" and "-3" are not read as numbers
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, srvErrors.NewMalformedSelectionError(token, "not a positive integer")
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, srvErrors.NewMalformedSelectionError(token, "not a positive integer")
	}
	return n, nil
}
