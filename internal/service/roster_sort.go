package service

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/stemsi/checkio-backend/internal/model"
)

// Roster sort fields. The primary field is compared first and is the only
// one the direction applies to; the rest break ties ascending.
var (
	studentSortChain = []string{"lastName", "firstName", "grade"}
	userSortChain    = []string{"lastName", "firstName", "role", "children"}
)

func newNameCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase)
}

// sortStudentsByName orders by last name, then first name.
func sortStudentsByName(students []model.Student) {
	cl := newNameCollator()
	slices.SortStableFunc(students, func(a, b model.Student) int {
		if c := cl.CompareString(a.LastName, b.LastName); c != 0 {
			return c
		}
		return cl.CompareString(a.FirstName, b.FirstName)
	})
}

func chainFor(chain []string, primary string) []string {
	if !slices.Contains(chain, primary) {
		primary = chain[0]
	}
	out := []string{primary}
	for _, f := range chain {
		if f != primary {
			out = append(out, f)
		}
	}
	return out
}

func sortStudentRows(rows []model.StudentWithParents, field, dir string) {
	cl := newNameCollator()
	chain := chainFor(studentSortChain, field)

	slices.SortStableFunc(rows, func(a, b model.StudentWithParents) int {
		for i, f := range chain {
			var c int
			switch f {
			case "lastName":
				c = cl.CompareString(a.LastName, b.LastName)
			case "firstName":
				c = cl.CompareString(a.FirstName, b.FirstName)
			case "grade":
				c = compareGrades(cl, a.Grade, b.Grade)
			}
			if i == 0 && dir == "desc" {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// compareGrades compares numerically when both grades are numbers, as text
// otherwise. An empty grade counts as 0 next to a number.
func compareGrades(cl *collate.Collator, a, b string) int {
	na, errA := gradeNumber(a)
	nb, errB := gradeNumber(b)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return cl.CompareString(a, b)
}

func gradeNumber(g string) (float64, error) {
	g = strings.TrimSpace(g)
	if g == "" {
		return 0, nil
	}
	return strconv.ParseFloat(g, 64)
}

// sortUsers orders users. "children" puts parents with children first,
// "children-no" puts users without children first.
func sortUsers(users []model.User, field, dir string) {
	cl := newNameCollator()
	primary := field
	if strings.HasPrefix(field, "children") {
		primary = "children"
	}
	chain := chainFor(userSortChain, primary)
	childrenFirst := field != "children-no"

	slices.SortStableFunc(users, func(a, b model.User) int {
		for i, f := range chain {
			var c int
			switch f {
			case "lastName":
				c = cl.CompareString(a.LastName, b.LastName)
			case "firstName":
				c = cl.CompareString(a.FirstName, b.FirstName)
			case "role":
				c = cl.CompareString(string(a.Role), string(b.Role))
			case "children":
				c = compareHasChildren(len(a.ChildIDs) > 0, len(b.ChildIDs) > 0, childrenFirst)
			}
			if i == 0 && dir == "desc" {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareHasChildren(a, b, childrenFirst bool) int {
	if a == b {
		return 0
	}
	if a == childrenFirst {
		return -1
	}
	return 1
}
