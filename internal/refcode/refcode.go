// Package refcode issues the human-readable reference codes that citizens
// use to track a report without authenticating.
package refcode

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/roadwatch/roadwatch-go/internal/errors"
)

const (
	// Prefix identifies pothole incident references.
	Prefix = "PH"

	suffixLen           = 6
	suffixAlpha         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxGenerateAttempts = 100
)

// ExistsFunc reports whether a reference is already taken.
type ExistsFunc func(reference string) (bool, error)

// Generator issues unique references of the form PH-<year>-<random suffix>.
type Generator struct {
	exists ExistsFunc
	now    func() time.Time
	pick   func(n int) int
}

// NewGenerator returns a generator that checks candidates against exists
// before handing them out.
func NewGenerator(exists ExistsFunc) *Generator {
	return &Generator{
		exists: exists,
		now:    time.Now,
		pick:   rand.IntN,
	}
}

// Generate returns a fresh reference, re-rolling on collision.
func (g *Generator) Generate() (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate := g.roll()
		taken, err := g.exists(candidate)
		if err != nil {
			return "", errors.New(err).
				Component("refcode").
				Category(errors.CategoryDatabase).
				Context("candidate", candidate).
				Build()
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.Newf("exhausted %d attempts generating a unique reference", maxGenerateAttempts).
		Component("refcode").
		Category(errors.CategoryProcessing).
		Build()
}

func (g *Generator) roll() string {
	var sb strings.Builder
	sb.Grow(suffixLen)
	for i := 0; i < suffixLen; i++ {
		sb.WriteByte(suffixAlpha[g.pick(len(suffixAlpha))])
	}
	return fmt.Sprintf("%s-%d-%s", Prefix, g.now().Year(), sb.String())
}

// Valid reports whether s is syntactically a reference this package could
// have issued. It does not consult the store.
func Valid(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != Prefix {
		return false
	}
	if len(parts[1]) != 4 {
		return false
	}
	for _, c := range parts[1] {
		if c < '0' || c > '9' {
			return false
		}
	}
	if len(parts[2]) != suffixLen {
		return false
	}
	for _, c := range parts[2] {
		if !strings.ContainsRune(suffixAlpha, c) {
			return false
		}
	}
	return true
}
