package search

import (
	"math/rand"
	"regexp"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/car-scanner/internal/models"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestFingerprintShape(t *testing.T) {
	fp := Fingerprint(models.SearchCriteria{Make: "bmw"}, []string{"bat"})
	if !hexDigest.MatchString(fp) {
		t.Errorf("Fingerprint() = %q, want 64 lowercase hex characters", fp)
	}
}

func TestFingerprintPlatformOrderInvariance(t *testing.T) {
	criteria := models.SearchCriteria{Make: "bmw", Model: "m3", YearFrom: 2015}

	a := Fingerprint(criteria, []string{"bat", "carsandbids"})
	b := Fingerprint(criteria, []string{"carsandbids", "bat"})

	if a != b {
		t.Errorf("Fingerprint differs across platform permutations:\n  %s\n  %s", a, b)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	criteria := models.SearchCriteria{Make: "porsche", Model: "911", Keyword: "turbo"}
	platforms := []string{"bat", "carsandbids", "cargurus"}

	first := Fingerprint(criteria, platforms)
	for i := 0; i < 10; i++ {
		if got := Fingerprint(criteria, platforms); got != first {
			t.Fatalf("Fingerprint() not deterministic: %s vs %s", got, first)
		}
	}
}

func TestFingerprintDistinguishesCriteria(t *testing.T) {
	platforms := []string{"bat"}

	tests := []struct {
		name string
		a    models.SearchCriteria
		b    models.SearchCriteria
	}{
		{
			name: "different make",
			a:    models.SearchCriteria{Make: "bmw"},
			b:    models.SearchCriteria{Make: "audi"},
		},
		{
			name: "model set vs unset",
			a:    models.SearchCriteria{Make: "bmw"},
			b:    models.SearchCriteria{Make: "bmw", Model: "m3"},
		},
		{
			name: "different year bounds",
			a:    models.SearchCriteria{Make: "bmw", YearFrom: 2010},
			b:    models.SearchCriteria{Make: "bmw", YearFrom: 2015},
		},
		{
			name: "different time filter",
			a:    models.SearchCriteria{Make: "bmw", TimeFilter: models.TimeFilter1Y},
			b:    models.SearchCriteria{Make: "bmw", TimeFilter: models.TimeFilterAll},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Fingerprint(tt.a, platforms) == Fingerprint(tt.b, platforms) {
				t.Error("Fingerprint() collided for distinct criteria")
			}
		})
	}
}

func TestFingerprintDistinguishesPlatformSets(t *testing.T) {
	criteria := models.SearchCriteria{Make: "bmw"}

	a := Fingerprint(criteria, []string{"bat"})
	b := Fingerprint(criteria, []string{"bat", "carsandbids"})

	if a == b {
		t.Error("Fingerprint() collided for different platform sets")
	}
}

func TestFingerprintDoesNotMutateInput(t *testing.T) {
	platforms := []string{"carsandbids", "bat", "autotrader"}
	Fingerprint(models.SearchCriteria{Make: "bmw"}, platforms)

	want := []string{"carsandbids", "bat", "autotrader"}
	for i := range want {
		if platforms[i] != want[i] {
			t.Fatalf("Fingerprint() reordered caller slice: %v", platforms)
		}
	}
}

// Property: any permutation of the same platform set hashes identically
func TestFingerprintPermutationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	pool := []string{
		"bat", "carsandbids", "autotrader", "carscom",
		"cargurus", "mobilede", "autoscout24", "kleinanzeigen",
	}

	properties.Property("platform permutations hash identically", prop.ForAll(
		func(mask uint8, seed int64) bool {
			var platforms []string
			for i, key := range pool {
				if mask&(1<<uint(i)) != 0 {
					platforms = append(platforms, key)
				}
			}

			shuffled := make([]string, len(platforms))
			copy(shuffled, platforms)
			rng := rand.New(rand.NewSource(seed))
			rng.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			criteria := models.SearchCriteria{Make: "porsche", Model: "911", YearFrom: 2000}
			return Fingerprint(criteria, platforms) == Fingerprint(criteria, shuffled)
		},
		gen.UInt8(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
