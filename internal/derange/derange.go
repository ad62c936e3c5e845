// Package derange assigns every participant a distinct giftee such that
// nobody is assigned to themselves (a derangement of the participant set).
package derange

import (
	crand "crypto/rand"
	"errors"
	"math/big"
	"sort"
)

// ErrTooFewParticipants is returned when fewer than two ids are given; no
// derangement exists for a single participant.
var ErrTooFewParticipants = errors.New("at least two participants required")

// maxAttempts bounds the random shuffle phase before falling back to the
// deterministic rotation.
const maxAttempts = 10

// shuffleFn is swappable in tests to force the fallback path.
var shuffleFn = secureShuffle

// Assign returns a map from each id to a distinct other id in ids, forming a
// bijection with no fixed point. Random shuffles are tried first; if every
// attempt pairs someone with themselves, a sorted cyclic rotation is used,
// which is a valid derangement for any set of two or more ids.
func Assign(ids []string) (map[string]string, error) {
	if len(ids) < 2 {
		return nil, ErrTooFewParticipants
	}

	givers := append([]string(nil), ids...)
	shuffleFn(givers)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		receivers := append([]string(nil), ids...)
		shuffleFn(receivers)

		if valid(givers, receivers) {
			out := make(map[string]string, len(ids))
			for i, g := range givers {
				out[g] = receivers[i]
			}
			return out, nil
		}
	}

	return rotation(ids), nil
}

func valid(givers, receivers []string) bool {
	for i := range givers {
		if givers[i] == receivers[i] {
			return false
		}
	}
	return true
}

// rotation maps each id to its successor in sorted order, wrapping around.
func rotation(ids []string) map[string]string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make(map[string]string, len(sorted))
	for i, id := range sorted {
		out[id] = sorted[(i+1)%len(sorted)]
	}
	return out
}

// secureShuffle is a Fisher-Yates shuffle driven by crypto/rand.
func secureShuffle(s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := secureIntn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

func secureIntn(n int) int {
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform source is broken;
		// degrade to a fixed index rather than panic, the rotation
		// fallback still guarantees a valid result.
		return 0
	}
	return int(v.Int64())
}
