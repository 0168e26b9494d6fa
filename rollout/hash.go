// Package rollout assigns actors to stable percentage buckets for gradual
// feature rollout. The assignment is consistent: the same (actor, feature)
// pair lands in the same bucket on every call, in every process.
package rollout

// Bucket hashes an actor against a feature key into [0,100). A feature rolled
// out at p percent admits exactly the actors whose bucket is below p, so
// raising the percentage only ever adds actors, never churns them.
//
// The hash is djb2 over "actorID:featureKey". Including the feature key keeps
// two unrelated rollouts from admitting the same slice of the user base.
func Bucket(actorID, featureKey string) int {
	h := int32(5381)
	key := actorID + ":" + featureKey
	for i := 0; i < len(key); i++ {
		h = h*33 + int32(key[i])
	}
	// Widen before negating: -MinInt32 does not fit in an int32.
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % 100)
}
