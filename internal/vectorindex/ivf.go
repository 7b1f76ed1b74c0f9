package vectorindex

// ivfIndex is a lightweight single-level inverted file: vectors are
// assigned to the nearest of k trained centroids, and a query probes only
// the closest two buckets instead of scanning every vector. This is the
// approximate structure spec.md §4.2 requires beyond ~10^4 vectors; it is
// not a tuned production ANN index, just a bucketing layer over the same
// cosine metric used by brute force.
type ivfIndex struct {
	centroids [][]float64
	buckets   [][]int // centroid index -> slot ids assigned to it
}

const ivfProbeBuckets = 2

// buildIVF trains centroids with a small fixed number of Lloyd's-algorithm
// iterations and assigns every vector to its nearest centroid.
func buildIVF(vectors [][]float64, numCentroids int) *ivfIndex {
	n := len(vectors)
	if n == 0 {
		return &ivfIndex{}
	}
	if numCentroids > n {
		numCentroids = n
	}
	if numCentroids < 1 {
		numCentroids = 1
	}

	dim := len(vectors[0])
	centroids := make([][]float64, numCentroids)
	// Deterministic seeding: take evenly spaced vectors rather than random
	// picks, so results are reproducible for a given corpus.
	stride := n / numCentroids
	if stride < 1 {
		stride = 1
	}
	for i := 0; i < numCentroids; i++ {
		src := vectors[(i*stride)%n]
		c := make([]float64, dim)
		copy(c, src)
		centroids[i] = c
	}

	const iterations = 4
	assignment := make([]int, n)
	for iter := 0; iter < iterations; iter++ {
		sums := make([][]float64, numCentroids)
		counts := make([]int, numCentroids)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}

		for vi, v := range vectors {
			best, bestSim := 0, -2.0
			for ci, c := range centroids {
				sim := Cosine(v, c)
				if sim > bestSim {
					best, bestSim = ci, sim
				}
			}
			assignment[vi] = best
			counts[best]++
			for d := 0; d < dim; d++ {
				sums[best][d] += v[d]
			}
		}

		for ci := range centroids {
			if counts[ci] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[ci][d] = sums[ci][d] / float64(counts[ci])
			}
		}
	}

	buckets := make([][]int, numCentroids)
	for slot, ci := range assignment {
		buckets[ci] = append(buckets[ci], slot)
	}

	return &ivfIndex{centroids: centroids, buckets: buckets}
}

// probe returns the slot ids belonging to the closest ivfProbeBuckets
// centroids to query.
func (idx *ivfIndex) probe(query []float64) []int {
	if idx == nil || len(idx.centroids) == 0 {
		return nil
	}

	type scored struct {
		ci  int
		sim float64
	}
	ranked := make([]scored, len(idx.centroids))
	for i, c := range idx.centroids {
		ranked[i] = scored{i, Cosine(query, c)}
	}
	// Small, fixed-size selection sort for the top-N buckets; numCentroids
	// is always small relative to corpus size so this stays cheap.
	probes := ivfProbeBuckets
	if probes > len(ranked) {
		probes = len(ranked)
	}
	for i := 0; i < probes; i++ {
		maxIdx := i
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].sim > ranked[maxIdx].sim {
				maxIdx = j
			}
		}
		ranked[i], ranked[maxIdx] = ranked[maxIdx], ranked[i]
	}

	var slots []int
	for i := 0; i < probes; i++ {
		slots = append(slots, idx.buckets[ranked[i].ci]...)
	}
	return slots
}
