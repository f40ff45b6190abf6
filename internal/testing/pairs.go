package testing

// Pairs returns every unordered pair of provided ids in both orders
// e.g. [1, 2, 3] -> [[1,2], [2,1], [1,3], [3,1], [2,3], [3,2]]
func Pairs(ids []int64) [][2]int64 {
	pairs := make([][2]int64, 0, len(ids)*(len(ids)-1))
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, [2]int64{ids[i], ids[j]}, [2]int64{ids[j], ids[i]})
		}
	}

	return pairs
}
