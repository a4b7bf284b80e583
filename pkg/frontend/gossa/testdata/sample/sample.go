package sample

func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func Must(err error) {
	if err != nil {
		panic(err)
	}
}
