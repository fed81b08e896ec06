package optimizer

import "fmt"

func errValueCount(got, want int) error {
	return fmt.Errorf("solver returned %d values for %d variables", got, want)
}

func errBrokenTeam(selected int, cost float64) error {
	return fmt.Errorf("solver selected %d players costing %.2f", selected, cost)
}
