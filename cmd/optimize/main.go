package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps optimizer error kinds to distinct statuses for scripting.
func exitCode(err error) int {
	var (
		verr *optimizer.ValidationError
		ierr *optimizer.InfeasibleError
	)
	switch {
	case errors.As(err, &verr):
		return 2
	case errors.As(err, &ierr):
		return 3
	}
	return 1
}
