package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
)

const bundledCSV = "../../data/players.csv"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--csv", bundledCSV, "--log-level", "panic"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestOptimizeCommand_JSON(t *testing.T) {
	out, err := execute(t, "--budget", "153", "-o", "json")
	require.NoError(t, err)

	var res optimizer.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Players, 11)
	assert.InDelta(t, 153.0, res.TotalCost, 1e-9)
	assert.Equal(t, optimizer.StrategyMaxScore, res.Strategy)
}

func TestOptimizeCommand_Table(t *testing.T) {
	out, err := execute(t, "--budget", "250", "--strategy", "max_score_per_cost", "--roles", "WK=1,BAT=4,BOWL=3,ALL=3")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Strategy:   MAX_SCORE_PER_COST")
	assert.Contains(t, out, "WK=1 BAT=4 BOWL=3 ALL=3")
}

func TestOptimizeCommand_CSV(t *testing.T) {
	out, err := execute(t, "--budget", "200", "--team-size", "5", "-o", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 6)
}

func TestOptimizeCommand_Errors(t *testing.T) {
	_, err := execute(t, "--budget", "50")
	var ierr *optimizer.InfeasibleError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 3, exitCode(err))

	_, err = execute(t, "--budget", "150", "--strategy", "cheapest")
	var verr *optimizer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "--budget", "150", "--roles", "CAPTAIN=11")
	require.ErrorAs(t, err, &verr)

	_, err = execute(t, "--budget", "150", "-o", "xml")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	_, err = execute(t)
	assert.Error(t, err, "budget is required")
}
