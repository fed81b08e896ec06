package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
)

// Columns every player CSV must carry. An "id" column is optional; when it is
// absent players are numbered 1..n in file order.
var requiredColumns = []string{"name", "role", "runs", "wickets", "strike_rate", "price"}

// CSVError points at the offending row of a player file.
type CSVError struct {
	Line int
	Err  error
}

func (e *CSVError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("players csv line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("players csv: %v", e.Err)
}

func (e *CSVError) Unwrap() error {
	return e.Err
}

var ErrEmptyFile = errors.New("csv file is empty")

// CSVStore reads players from a CSV file on every load.
type CSVStore struct {
	path string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Path() string {
	return s.path
}

func (s *CSVStore) LoadPlayers(ctx context.Context) ([]models.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("player data file not found: %s: %w", s.path, err)
		}
		return nil, fmt.Errorf("failed to open player data file: %w", err)
	}
	defer f.Close()

	return ParsePlayers(f)
}

func (s *CSVStore) Source() string {
	return SourceCSV
}

// ParsePlayers reads and validates a player CSV. Header names are matched
// case-insensitively and may appear in any order.
func ParsePlayers(r io.Reader) ([]models.Player, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &CSVError{Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, &CSVError{Err: fmt.Errorf("error reading header: %w", err)}
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &CSVError{Err: fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))}
	}
	idCol, hasID := cols["id"]

	var players []models.Player
	names := make(map[string]int)
	ids := make(map[uint]int)
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &CSVError{Line: line, Err: err}
		}

		field := func(name string) string {
			return strings.TrimSpace(record[cols[name]])
		}

		p := models.Player{Name: field("name")}
		if p.Role, err = models.ParseRole(field("role")); err != nil {
			return nil, &CSVError{Line: line, Err: err}
		}
		if p.Runs, err = parseInt(field("runs"), "runs"); err != nil {
			return nil, &CSVError{Line: line, Err: err}
		}
		if p.Wickets, err = parseInt(field("wickets"), "wickets"); err != nil {
			return nil, &CSVError{Line: line, Err: err}
		}
		if p.StrikeRate, err = parseFloat(field("strike_rate"), "strike_rate"); err != nil {
			return nil, &CSVError{Line: line, Err: err}
		}
		if p.Price, err = parseFloat(field("price"), "price"); err != nil {
			return nil, &CSVError{Line: line, Err: err}
		}

		if hasID {
			raw := strings.TrimSpace(record[idCol])
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || id == 0 {
				return nil, &CSVError{Line: line, Err: fmt.Errorf("invalid id %q", raw)}
			}
			p.ID = uint(id)
			if prev, dup := ids[p.ID]; dup {
				return nil, &CSVError{Line: line, Err: fmt.Errorf("duplicate id %d (first seen on line %d)", p.ID, prev)}
			}
			ids[p.ID] = line
		} else {
			p.ID = uint(len(players) + 1)
		}

		if err := p.Validate(); err != nil {
			return nil, &CSVError{Line: line, Err: err}
		}
		if prev, dup := names[p.Name]; dup {
			return nil, &CSVError{Line: line, Err: fmt.Errorf("duplicate player name %q (first seen on line %d)", p.Name, prev)}
		}
		names[p.Name] = line

		players = append(players, p)
	}

	if len(players) == 0 {
		return nil, &CSVError{Err: ErrEmptyFile}
	}
	return players, nil
}

func parseInt(raw, column string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		// accept "12.0" style exports
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("invalid %s value %q", column, raw)
		}
		v = int(f)
	}
	return v, nil
}

func parseFloat(raw, column string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s value %q", column, raw)
	}
	return v, nil
}

// WritePlayers renders players, including their computed score, as CSV.
func WritePlayers(w io.Writer, players []models.Player) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"id", "name", "role", "runs", "wickets", "strike_rate", "price", "score"}); err != nil {
		return err
	}
	for _, p := range players {
		row := []string{
			strconv.FormatUint(uint64(p.ID), 10),
			p.Name,
			p.Role.String(),
			strconv.Itoa(p.Runs),
			strconv.Itoa(p.Wickets),
			strconv.FormatFloat(p.StrikeRate, 'f', -1, 64),
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			strconv.FormatFloat(p.Score, 'f', 2, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportCSV is WritePlayers into a byte slice.
func ExportCSV(players []models.Player) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePlayers(&buf, players); err != nil {
		return nil, fmt.Errorf("failed to export players: %w", err)
	}
	return buf.Bytes(), nil
}
