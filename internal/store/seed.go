package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/talk2me/internal/attempt"
)

// SeedFile is the YAML layout of a seed file.
//
// Example:
//
//	topics:
//	  - id: 1
//	    title: "AI Ethics"
//	    category: "Tech Trends"
//	    difficulty: Medium
//	    description: "Discuss moral implications of AI decision-making."
//	users:
//	  - id: 1
//	    username: demo
//	    email: demo@example.com
type SeedFile struct {
	Topics []attempt.Topic `yaml:"topics"`
	Users  []attempt.User  `yaml:"users"`
}

// DefaultSeed returns the starter topics loaded into an empty memory store.
func DefaultSeed() *SeedFile {
	return &SeedFile{Topics: []attempt.Topic{
		{ID: 1, Title: "AI Ethics", Category: "Tech Trends", Difficulty: attempt.DifficultyMedium,
			Description: "Discuss moral implications of AI decision-making."},
		{ID: 2, Title: "Home Workouts", Category: "Health & Wellness", Difficulty: attempt.DifficultyEasy,
			Description: "Share quick exercise routines without equipment."},
		{ID: 3, Title: "Quantum Computing Basics", Category: "Tech Trends", Difficulty: attempt.DifficultyHard,
			Description: "Explain qubits, superposition, and potential uses."},
		{ID: 4, Title: "Mindful Eating", Category: "Health & Wellness", Difficulty: attempt.DifficultyMedium,
			Description: "Strategies to eat more consciously and healthily."},
	}}
}

// LoadSeedFile reads and validates a seed file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open seed file %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadSeedFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("store: seed file %q: %w", path, err)
	}
	return sf, nil
}

// LoadSeedFromReader parses and validates seed YAML. Unknown keys are
// rejected.
func LoadSeedFromReader(r io.Reader) (*SeedFile, error) {
	var sf SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed yaml: %w", err)
	}
	if err := sf.Validate(); err != nil {
		return nil, err
	}
	return &sf, nil
}

// Validate reports every invalid record at once.
func (sf *SeedFile) Validate() error {
	var errs []error
	for i, t := range sf.Topics {
		if strings.TrimSpace(t.Title) == "" {
			errs = append(errs, fmt.Errorf("topics[%d]: title must not be empty", i))
		}
		if t.Difficulty != "" && !slices.Contains(
			[]string{attempt.DifficultyEasy, attempt.DifficultyMedium, attempt.DifficultyHard}, t.Difficulty) {
			errs = append(errs, fmt.Errorf("topics[%d]: difficulty %q is not Easy, Medium or Hard", i, t.Difficulty))
		}
	}
	for i, u := range sf.Users {
		if strings.TrimSpace(u.Username) == "" {
			errs = append(errs, fmt.Errorf("users[%d]: username must not be empty", i))
		}
	}
	return errors.Join(errs...)
}

// Seed inserts the records of sf into s, skipping ones that already exist.
// It returns how many records were created.
func Seed(ctx context.Context, s Store, sf *SeedFile) (int, error) {
	if sf == nil {
		return 0, errors.New("store: seed file must not be nil")
	}
	n := 0
	for _, t := range sf.Topics {
		_, err := s.CreateTopic(ctx, t)
		switch {
		case errors.Is(err, attempt.ErrDuplicate):
		case err != nil:
			return n, fmt.Errorf("store: seed topic %q: %w", t.Title, err)
		default:
			n++
		}
	}
	for _, u := range sf.Users {
		_, err := s.CreateUser(ctx, u)
		switch {
		case errors.Is(err, attempt.ErrDuplicate):
		case err != nil:
			return n, fmt.Errorf("store: seed user %q: %w", u.Username, err)
		default:
			n++
		}
	}
	return n, nil
}
