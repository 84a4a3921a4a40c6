package quiz

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/raphaelgruber/quizdeck/internal/artifact"
	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/models"
)

// ErrNotFound is returned by Store.Load when no quiz exists for a source.
var ErrNotFound = errors.New("quiz not found")

// Store persists validated quiz sets under processed/<source_id>.json.
type Store struct {
	paths config.Paths
}

// NewStore creates a store over the given artifact layout.
func NewStore(paths config.Paths) *Store {
	return &Store{paths: paths}
}

// Save writes the set as an indented JSON array, replacing any previous
// quiz for the same source.
func (s *Store) Save(sourceID string, set models.QuizSet) (string, error) {
	if sourceID == "" {
		return "", fmt.Errorf("%w: empty source id", models.ErrInput)
	}
	path := s.paths.Quiz(sourceID)
	if err := artifact.WriteJSON(path, set); err != nil {
		return "", fmt.Errorf("save quiz: %w", err)
	}
	return path, nil
}

// Load reads a previously saved quiz set.
func (s *Store) Load(sourceID string) (models.QuizSet, error) {
	var set models.QuizSet
	if err := artifact.ReadJSON(s.paths.Quiz(sourceID), &set); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceID)
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	return set, nil
}
