package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ankiVersion is the AnkiConnect API version every request declares.
const ankiVersion = 6

// DefaultDeckServiceURL is where AnkiConnect listens on a desktop install.
const DefaultDeckServiceURL = "http://localhost:8765"

// ErrDuplicateNote is returned by AddNote when the deck service refuses a
// note it already holds.
var ErrDuplicateNote = errors.New("duplicate note")

// Note is one Basic flashcard.
type Note struct {
	Deck  string
	Front string
	Back  string
	Tags  []string
}

// DeckService creates decks and adds notes on a remote flashcard store.
// CreateDeck must be idempotent.
type DeckService interface {
	CreateDeck(ctx context.Context, name string) error
	AddNote(ctx context.Context, note Note) error
}

// AnkiClient talks to the AnkiConnect HTTP API.
type AnkiClient struct {
	endpoint   string
	httpClient *http.Client
}

// Compile-time check that AnkiClient implements DeckService.
var _ DeckService = (*AnkiClient)(nil)

// NewAnkiClient creates a client for the AnkiConnect endpoint.
// If endpoint is empty, DefaultDeckServiceURL is used.
func NewAnkiClient(endpoint string) *AnkiClient {
	if endpoint == "" {
		endpoint = DefaultDeckServiceURL
	}
	return &AnkiClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ankiRequest is the envelope AnkiConnect expects for every action.
type ankiRequest struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// ankiResponse carries either a result or an error message, never both.
type ankiResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

type ankiNote struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Options   ankiNoteOptions   `json:"options"`
	Tags      []string          `json:"tags"`
}

type ankiNoteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

// Version returns the API version reported by the deck service.
func (c *AnkiClient) Version(ctx context.Context) (int, error) {
	var version int
	if err := c.invoke(ctx, "version", nil, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// CreateDeck creates the named deck. AnkiConnect returns the existing deck ID
// when the deck is already present.
func (c *AnkiClient) CreateDeck(ctx context.Context, name string) error {
	return c.invoke(ctx, "createDeck", map[string]any{"deck": name}, nil)
}

// AddNote adds one Basic note with duplicates disallowed.
func (c *AnkiClient) AddNote(ctx context.Context, note Note) error {
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	params := map[string]any{
		"note": ankiNote{
			DeckName:  note.Deck,
			ModelName: "Basic",
			Fields: map[string]string{
				"Front": note.Front,
				"Back":  note.Back,
			},
			Options: ankiNoteOptions{AllowDuplicate: false},
			Tags:    tags,
		},
	}

	err := c.invoke(ctx, "addNote", params, nil)
	if err != nil && isDuplicate(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateNote, err)
	}
	return err
}

// invoke sends one action and decodes its result into out when out is non-nil.
func (c *AnkiClient) invoke(ctx context.Context, action string, params, out any) error {
	reqBody, err := json.Marshal(ankiRequest{
		Action:  action,
		Version: ankiVersion,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: deck service unreachable: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: deck service error: %s - %s", action, resp.Status, string(body))
	}

	var ankiResp ankiResponse
	if err := json.Unmarshal(body, &ankiResp); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", action, err)
	}
	if ankiResp.Error != nil {
		return &AnkiError{Action: action, Message: *ankiResp.Error}
	}

	if out != nil && len(ankiResp.Result) > 0 {
		if err := json.Unmarshal(ankiResp.Result, out); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", action, err)
		}
	}
	return nil
}

// AnkiError is an error message reported by AnkiConnect itself.
type AnkiError struct {
	Action  string
	Message string
}

func (e *AnkiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

func isDuplicate(err error) bool {
	var ankiErr *AnkiError
	return errors.As(err, &ankiErr) && strings.Contains(ankiErr.Message, "duplicate")
}
