package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/thruflo/gantry/internal/verify"
)

// ErrSessionNotFound is returned when a module has no session.yaml.
var ErrSessionNotFound = errors.New("session not found")

// Store handles local session storage operations.
type Store struct {
	basePath string
	now      func() time.Time
}

// NewStore creates a new Store with the given base path.
// The base path should be the project root; sessions will be stored in .gantry/sessions/.
func NewStore(basePath string) *Store {
	return &Store{basePath: basePath, now: time.Now}
}

// BasePath returns the project root the store writes under.
func (s *Store) BasePath() string { return s.basePath }

func (s *Store) sessionsDir() string {
	return filepath.Join(s.basePath, ".gantry", "sessions")
}

func (s *Store) sessionDir(module string) string {
	return filepath.Join(s.sessionsDir(), sanitizeModule(module))
}

// sanitizeModule converts a module ID to a safe directory name.
func sanitizeModule(module string) string {
	return strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(module)
}

// CreateSession creates the session directory and writes session.yaml.
// An empty ID is filled with a fresh UUID and a zero StartedAt with now.
func (s *Store) CreateSession(session *Session) error {
	if session.Module == "" {
		return fmt.Errorf("session module is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = s.now().UTC()
	}
	if session.Status == "" {
		session.Status = SessionStatusIdle
	}
	return s.writeSession(session)
}

func (s *Store) writeSession(session *Session) error {
	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.writeFile(session.Module, "session.yaml", data)
}

// GetSession reads session.yaml for the module.
func (s *Store) GetSession(module string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(module), "session.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, module)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := yaml.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &session, nil
}

// ListSessions enumerates all session directories and returns session info.
func (s *Store) ListSessions() ([]*Session, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.sessionsDir(), entry.Name(), "session.yaml"))
		if err != nil {
			continue // Skip directories without session.yaml
		}

		var session Session
		if err := yaml.Unmarshal(data, &session); err != nil {
			continue // Skip invalid session files
		}

		sessions = append(sessions, &session)
	}

	return sessions, nil
}

// UpdateSession applies updateFn to session.yaml and stamps UpdatedAt.
func (s *Store) UpdateSession(module string, updateFn func(*Session)) error {
	session, err := s.GetSession(module)
	if err != nil {
		return err
	}

	updateFn(session)
	session.UpdatedAt = s.now().UTC()
	return s.writeSession(session)
}

// SavePlan writes plan.yaml.
func (s *Store) SavePlan(module string, plan *Plan) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return s.writeFile(module, "plan.yaml", data)
}

// LoadPlan reads plan.yaml. It returns nil, nil when no plan was imported.
func (s *Store) LoadPlan(module string) (*Plan, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(module), "plan.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("plan for %s: %w", module, err)
	}
	return plan, nil
}

// SaveVerifications writes verifications.json.
func (s *Store) SaveVerifications(module string, records []verify.Record) error {
	if records == nil {
		records = []verify.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal verifications: %w", err)
	}
	return s.writeFile(module, "verifications.json", data)
}

// LoadVerifications reads verifications.json.
func (s *Store) LoadVerifications(module string) ([]verify.Record, error) {
	var records []verify.Record
	if err := s.readJSON(module, "verifications.json", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveHistory writes history.json to the session directory.
func (s *Store) SaveHistory(module string, history []History) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return s.writeFile(module, "history.json", data)
}

// LoadHistory reads history.json from the session directory.
func (s *Store) LoadHistory(module string) ([]History, error) {
	var history []History
	if err := s.readJSON(module, "history.json", &history); err != nil {
		return nil, err
	}
	return history, nil
}

// AppendHistory adds a new history entry to history.json.
func (s *Store) AppendHistory(module string, entry History) error {
	history, err := s.LoadHistory(module)
	if err != nil {
		return err
	}

	history = append(history, entry)
	return s.SaveHistory(module, history)
}

// DeleteSession removes the session directory and all its contents.
func (s *Store) DeleteSession(module string) error {
	if err := os.RemoveAll(s.sessionDir(module)); err != nil {
		return fmt.Errorf("failed to delete session directory: %w", err)
	}
	return nil
}

// SessionExists checks if a session directory exists.
func (s *Store) SessionExists(module string) bool {
	_, err := os.Stat(filepath.Join(s.sessionDir(module), "session.yaml"))
	return err == nil
}

func (s *Store) writeFile(module, name string, data []byte) error {
	dir := s.sessionDir(module)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// Write then rename so readers never see a half-written file.
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// readJSON decodes name into v. A missing file leaves v untouched.
func (s *Store) readJSON(module, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(module), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}
