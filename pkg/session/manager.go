package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/reina/internal/observability"
	"github.com/harun/reina/internal/tracing"
	"github.com/harun/reina/pkg/agent"
)

// Entry is one persisted conversation message
type Entry struct {
	SessionKey string             `json:"session_key"`
	Timestamp  time.Time          `json:"timestamp"`
	Message    agent.AgentMessage `json:"message"`
}

// Manager persists conversation history using JSONL files
type Manager struct {
	sessionsDir string
	writeLocks  map[string]*sync.Mutex
	locksMu     sync.Mutex
}

// NewKey generates a new session key
func NewKey() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails when the system RNG does
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return id
}

// New creates a session manager rooted at sessionsDir
func New(sessionsDir string) (*Manager, error) {
	observability.EnsureRegistered()

	if sessionsDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		sessionsDir = filepath.Join(homeDir, ".reina", "sessions")
	}

	if err := os.MkdirAll(sessionsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	m := &Manager{
		sessionsDir: sessionsDir,
		writeLocks:  make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", sessionsDir).Msg("Session manager initialized")
	m.updateActiveSessionsMetric()

	return m, nil
}

// validateKey validates the session key for security
func (m *Manager) validateKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (m *Manager) sessionPath(sessionKey string) string {
	return filepath.Join(m.sessionsDir, sessionKey+".jsonl")
}

func (m *Manager) updateActiveSessionsMetric() {
	keys, err := m.List()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(keys))
}

func (m *Manager) writeLock(sessionKey string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, exists := m.writeLocks[sessionKey]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	m.writeLocks[sessionKey] = lock
	return lock
}

// Append appends a message to the session file, creating it if needed
func (m *Manager) Append(sessionKey string, msg agent.AgentMessage) error {
	return m.AppendWithContext(context.Background(), sessionKey, msg)
}

// AppendWithContext appends a message with tracing context
func (m *Manager) AppendWithContext(ctx context.Context, sessionKey string, msg agent.AgentMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"reina.session",
		"session.append",
		attribute.String("session_key", sessionKey),
		attribute.String("role", string(msg.Role)),
	)
	defer span.End()

	if err := m.validateKey(sessionKey); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	lock := m.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(m.sessionPath(sessionKey), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	entry := Entry{
		SessionKey: sessionKey,
		Timestamp:  time.Now().UTC(),
		Message:    msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal session entry: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write session entry: %w", err)
	}

	m.updateActiveSessionsMetric()
	return nil
}

// Load reads the full message history of a session. A missing session
// yields an empty history.
func (m *Manager) Load(sessionKey string) ([]agent.AgentMessage, error) {
	if err := m.validateKey(sessionKey); err != nil {
		return nil, err
	}

	file, err := os.Open(m.sessionPath(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var messages []agent.AgentMessage
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			log.Warn().
				Str("session_key", sessionKey).
				Int("line", line).
				Err(err).
				Msg("Skipping corrupt session entry")
			continue
		}
		messages = append(messages, entry.Message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	return messages, nil
}

// List returns the keys of all persisted sessions
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".jsonl") {
			keys = append(keys, strings.TrimSuffix(name, ".jsonl"))
		}
	}
	return keys, nil
}

// Delete removes a session file
func (m *Manager) Delete(sessionKey string) error {
	if err := m.validateKey(sessionKey); err != nil {
		return err
	}

	lock := m.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.sessionPath(sessionKey)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	m.updateActiveSessionsMetric()
	return nil
}

// Recorder returns a hook that persists every message the loop appends.
// Persistence errors are logged, never surfaced into the loop.
func (m *Manager) Recorder(sessionKey string) func(agent.AgentMessage) {
	return func(msg agent.AgentMessage) {
		if err := m.Append(sessionKey, msg); err != nil {
			log.Error().
				Str("session_key", sessionKey).
				Err(err).
				Msg("Failed to persist session message")
		}
	}
}
