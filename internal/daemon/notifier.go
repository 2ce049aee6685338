package daemon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docgen/internal/models"
)

// Notifier publishes run outcomes to NATS so downstream consumers (deploy
// hooks, dashboards) can react without polling.
type Notifier struct {
	conn    *nats.Conn
	subject string
}

// RunNotification is the published message body.
type RunNotification struct {
	RunID     string    `json:"run_id"`
	JobID     string    `json:"job_id,omitempty"`
	Success   bool      `json:"success"`
	Stages    int       `json:"stages_completed"`
	Recovered int       `json:"recovered_errors"`
	Errors    []string  `json:"errors,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNotifier connects to NATS. A connection failure is returned rather than
// retried; the daemon treats the notifier as optional.
func NewNotifier(url, subject string) (*Notifier, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS notifier connected", "url", url, "subject", subject)
	return &Notifier{conn: conn, subject: subject}, nil
}

// Publish sends a run outcome. Publish failures are logged, never propagated;
// notification is best-effort.
func (n *Notifier) Publish(jobID string, result *models.PipelineResult) {
	if n == nil || result == nil {
		return
	}

	msg := RunNotification{
		RunID:     result.RunID,
		JobID:     jobID,
		Success:   result.Success,
		Stages:    len(result.StagesCompleted),
		Recovered: result.RecoveredErrors,
		Errors:    result.Errors,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("Failed to encode run notification", "run_id", result.RunID, "error", err)
		return
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		slog.Warn("Failed to publish run notification", "run_id", result.RunID, "error", err)
	}
}

// Close drains and closes the connection.
func (n *Notifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	n.conn.Close()
}
