package controller

import (
	"errors"
	"sync"

	"github.com/go-logr/logr"

	"github.com/sweeney/incubator/internal/logic"
	"github.com/sweeney/incubator/internal/metrics"
	"github.com/sweeney/incubator/internal/mqtt"
	"github.com/sweeney/incubator/internal/status"
)

// Inbox holds the most recent remote command until the next sample cycle.
// Later commands overwrite earlier ones.
type Inbox struct {
	mu      sync.Mutex
	cmd     logic.Command
	pending bool
}

// NewInbox creates an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{}
}

// Stage replaces any pending command.
func (i *Inbox) Stage(cmd logic.Command) {
	i.mu.Lock()
	i.cmd = cmd
	i.pending = true
	i.mu.Unlock()
}

// Take returns the pending command, if any, and clears it.
func (i *Inbox) Take() (logic.Command, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.pending {
		return logic.Command{}, false
	}
	i.pending = false
	return i.cmd, true
}

// CommandHandler returns a control-topic callback that decodes payloads
// into inbox. Objects without a recognised key are ignored; malformed
// payloads are logged and dropped. Neither touches the staged command.
// m and tracker may be nil.
func CommandHandler(inbox *Inbox, m *metrics.Metrics, tracker *status.Tracker, log logr.Logger) func([]byte) {
	log = log.WithName("command")
	return func(payload []byte) {
		cmd, err := mqtt.DecodeCommand(payload)
		malformed := errors.Is(err, mqtt.ErrMalformedCommand)
		if tracker != nil {
			tracker.RecordCommand(malformed)
		}
		switch {
		case malformed:
			m.Command(metrics.ResultMalformed)
			log.Info("dropping malformed command", "error", err.Error(), "payload", string(payload))
			return
		case err != nil:
			m.Command(metrics.ResultIgnored)
			log.V(1).Info("ignoring command", "reason", err.Error(), "payload", string(payload))
			return
		}
		m.Command(metrics.ResultAccepted)
		log.Info("command staged", "simulateHighTemp", cmd.SimulateHighTemperature)
		inbox.Stage(cmd)
	}
}
