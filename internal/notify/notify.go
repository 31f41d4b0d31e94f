package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// Notifier is the boundary to the external persistent-notification
// collaborator. Implementations must be safe for concurrent use. Failures are
// the caller's to log; they never affect the triggering operation.
type Notifier interface {
	NotifyMessage(ctx context.Context, recipientID string, msg *models.Message) error
	NotifyCall(ctx context.Context, receiverID string, call *models.Call) error
}

// LogNotifier is the default Notifier: it only logs. Deployments plug a real
// collaborator in at wiring time.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a Notifier that records notifications in the log.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) NotifyMessage(ctx context.Context, recipientID string, msg *models.Message) error {
	n.logger.Debug().
		Str("recipient_id", recipientID).
		Str("message_id", msg.ID).
		Msg("message notification")
	return nil
}

func (n *LogNotifier) NotifyCall(ctx context.Context, receiverID string, call *models.Call) error {
	n.logger.Debug().
		Str("receiver_id", receiverID).
		Str("call_id", call.ID).
		Str("kind", string(call.Kind)).
		Msg("incoming call notification")
	return nil
}
