package nav

import (
	"context"

	"github.com/sirupsen/logrus"

	"finnest/internal/database"
)

// Emailer delivers portfolio-change alerts. Delivery is an external
// collaborator; its failure never fails a NAV update.
type Emailer interface {
	SendAlert(ctx context.Context, userID string, n database.Notification) error
}

// LogEmailer records alerts to the log instead of sending mail. It stands
// in wherever SMTP is not configured.
type LogEmailer struct {
	Log *logrus.Logger
}

func (e *LogEmailer) SendAlert(_ context.Context, userID string, n database.Notification) error {
	e.Log.Infof("email: alert for user %s: %s", userID, n.Title)
	return nil
}
