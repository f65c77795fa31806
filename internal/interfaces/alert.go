package interfaces

import "context"

type AlertSender interface {
	SendAlert(ctx context.Context, logFile, errorCode, title string) error
}
