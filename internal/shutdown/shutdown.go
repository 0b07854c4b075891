package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)

	return gracefulShutdown
}

// ListenForShutdown blocks until a termination signal arrives, runs signalHandler,
// waits timeToWait for in-flight loads to commit and then closes done.
func ListenForShutdown(
	signalChan chan os.Signal,
	done chan bool,
	signalHandler func(),
	timeToWait time.Duration,
	l *zap.Logger,
) {
	sig := <-signalChan
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		l.Sugar().Infow("Caught signal", zap.String("signal", sig.String()))

		signalHandler()

		if timeToWait > 0 {
			l.Sugar().Infow("Waiting before exit", zap.Duration("wait", timeToWait))
			time.Sleep(timeToWait)
		}

		l.Sugar().Infow("Exiting")
		close(done)
	}
}
