package telemetry

import "os"

func processPID() int {
	return os.Getpid()
}
