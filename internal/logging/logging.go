package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "bridgewatch ", log.LstdFlags|log.LUTC)
}

// Component derives a logger whose prefix names a subsystem, keeping the
// parent's output and flags.
func Component(parent *log.Logger, name string) *log.Logger {
	return log.New(parent.Writer(), parent.Prefix()+name+" ", parent.Flags())
}
