package app

import "time"

const (
	Name           = "bblink"
	SourceURL      = "https://git.skobk.in/skobkin/bblink"
	ConfigFilename = "config.json"
	DBFilename     = "prefs.db"
	LogFilename    = "bblink.log"
	UpdateDir      = "updates"

	// TickInterval paces the supervisor loop. The radio read inside a tick
	// has its own short poll timeout, so a tick never stalls for long.
	TickInterval = 10 * time.Millisecond
)
