// Package log configures the process-wide logrus logger the way every depsched binary expects.
package log

import (
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/depsched/common/log/hooks"
)

// LevelEnvVar names the environment variable consulted by Setup.
const LevelEnvVar = "DEPSCHED_LOGLEVEL"

var hookOnce sync.Once

// Setup applies the level named by $DEPSCHED_LOGLEVEL, falling back to defaultLevel
// when the variable is unset or unparseable, and installs the file:line context hook.
func Setup(defaultLevel log.Level) {
	level := defaultLevel
	if s := os.Getenv(LevelEnvVar); s != "" {
		if parsed, err := log.ParseLevel(s); err == nil {
			level = parsed
		} else {
			log.WithFields(log.Fields{"value": s, "err": err}).Warn("Ignoring unparseable log level")
		}
	}
	log.SetLevel(level)
	hookOnce.Do(func() { log.AddHook(hooks.NewContextHook()) })
}
