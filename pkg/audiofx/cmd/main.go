package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx"
	"github.com/nik9play/audiofx/pkg/audiofx/util"
)

var (
	gitCommit  string
	versionTag string
	buildType  string

	verbose    bool
	configPath string
	editConfig bool
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "show verbose logs")
	flag.BoolVar(&verbose, "v", false, "shorthand for --verbose")
	flag.StringVar(&configPath, "config", "config.yaml", "path to the config file")
	flag.StringVar(&configPath, "c", "config.yaml", "shorthand for --config")
	flag.BoolVar(&editConfig, "edit-config", false, "open the config file in the default editor and exit")
	flag.Parse()
}

func main() {

	// first we need a logger
	logger, err := audiofx.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	if editConfig {
		if err := util.OpenExternal(named, configPath); err != nil {
			named.Fatalw("Failed to open config file for editing", "error", err)
		}
		return
	}

	// provide a fair warning if the user's running in verbose mode
	if verbose {
		named.Debug("Verbose flag provided, all log messages will be shown")
		hookSignals(logger.Named("signals"))
	}

	// create the audiofx instance
	a, err := audiofx.NewAudioFx(logger, verbose, configPath)
	if err != nil {
		named.Fatalw("Failed to create audiofx object", "error", err)
	}

	if err = a.Initialize(); err != nil {
		named.Fatalw("Failed to initialize audiofx", "error", err)
	}
}

// hookSignals mirrors every lifecycle signal into the debug log
func hookSignals(logger *zap.SugaredLogger) {
	session := func(name string) func(context.Context, *capitan.Event) {
		return func(_ context.Context, e *capitan.Event) {
			id, _ := audiofx.KeySessionID.From(e)
			logger.Debugw(name, "session", id)
		}
	}

	capitan.Hook(audiofx.SessionAttached, session("Session attached"))
	capitan.Hook(audiofx.SessionReactivated, session("Session reactivated"))
	capitan.Hook(audiofx.SessionReleased, session("Session released"))

	failure := func(name string) func(context.Context, *capitan.Event) {
		return func(_ context.Context, e *capitan.Event) {
			id, _ := audiofx.KeySessionID.From(e)
			msg, _ := audiofx.KeyError.From(e)
			logger.Debugw(name, "session", id, "error", msg)
		}
	}

	capitan.Hook(audiofx.HandleCreationFailed, failure("Handle creation failed"))
	capitan.Hook(audiofx.BackendUpdateFailed, failure("Backend update failed"))

	capitan.Hook(audiofx.OutputDeviceChanged, func(_ context.Context, e *capitan.Event) {
		id, _ := audiofx.KeyDeviceID.From(e)
		identity, _ := audiofx.KeyIdentity.From(e)
		logger.Debugw("Output device signal", "device", id, "identity", identity)
	})

	capitan.Hook(audiofx.DefaultsInitialized, func(_ context.Context, e *capitan.Event) {
		brand, _ := audiofx.KeyBrand.From(e)
		logger.Debugw("Defaults signal", "brand", brand)
	})
}
