// Package logging provides discoveryd's structured logging system: a thin
// wrapper over log/slog with a four-level severity enum and a
// printf-style call convention, so call sites read as
// logging.Info("Registry", "registered tool %s", name) rather than
// assembling slog.Attr values by hand.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//	logging.Info("Discovery", "loaded %d modules", count)
//	logging.Error("Vault", err, "rotation aborted")
//
// # Subsystems
//
// Call sites tag every entry with the subsystem that produced it:
// Registry, PluginManager, Watcher, Transport, Dispatcher, Vault, CMDB,
// OAuth, Discovery, Config. This is a convention, not an enforced type,
// matching how the rest of the call sites name themselves.
package logging
