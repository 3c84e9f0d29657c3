// Package internal contains the implementation packages of siteforge.
//
// # Package Organization
//
//   - config: project configuration and the category path table
//   - glob: source pattern matching with exclusions
//   - transform: per-file converters (SCSS, Pug, JavaScript, images, copy)
//   - tasks: asset tasks built from the path table, clean and rmEmpty
//   - build: output cache, disk store and task metrics
//   - pipeline: task registry, Series/Parallel composition and the executor
//   - server: the PHP or static page server
//   - reload: the live reload proxy, websocket hub and typed events
//   - watcher: fsnotify watcher and the supervisor re-running tasks
//   - errors: transform errors, the collector and the browser overlay
//   - logging: structured logging on zerolog and slog
//   - scaffolding: the starter template project
//   - version: build identity
//
// Tasks never talk to the browser directly: they publish reload.Events to a
// reload.Relay, which forwards them to the broadcaster once the page server
// is listening.
package internal
