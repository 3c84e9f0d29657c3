// Package cmd provides the command-line interface of siteforge.
//
// Every command builds the same pipeline: the asset tasks of the project,
// clean and rmEmpty, the page server, the file watcher and the browser
// reload, composed into the build and watch entry points.
//
// # Available Commands
//
//   - build (default): clean, then build every asset in parallel and serve
//   - watch: serve and re-run the tasks whose sources change
//   - styles, views, scripts, pages, images, fonts, sounds, videos: one task
//   - clean: delete the output root
//   - rmEmpty: delete the template placeholder files
//   - tasks: list the pipeline
//   - init: scaffold the template project
//   - version: show build information
//
// # Configuration
//
// Configuration is read, in order of precedence, from command-line flags,
// SITEFORGE_<SECTION>_<KEY> environment variables and the project's
// .siteforge.yml. The --config flag or SITEFORGE_CONFIG_FILE select another
// configuration file.
//
//	siteforge --root site --no-serve
//	SITEFORGE_SERVER_ENGINE=static siteforge watch
package cmd
