/*
main.go - Application entry point

PURPOSE:
  Starts the staycount CLI. The default command runs the HTTP server;
  subcommands run calculations offline against a JSON trip file.

COMMANDS:
  serve      HTTP API, snapshot scheduler, metrics (default)
  calc       Summaries for a trip file
  plan       What-if simulation and search for a trip file
  validate   Check a config file and list the resulting rule set

CONFIGURATION:
  --config/-c points at a YAML file; every key can also be set through
  STAYCOUNT_* environment variables (STAYCOUNT_SERVER_PORT=9000).
  See config/config.go for defaults.

EXAMPLES:
  # Run the server with an in-memory database
  STAYCOUNT_DATABASE_PATH=":memory:" ./staycount serve

  # Offline summary
  ./staycount calc --trips trips.json --as-of 2024-06-01 schengen uk_visitor

SEE ALSO:
  - serve.go: Server startup and graceful shutdown
  - api/server.go: Router configuration
*/
package main

func main() {
	Execute()
}
