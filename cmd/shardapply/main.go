package main

import (
	"database/sql"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"go.shardapply.dev/core/assignment"
	mbp "go.shardapply.dev/core/mainboilerplate"
)

const iniFilename = "shardapply.ini"

// Config is the top-level configuration of shardapply.
var Config = new(struct {
	Target mbp.DatabaseConfig `group:"Target" namespace:"target" env-namespace:"TARGET"`

	Store struct {
		mbp.DatabaseConfig
		Schema           string        `long:"schema" env:"SCHEMA" description:"Schema of the channel assignment table. Empty uses the connection's default"`
		Table            string        `long:"table" env:"TABLE" default:"shard_channel" description:"Name of the channel assignment table"`
		ReconnectTimeout time.Duration `long:"reconnect-timeout" env:"RECONNECT_TIMEOUT" default:"10m" description:"Idle duration after which the store connection is re-opened. Zero disables"`
	} `group:"Store" namespace:"store" env-namespace:"STORE" description:"Channel assignment store. Inherits the target database if its DSN is empty"`

	Apply struct {
		Name               string        `long:"name" env:"NAME" description:"Name of this pipeline. Generated if not set"`
		Channels           int           `long:"channels" env:"CHANNELS" default:"4" description:"Number of parallel apply channels. Must not be reduced below an assigned channel"`
		QueueSize          int           `long:"queue-size" env:"QUEUE_SIZE" default:"64" description:"Events queued to each channel before dispatch blocks"`
		MaxRows            int           `long:"max-rows" env:"MAX_ROWS" default:"500" description:"Maximum rows of a single bulk statement. Zero is unbounded"`
		TableCacheSize     int           `long:"table-cache-size" env:"TABLE_CACHE_SIZE" default:"1024" description:"Number of tables whose metadata is cached by each channel"`
		TableCacheTTL      time.Duration `long:"table-cache-ttl" env:"TABLE_CACHE_TTL" default:"5m" description:"Duration for which table metadata is cached"`
		DisableAssignments bool          `long:"disable-assignments" env:"DISABLE_ASSIGNMENTS" description:"Disable durable channel assignment. Requires a single channel"`
	} `group:"Apply" namespace:"apply" env-namespace:"APPLY"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

// newAssignmentService builds the assignment.Service of the Config.
func newAssignmentService() (*assignment.Service, error) {
	var store = Config.Store.DatabaseConfig.Inherit(Config.Target)

	var d, err = store.Dialect()
	if err != nil {
		return nil, errors.WithMessage(err, "store")
	}
	return assignment.NewService(assignment.Config{
		Name:             Config.Apply.Name,
		Channels:         Config.Apply.Channels,
		Schema:           Config.Store.Schema,
		Table:            Config.Store.Table,
		ReconnectTimeout: Config.Store.ReconnectTimeout,
		Disabled:         Config.Apply.DisableAssignments,
	}, d, func() (*sql.DB, error) { return store.Open(nil) })
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)
	parser.LongDescription = `shardapply applies change events of database replication to a target
database, in parallel over a fixed number of channels. Each shard is durably
bound to one channel, preserving the order of its events.

Optionally configure shardapply with a '` + iniFilename + `' file in the current
working directory, or with '~/.config/shardapply/` + iniFilename + `'. Use the
'print-config' sub-command to inspect the current configuration.
`

	_, _ = parser.AddCommand("serve", "Serve an apply pipeline", `
Serve an apply pipeline which reads events from a file or a Kafka topic and
applies them to the target database, until the source is exhausted or the
process is signaled to exit (via SIGTERM or SIGINT).
`, &cmdServe{})

	var assignments, err = parser.AddCommand("assignments", "Inspect and administer channel assignments", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addAssignmentsCommands(assignments)

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
