package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.shardapply.dev/core/assignment"
	mbp "go.shardapply.dev/core/mainboilerplate"
	pb "go.shardapply.dev/core/protocol"
	"gopkg.in/yaml.v2"
)

func addAssignmentsCommands(cmd *flags.Command) {
	for _, c := range []struct {
		name, short, long string
		data              interface{}
	}{
		{"list", "List channel assignments", `
List the channel assignment of every known shard.

Results can be output in a variety of --format options:
table: Prints as a table
yaml:  Prints assignments in YAML form, compatible with "assignments import"
json:  Prints assignments encoded as JSON
`, &cmdAssignmentsList{}},
		{"import", "Import channel assignments", `
Import channel assignments from a YAML file, such as one written by
"assignments list --format yaml". Shards which are already assigned to the
same channel are skipped, and shards assigned to a different channel fail
the import. Import while no pipeline is serving.
`, &cmdAssignmentsImport{}},
		{"reset", "Remove all channel assignments", `
Remove all channel assignments, allowing shards to be freshly assigned over
the configured channels. To reduce the number of channels, run reset while
still configured with the current (larger) channel count, and only then
lower --apply.channels. Reset while no pipeline is serving.
`, &cmdAssignmentsReset{}},
		{"remove", "Remove the channel assignment of a shard", `
Remove the channel assignment of a decommissioned shard. Remove while no
pipeline is serving.
`, &cmdAssignmentsRemove{}},
		{"status", "Show the status of channel assignments", "", &cmdAssignmentsStatus{}},
	} {
		var _, err = cmd.AddCommand(c.name, c.short, c.long, c.data)
		mbp.Must(err, "failed to add command", "command", c.name)
	}
}

type cmdAssignmentsList struct {
	Format string `long:"format" short:"o" default:"table" choice:"table" choice:"yaml" choice:"json" description:"Output format"`
}

func (cmd *cmdAssignmentsList) Execute([]string) error {
	var svc = mustPreparedService()
	defer svc.Close()

	return writeAssignments(os.Stdout, cmd.Format, svc.ListAssignments())
}

type cmdAssignmentsImport struct {
	File string `long:"file" short:"f" required:"true" description:"YAML file of assignments. '-' reads from stdin"`
}

func (cmd *cmdAssignmentsImport) Execute([]string) error {
	var svc = mustPreparedService()
	defer svc.Close()

	var r io.Reader = os.Stdin
	if cmd.File != "-" {
		var f, err = os.Open(cmd.File)
		mbp.Must(err, "failed to open assignments file")
		defer f.Close()
		r = f
	}
	var list, err = readAssignments(r)
	mbp.Must(err, "failed to read assignments")

	for _, a := range list {
		mbp.Must(svc.InsertChannelAssignment(context.Background(), a.ShardID, a.Channel),
			"failed to import assignment", "shard", a.ShardID, "channel", a.Channel)
	}
	log.WithField("assignments", len(list)).Info("imported assignments")
	return nil
}

type cmdAssignmentsReset struct {
	Yes bool `long:"yes" description:"Confirm the removal of all assignments"`
}

func (cmd *cmdAssignmentsReset) Execute([]string) error {
	if !cmd.Yes {
		return errors.New("reset removes all channel assignments: confirm with --yes")
	}
	var svc = mustPreparedService()
	defer svc.Close()

	var n, err = svc.ReduceAssignments(context.Background())
	mbp.Must(err, "failed to reset assignments")

	fmt.Printf("removed %s assignments\n", humanize.Comma(n))
	return nil
}

type cmdAssignmentsRemove struct {
	Shard string `long:"shard" required:"true" description:"ShardID to remove"`
	Yes   bool   `long:"yes" description:"Confirm the removal"`
}

func (cmd *cmdAssignmentsRemove) Execute([]string) error {
	if !cmd.Yes {
		return errors.Errorf("confirm removal of the assignment of shard %s with --yes", cmd.Shard)
	}
	var svc = mustPreparedService()
	defer svc.Close()

	var ok, err = svc.RemoveChannelAssignment(context.Background(), pb.ShardID(cmd.Shard))
	mbp.Must(err, "failed to remove assignment")

	if !ok {
		fmt.Printf("shard %s was not assigned\n", cmd.Shard)
	} else {
		fmt.Printf("removed assignment of shard %s\n", cmd.Shard)
	}
	return nil
}

type cmdAssignmentsStatus struct{}

func (cmd *cmdAssignmentsStatus) Execute([]string) error {
	var svc = mustPreparedService()
	defer svc.Close()

	writeStatus(os.Stdout, svc.Status())
	return nil
}

// mustPreparedService returns a prepared assignment.Service of the Config.
func mustPreparedService() *assignment.Service {
	mbp.InitLog(Config.Log)

	var svc, err = newAssignmentService()
	mbp.Must(err, "building channel assignment service")
	mbp.Must(svc.Prepare(context.Background()), "preparing channel assignment service")
	return svc
}

func writeAssignments(w io.Writer, format string, list []pb.Assignment) error {
	switch format {
	case "yaml":
		var b, err = yaml.Marshal(list)
		if err != nil {
			return errors.WithMessage(err, "encoding yaml")
		}
		_, err = w.Write(b)
		return err
	case "json":
		var enc = json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	default:
		var table = tablewriter.NewWriter(w)
		table.SetHeader([]string{"Shard", "Channel"})
		for _, a := range list {
			table.Append([]string{a.ShardID.String(), strconv.Itoa(int(a.Channel))})
		}
		table.Render()
		return nil
	}
}

func readAssignments(r io.Reader) ([]pb.Assignment, error) {
	var b, err = io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var list []pb.Assignment
	if err = yaml.UnmarshalStrict(b, &list); err != nil {
		return nil, errors.WithMessage(err, "decoding yaml")
	}
	return list, nil
}

func writeStatus(w io.Writer, s assignment.Status) {
	var lastAccess = "never"
	if !s.LastAccess.IsZero() {
		lastAccess = humanize.Time(s.LastAccess)
	}
	var table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Active", "Assignments", "Max Channel", "Access Failures", "Reconnects", "Last Access"})
	table.Append([]string{
		s.Name,
		strconv.FormatBool(s.Active),
		humanize.Comma(int64(s.TotalAssignments)),
		strconv.Itoa(int(s.MaxChannel)),
		humanize.Comma(s.AccessFailures),
		humanize.Comma(s.Reconnects),
		lastAccess,
	})
	table.Render()
}
