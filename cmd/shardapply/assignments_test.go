package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.shardapply.dev/core/assignment"
	pb "go.shardapply.dev/core/protocol"
)

var fixtureAssignments = []pb.Assignment{
	{ShardID: "db_one", Channel: 0},
	{ShardID: "db_two", Channel: 1},
	{ShardID: "db_three", Channel: 0},
}

func TestWriteAssignmentsGolden(t *testing.T) {
	var g = goldie.New(t)

	for _, format := range []string{"yaml", "json"} {
		var buf bytes.Buffer
		require.NoError(t, writeAssignments(&buf, format, fixtureAssignments))
		g.Assert(t, "assignments_"+format, buf.Bytes())
	}

	var buf bytes.Buffer
	require.NoError(t, writeAssignments(&buf, "table", fixtureAssignments))
	for _, expect := range []string{"SHARD", "CHANNEL", "db_one", "db_three"} {
		require.Contains(t, strings.ToUpper(buf.String()), strings.ToUpper(expect))
	}
}

func TestReadAssignmentsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAssignments(&buf, "yaml", fixtureAssignments))

	var list, err = readAssignments(&buf)
	require.NoError(t, err)
	require.Equal(t, fixtureAssignments, list)

	_, err = readAssignments(strings.NewReader("- shard: a\n  chanel: 1\n"))
	require.Error(t, err)
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	writeStatus(&buf, assignment.Status{
		Name:             "happy-otter",
		TotalAssignments: 12345,
		MaxChannel:       3,
		Active:           true,
		LastAccess:       time.Now().Add(-time.Hour),
	})
	require.Contains(t, buf.String(), "happy-otter")
	require.Contains(t, buf.String(), "12,345")
	require.Contains(t, buf.String(), "1 hour ago")
}
