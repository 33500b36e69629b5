package main

import (
	"sort"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/iota-uz/identity-sync/pkg/configuration"
)

type lagRow struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Committed int64  `json:"committed"`
	End       int64  `json:"end"`
	Lag       int64  `json:"lag"`
}

func newOffsetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offsets",
		Short: "Show committed offsets and lag of the consumer group per partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configuration.Load([]string{".env", ".env.local"})
			if err != nil {
				return withCode(exitUsage, err)
			}
			topics := configuredTopics(conf.Kafka)

			cl, err := kgo.NewClient(kgo.SeedBrokers(conf.Kafka.BrokerList()...))
			if err != nil {
				return withCode(exitKafka, err)
			}
			defer cl.Close()
			adm := kadm.NewClient(cl)

			ctx := cmd.Context()
			committed, err := adm.FetchOffsets(ctx, conf.Kafka.GroupID)
			if err != nil {
				return withCode(exitKafka, err)
			}
			ends, err := adm.ListEndOffsets(ctx, topics...)
			if err != nil {
				return withCode(exitKafka, err)
			}
			return writeJSON(cmd.OutOrStdout(), lagRows(ends, committed))
		},
	}
}

func configuredTopics(k configuration.KafkaOptions) []string {
	var out []string
	for _, t := range []string{k.IdentityTopic, k.NoticeTopic, k.EmploymentTopic, k.NameTopic} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// lagRows reports partitions without a committed offset as committed -1 and full lag.
func lagRows(ends kadm.ListedOffsets, committed kadm.OffsetResponses) []lagRow {
	rows := make([]lagRow, 0)
	ends.Each(func(o kadm.ListedOffset) {
		if o.Err != nil {
			return
		}
		row := lagRow{Topic: o.Topic, Partition: o.Partition, Committed: -1, End: o.Offset, Lag: o.Offset}
		if c, ok := committed.Lookup(o.Topic, o.Partition); ok && c.Err == nil && c.At >= 0 {
			row.Committed = c.At
			row.Lag = o.Offset - c.At
		}
		rows = append(rows, row)
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Topic != rows[j].Topic {
			return rows[i].Topic < rows[j].Topic
		}
		return rows[i].Partition < rows[j].Partition
	})
	return rows
}
