package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
)

func newRoomsCmd(setup func() (*cliEnv, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List rooms with unread counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup()
			if err != nil {
				return err
			}
			defer env.close()

			creds, err := requireCredentials(cmd, env)
			if err != nil {
				return err
			}

			client := env.restClient(cmd)
			rooms, err := client.ListRooms(cmd.Context())
			if err != nil {
				return fmt.Errorf("list rooms: %w", err)
			}

			counts, err := client.GetAllUnreadCounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("unread counts: %w", err)
			}
			unread := make(map[string]int, len(counts))
			for _, c := range counts {
				unread[c.RoomID] = c.Count
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUNREAD\tLAST MESSAGE")
			for _, room := range rooms {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					room.ID, roomLabel(room, creds.UserID), unread[room.ID], lastMessagePreview(room))
			}
			return w.Flush()
		},
	}
}

// roomLabel names a room; private rooms show the other participant.
func roomLabel(room proto.Room, selfID string) string {
	if room.Name != "" {
		return room.Name
	}
	if room.Type == proto.RoomTypePrivate {
		for _, p := range room.Participants {
			if p.ID != selfID {
				return p.Username
			}
		}
	}
	return room.ID
}

func lastMessagePreview(room proto.Room) string {
	if room.LastMessage == nil {
		return ""
	}
	preview := strings.ReplaceAll(room.LastMessage.Content, "\n", " ")
	if len(preview) > 40 {
		preview = preview[:37] + "..."
	}
	return preview
}
