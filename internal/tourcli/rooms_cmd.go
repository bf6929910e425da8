// rooms_cmd.go — tourchat rooms subcommand tree (new, list, show, delete).
// Each subcommand only needs the REST client; no NATS connection.
package tourcli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tourdesk/tourdesk/chatsdk"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/libtracker"
)

const roomsListLimit = 50

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Manage chat rooms (new, list, show, delete).",
	Long: `Create and inspect chat rooms.

  tourchat rooms new <title>    create a room
  tourchat rooms list           list rooms, most recently active first
  tourchat rooms show <id>      print a room's message history
  tourchat rooms delete <id>    delete a room and all its messages`,
	SilenceUsage: true,
}

var roomsNewCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a new room.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoomsNew,
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms, most recently active first.",
	Args:  cobra.NoArgs,
	RunE:  runRoomsList,
}

var roomsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a room's message history.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomsShow,
}

var roomsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a room and all its messages.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomsDelete,
}

func init() {
	roomsNewCmd.Flags().StringSlice("with", nil, "Additional participant identities (comma-separated or repeated)")
	roomsCmd.AddCommand(roomsNewCmd, roomsListCmd, roomsShowCmd, roomsDeleteCmd)
}

// roomsSDK resolves settings and builds the REST client for a rooms command.
func roomsSDK(cmd *cobra.Command) (context.Context, *chatsdk.HTTPChatService, error) {
	s, err := resolveSettings(cmd)
	if err != nil {
		return nil, nil, err
	}
	sdk, err := newSDK(s)
	if err != nil {
		return nil, nil, err
	}
	return libtracker.WithNewRequestID(cmd.Context()), sdk, nil
}

func runRoomsNew(cmd *cobra.Command, args []string) error {
	ctx, sdk, err := roomsSDK(cmd)
	if err != nil {
		return err
	}
	participants, _ := cmd.Flags().GetStringSlice("with")
	conv := &chatstore.Conversation{
		Title:        strings.Join(args, " "),
		Participants: participants,
	}
	if err := sdk.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	fmt.Printf("Created room %s (%s)\n", conv.Title, conv.ID)
	return nil
}

func runRoomsList(cmd *cobra.Command, _ []string) error {
	ctx, sdk, err := roomsSDK(cmd)
	if err != nil {
		return err
	}
	summaries, err := sdk.ListConversations(ctx, nil, roomsListLimit)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No rooms yet. Create one with: tourchat rooms new <title>")
		return nil
	}
	now := time.Now()
	for _, s := range summaries {
		fmt.Println(renderSummary(s, now))
	}
	return nil
}

func runRoomsShow(cmd *cobra.Command, args []string) error {
	ctx, sdk, err := roomsSDK(cmd)
	if err != nil {
		return err
	}
	conv, err := sdk.GetConversation(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load room: %w", err)
	}
	msgs, err := sdk.ListMessages(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	fmt.Printf("%s (%s)\n", conv.Title, conv.ID)
	now := time.Now()
	for _, m := range msgs {
		line := fmt.Sprintf("[%s] %s: ", formatWhen(m.CreatedAt, now), m.SenderID)
		if m.FileName != "" {
			line += "(file: " + m.FileName + ") "
		}
		line += m.Text
		if m.Edited {
			line += " (edited)"
		}
		fmt.Println(line)
	}
	return nil
}

func runRoomsDelete(cmd *cobra.Command, args []string) error {
	ctx, sdk, err := roomsSDK(cmd)
	if err != nil {
		return err
	}
	if err := sdk.DeleteConversation(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	fmt.Printf("Deleted room %s\n", args[0])
	return nil
}
