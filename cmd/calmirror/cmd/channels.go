package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theakshaypant/calmirror/internal/core"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage webhook channels",
	Long: `Open, close and list the push channels through which the provider
notifies calmirror of changes. Without --calendar the commands act on the
channel of the calendar list.`,
}

var channelsOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a channel, replacing any live one",
	Args:  cobra.NoArgs,
	RunE:  runChannelsOpen,
}

var channelsCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the live channels of a resource",
	Args:  cobra.NoArgs,
	RunE:  runChannelsClose,
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the channels of the account",
	Args:  cobra.NoArgs,
	RunE:  runChannelsList,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsOpenCmd)
	channelsCmd.AddCommand(channelsCloseCmd)
	channelsCmd.AddCommand(channelsListCmd)

	channelsCmd.PersistentFlags().String("calendar", "", "calendar id (default: the calendar list)")
	channelsListCmd.Flags().Bool("all", false, "include closed channels")
}

// channelResource maps --calendar onto a resource.
func channelResource(cmd *cobra.Command) (core.ResourceType, string) {
	calendarID, _ := cmd.Flags().GetString("calendar")
	if calendarID == "" {
		return core.ResourceCalendarList, ""
	}
	return core.ResourceCalendar, calendarID
}

func runChannelsOpen(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	if !a.cfg.Webhook.Enabled {
		return fmt.Errorf("webhooks are disabled\n\nSet webhook.enabled and webhook.base_url in your config")
	}
	rt, resourceID := channelResource(cmd)
	ch, err := a.channels.CreateChannel(cmd.Context(), acc.ID, rt, resourceID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "📡 Channel %s open until %s\n", ch.ID, ch.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func runChannelsClose(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	rt, resourceID := channelResource(cmd)
	if err := a.channels.CloseChannel(cmd.Context(), acc.ID, rt, resourceID); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "🔕 Channels closed")
	return nil
}

func runChannelsList(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	channels, err := a.channels.ListChannels(cmd.Context(), acc.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	shown := 0
	for _, c := range channels {
		if !all && !c.Live() {
			continue
		}
		shown++
		target := "calendar list"
		if c.ResourceType == core.ResourceCalendar {
			target = c.ResourceID
		}
		fmt.Fprintf(out, "%-36s  %-8s  %-30s  expires %s\n",
			c.ID, c.Status, truncate(target, 30), c.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	if shown == 0 {
		fmt.Fprintln(out, "No channels")
	}
	return nil
}
