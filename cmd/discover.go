package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var discoverSessionID string

var discoverCmd = &cobra.Command{
	Use:   "discover <topic> [target-count] [session-id]",
	Short: "Discover verified contact addresses for a topic",
	Long:  "Runs search rounds for the topic until the target count is reached, printing the result payload as JSON. Repeat runs with the same session id skip addresses found earlier.",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := args[0]
		target := 0
		if len(args) >= 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return eris.Errorf("invalid target count: %s", args[1])
			}
			target = n
		}

		// An absent session leaves the campaign scoped to the topic
		// alone, so repeat runs keep deduplicating against each other.
		sessionID := discoverSessionID
		if len(args) == 3 {
			sessionID = args[2]
		}

		env, err := initDiscovery(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.runDiscovery(cmd.Context(), topic, sessionID, target)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverSessionID, "session", "", "campaign session id (default: campaign scoped to the topic alone)")
	rootCmd.AddCommand(discoverCmd)
}
